package crisis

import (
	"strings"

	"github.com/campuswell/wellbeing-api/internal/model"
)

// Keywords holds the tiered screening vocabularies. They come from
// configuration; nothing is compiled in. Matching is case-insensitive
// substring containment, so "thinking about suicide" triggers a
// "suicide" indicator.
type Keywords struct {
	High   []string
	Medium []string
	Low    []string
	Extra  []string
}

// Intake indicators that force a high triage tier regardless of the
// self-reported severity score.
var selfHarmIndicators = map[string]bool{
	"suicidal_thoughts": true,
	"self_harm":         true,
	"harm_others":       true,
}

// Result is one classification outcome.
type Result struct {
	Level      model.CrisisLevel
	Confidence float64
	Matched    []string
}

// Classifier scores free text and intake forms for crisis risk. It is
// deterministic and holds no state beyond its keyword lists.
type Classifier struct {
	high   []string
	medium []string
	low    []string
	extra  []string
}

func NewClassifier(kw Keywords) *Classifier {
	return &Classifier{
		high:   normalizeKeywords(kw.High),
		medium: normalizeKeywords(kw.Medium),
		low:    normalizeKeywords(kw.Low),
		extra:  normalizeKeywords(kw.Extra),
	}
}

func normalizeKeywords(keywords []string) []string {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return lowered
}

// Classify screens message text. A single high-confidence phrase is
// critical; medium and low phrases escalate by count.
func (c *Classifier) Classify(text string) Result {
	// Lowercase and collapse whitespace so doubled spaces or newlines
	// inside a phrase still match.
	lower := strings.Join(strings.Fields(strings.ToLower(text)), " ")

	for _, indicator := range c.high {
		if strings.Contains(lower, indicator) {
			return Result{
				Level:      model.CrisisCritical,
				Confidence: 0.95,
				Matched:    []string{indicator},
			}
		}
	}
	for _, indicator := range c.extra {
		if strings.Contains(lower, indicator) {
			return Result{
				Level:      model.CrisisCritical,
				Confidence: 0.95,
				Matched:    []string{indicator},
			}
		}
	}

	var mediumMatched []string
	for _, indicator := range c.medium {
		if strings.Contains(lower, indicator) {
			mediumMatched = append(mediumMatched, indicator)
		}
	}
	if len(mediumMatched) >= 2 {
		return Result{Level: model.CrisisHigh, Confidence: 0.8, Matched: mediumMatched}
	}
	if len(mediumMatched) == 1 {
		return Result{Level: model.CrisisMedium, Confidence: 0.6, Matched: mediumMatched}
	}

	var lowMatched []string
	for _, indicator := range c.low {
		if strings.Contains(lower, indicator) {
			lowMatched = append(lowMatched, indicator)
		}
	}
	if len(lowMatched) >= 3 {
		return Result{Level: model.CrisisMedium, Confidence: 0.5, Matched: lowMatched}
	}
	if len(lowMatched) >= 2 {
		return Result{Level: model.CrisisLow, Confidence: 0.3, Matched: lowMatched}
	}

	return Result{Level: model.CrisisNone}
}

// ClassifyIntake derives the triage tier from an intake form. The
// description text is screened as well, and the stronger signal wins.
func (c *Classifier) ClassifyIntake(req *model.SubmitIntakeRequest) model.CrisisLevel {
	level := model.CrisisLow
	if req.Severity >= 7 {
		level = model.CrisisMedium
	}
	if req.Severity >= 9 {
		level = model.CrisisHigh
	}
	for _, indicator := range req.CrisisIndicators {
		if selfHarmIndicators[indicator] {
			level = model.CrisisHigh
			break
		}
	}

	if textLevel := c.Classify(req.Description).Level; textLevel.Rank() > level.Rank() {
		level = textLevel
	}
	return level
}
