package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campuswell/wellbeing-api/internal/model"
)

// testKeywords supplies the screening vocabularies directly, the way a
// deployment supplies them through config.
func testKeywords() Keywords {
	return Keywords{
		High: []string{
			"i want to die", "kill myself", "suicide", "end my life",
			"not worth living", "better off dead", "want to disappear",
			"take my own life", "end it all",
		},
		Medium: []string{
			"hurt myself", "self harm", "cutting", "overdose",
			"can't go on", "give up", "no point", "want to die",
			"life is meaningless", "nothing matters",
		},
		Low: []string{
			"depressed", "hopeless", "worthless", "empty inside",
			"feel terrible", "can't take it", "very sad",
		},
	}
}

func TestClassifyTextTiers(t *testing.T) {
	c := NewClassifier(testKeywords())

	tests := []struct {
		name  string
		text  string
		level model.CrisisLevel
	}{
		{"high confidence phrase", "I've been thinking about suicide lately", model.CrisisCritical},
		{"case insensitive", "I WANT TO DIE", model.CrisisCritical},
		{"single medium phrase", "sometimes I want to hurt myself", model.CrisisMedium},
		{"two medium phrases", "I can't go on, there's no point anymore", model.CrisisHigh},
		{"single low phrase", "I've been so depressed", model.CrisisNone},
		{"two low phrases", "I feel depressed and hopeless", model.CrisisLow},
		{"three low phrases", "depressed, hopeless, and worthless", model.CrisisMedium},
		{"neutral text", "my exam schedule is stressful this week", model.CrisisNone},
		{"empty", "", model.CrisisNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.text)
			assert.Equal(t, tt.level, result.Level)
		})
	}
}

func TestClassifyCollapsesWhitespace(t *testing.T) {
	c := NewClassifier(testKeywords())

	assert.Equal(t, model.CrisisMedium, c.Classify("I  can't   go\n on anymore").Level)
	assert.Equal(t, model.CrisisCritical, c.Classify("I want\tto die").Level)
}

func TestClassifyRecordsMatches(t *testing.T) {
	c := NewClassifier(testKeywords())

	result := c.Classify("honestly I just want to end it all")
	assert.Equal(t, model.CrisisCritical, result.Level)
	assert.Equal(t, []string{"end it all"}, result.Matched)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
}

func TestClassifyExtraKeywords(t *testing.T) {
	kw := testKeywords()
	kw.Extra = []string{" Jumping Off ", ""}
	c := NewClassifier(kw)

	assert.Equal(t, model.CrisisCritical, c.Classify("thinking about jumping off the bridge").Level)
	assert.Equal(t, model.CrisisNone, c.Classify("jumping jacks at the gym every day").Level)
}

func TestClassifyIntakeSeverity(t *testing.T) {
	c := NewClassifier(testKeywords())

	req := func(severity int) *model.SubmitIntakeRequest {
		return &model.SubmitIntakeRequest{
			PrimaryConcern: "anxiety",
			Description:    "trouble sleeping before exams",
			Severity:       severity,
		}
	}

	assert.Equal(t, model.CrisisLow, c.ClassifyIntake(req(3)))
	assert.Equal(t, model.CrisisMedium, c.ClassifyIntake(req(7)))
	assert.Equal(t, model.CrisisHigh, c.ClassifyIntake(req(9)))
}

func TestClassifyIntakeSelfHarmIndicators(t *testing.T) {
	c := NewClassifier(testKeywords())

	req := &model.SubmitIntakeRequest{
		PrimaryConcern:   "stress",
		Description:      "everything is fine otherwise",
		Severity:         2,
		CrisisIndicators: []string{"sleep_issues", "self_harm"},
	}
	assert.Equal(t, model.CrisisHigh, c.ClassifyIntake(req))
}

func TestClassifyIntakeDescriptionWins(t *testing.T) {
	c := NewClassifier(testKeywords())

	req := &model.SubmitIntakeRequest{
		PrimaryConcern: "stress",
		Description:    "some days I feel like I'd be better off dead",
		Severity:       2,
	}
	assert.Equal(t, model.CrisisCritical, c.ClassifyIntake(req))
}

func TestCrisisLevelOrdering(t *testing.T) {
	assert.True(t, model.CrisisCritical.AtLeast(model.CrisisHigh))
	assert.True(t, model.CrisisHigh.AtLeast(model.CrisisHigh))
	assert.False(t, model.CrisisMedium.AtLeast(model.CrisisHigh))
	assert.Equal(t, 0, model.CrisisLevel("bogus").Rank())
}
