package moderation

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/internal/service/crisis"
	"github.com/campuswell/wellbeing-api/pkg/logger"
)

// profanityTier pairs a severity level with its word list. The lists
// come from ModerationConfig; nothing is compiled in.
type profanityTier struct {
	level string
	words []string
}

var boundaryRedactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\b(phone\s*number|cell\s*phone|mobile)\b`), "[personal contact info]"},
	{regexp.MustCompile(`(?i)\b(email\s*address|personal\s*email)\b`), "[personal contact info]"},
	{regexp.MustCompile(`(?i)\b(home\s*address|where\s*you\s*live)\b`), "[personal location info]"},
	{regexp.MustCompile(`(?i)\b(meet\s*outside|see\s*you\s*outside)\b`), "[outside appointment request]"},
}

var (
	punctRunRe   = regexp.MustCompile(`[!?]{3,}`)
	charRepeatRe = regexp.MustCompile(`(.)\1{5,}`)
	urlRe        = regexp.MustCompile(`(?i)http[s]?://|www\.`)
)

// Decision is the outcome of running the full pipeline over one message.
type Decision struct {
	Action          model.ModerationAction
	FilteredBody    string
	Flags           []string
	Confidence      float64
	EscalationLevel model.CrisisLevel
	AutoResponse    string
}

// Moderator runs the ordered screening pipeline. Rate-limit and spam
// history checks fail open: a storage error never blocks a message.
type Moderator struct {
	cfg        config.ModerationConfig
	messages   repository.MessageRepository
	classifier *crisis.Classifier
	logger     *logger.Logger
	now        func() time.Time
}

func NewModerator(
	cfg config.ModerationConfig,
	messages repository.MessageRepository,
	classifier *crisis.Classifier,
	logger *logger.Logger,
) *Moderator {
	return &Moderator{
		cfg:        cfg,
		messages:   messages,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Moderate screens a message. Steps run in a fixed order; blocking steps
// short-circuit, advisory steps only accumulate flags.
func (m *Moderator) Moderate(ctx context.Context, body string, sender model.Role, senderID uuid.UUID) Decision {
	d := Decision{
		Action:          model.ModerationAllow,
		FilteredBody:    body,
		Confidence:      1.0,
		EscalationLevel: model.CrisisNone,
	}

	if !m.cfg.Enabled {
		return d
	}

	if strings.TrimSpace(body) == "" {
		d.Action = model.ModerationBlock
		d.Flags = append(d.Flags, "empty_message")
		return d
	}

	maxLen := m.cfg.MaxMessageLength
	if maxLen <= 0 {
		maxLen = 2000
	}
	if len(body) > maxLen {
		d.Action = model.ModerationBlock
		d.Flags = append(d.Flags, "message_too_long")
		return d
	}

	if !m.withinRateLimits(ctx, sender, senderID) {
		d.Action = model.ModerationBlock
		d.Flags = append(d.Flags, "rate_limit_exceeded")
		d.AutoResponse = "You're sending messages too quickly. Please wait before sending another message."
		return d
	}

	spamScore := m.spamScore(ctx, body, senderID)
	if spamScore > 0.8 {
		d.Action = model.ModerationBlock
		d.Flags = append(d.Flags, "spam_detected")
		d.Confidence = spamScore
		return d
	}
	if spamScore > 0.5 {
		d.Flags = append(d.Flags, "potential_spam")
	}

	if result := m.classifier.Classify(body); result.Level != model.CrisisNone {
		d.Flags = append(d.Flags, "crisis_"+string(result.Level))
		d.EscalationLevel = result.Level
		if result.Level.AtLeast(model.CrisisHigh) {
			// The message is still delivered; escalation happens on top.
			d.AutoResponse = "Your message indicates you may need immediate support. Your therapist has been notified and will prioritize your message."
		}
	}

	if filtered, level := m.filterProfanity(d.FilteredBody); level != "" {
		d.FilteredBody = filtered
		d.Flags = append(d.Flags, "profanity_"+level)
		if level == "severe" {
			d.Action = model.ModerationFilter
		}
	}

	boundaryAction, boundaryFlags := m.checkBoundaries(body)
	d.Flags = append(d.Flags, boundaryFlags...)
	switch boundaryAction {
	case model.ModerationBlock:
		d.Action = model.ModerationBlock
		d.AutoResponse = "Your message contains content that violates professional boundaries and cannot be sent."
		return d
	case model.ModerationFilter:
		d.Action = model.ModerationFilter
		d.FilteredBody = redactBoundaryContent(d.FilteredBody)
	}

	if scoreSentiment(body) < -0.8 {
		d.Flags = append(d.Flags, "very_negative_sentiment")
	}

	if !m.withinBusinessHours(m.now()) {
		d.Flags = append(d.Flags, "outside_business_hours")
	}

	return d
}

func (m *Moderator) withinRateLimits(ctx context.Context, sender model.Role, senderID uuid.UUID) bool {
	limits := m.cfg.StudentRateLimit
	if sender == model.RoleTherapist {
		limits = m.cfg.TherapistRateLimit
	}

	now := m.now()
	checks := []struct {
		since time.Time
		limit int
	}{
		{now.Add(-time.Minute), limits.PerMinute},
		{now.Add(-time.Hour), limits.PerHour},
		{now.Add(-24 * time.Hour), limits.PerDay},
	}

	for _, check := range checks {
		if check.limit <= 0 {
			continue
		}
		count, err := m.messages.CountBySenderSince(ctx, senderID, check.since)
		if err != nil {
			m.logger.Error(err, "rate limit check failed, allowing message",
				"sender_id", senderID.String())
			return true
		}
		if count >= check.limit {
			return false
		}
	}
	return true
}

func (m *Moderator) spamScore(ctx context.Context, body string, senderID uuid.UUID) float64 {
	score := 0.0

	identical, err := m.messages.CountIdenticalSince(ctx, senderID,
		model.HashMessage(body), m.now().Add(-30*time.Minute))
	if err != nil {
		m.logger.Error(err, "duplicate check failed, skipping",
			"sender_id", senderID.String())
	} else if identical > 0 {
		score += 0.4 * float64(identical)
	}

	if len(body) > 20 {
		upper := 0
		for _, r := range body {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(len(body)) > 0.7 {
			score += 0.3
		}
	}

	score += 0.2 * float64(len(punctRunRe.FindAllString(body, -1)))

	if charRepeatRe.MatchString(body) {
		score += 0.3
	}

	score += 0.5 * float64(len(urlRe.FindAllString(body, -1)))

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (m *Moderator) withinBusinessHours(now time.Time) bool {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	start, end := m.cfg.BusinessHourStart, m.cfg.BusinessHourEnd
	if end <= start {
		start, end = 8, 20
	}
	return now.Hour() >= start && now.Hour() < end
}

func (m *Moderator) filterProfanity(body string) (string, string) {
	filtered := body
	detected := ""

	tiers := []profanityTier{
		{"severe", m.cfg.ExtraProfanity},
		{"severe", m.cfg.Profanity.Severe},
		{"moderate", m.cfg.Profanity.Moderate},
		{"mild", m.cfg.Profanity.Mild},
	}
	for _, tier := range tiers {
		for _, word := range tier.words {
			pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
			if !pattern.MatchString(body) {
				continue
			}
			switch tier.level {
			case "severe":
				filtered = pattern.ReplaceAllString(filtered, "[filtered]")
				detected = "severe"
			case "moderate":
				if detected != "severe" {
					filtered = pattern.ReplaceAllString(filtered, strings.Repeat("*", len(word)))
					detected = "moderate"
				}
			case "mild":
				if detected == "" {
					detected = "mild"
				}
			}
		}
	}

	return filtered, detected
}

func (m *Moderator) checkBoundaries(body string) (model.ModerationAction, []string) {
	lower := strings.ToLower(body)
	var flags []string

	for _, phrase := range m.cfg.ExtraBoundaryPhrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" && strings.Contains(lower, phrase) {
			return model.ModerationBlock, append(flags, "boundary_violation_severe")
		}
	}
	for _, phrase := range m.cfg.Boundary.Block {
		if strings.Contains(lower, phrase) {
			return model.ModerationBlock, append(flags, "boundary_violation_severe")
		}
	}
	for _, phrase := range m.cfg.Boundary.Filter {
		if strings.Contains(lower, phrase) {
			return model.ModerationFilter, append(flags, "boundary_violation_moderate")
		}
	}
	for _, phrase := range m.cfg.Boundary.Log {
		if strings.Contains(lower, phrase) {
			flags = append(flags, "boundary_violation_mild")
			break
		}
	}
	return model.ModerationAllow, flags
}

func redactBoundaryContent(body string) string {
	filtered := body
	for _, r := range boundaryRedactions {
		filtered = r.pattern.ReplaceAllString(filtered, r.replacement)
	}
	return filtered
}
