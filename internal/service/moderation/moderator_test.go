package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/service/crisis"
	"github.com/campuswell/wellbeing-api/pkg/logger"
)

type fakeMessages struct {
	senderCount    int
	senderCountErr error
	identical      int
	identicalErr   error

	created    []*model.Message
	createErr  error
	history    []*model.Message
	listLimit  int
	readMarked []uuid.UUID
}

func (f *fakeMessages) Create(ctx context.Context, msg *model.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeMessages) ListForAssignment(ctx context.Context, assignmentID uuid.UUID, limit int) ([]*model.Message, error) {
	f.listLimit = limit
	return f.history, nil
}

func (f *fakeMessages) MarkRead(ctx context.Context, assignmentID, readerID uuid.UUID) error {
	f.readMarked = append(f.readMarked, readerID)
	return nil
}

func (f *fakeMessages) CountBySenderSince(ctx context.Context, senderID uuid.UUID, since time.Time) (int, error) {
	return f.senderCount, f.senderCountErr
}

func (f *fakeMessages) CountIdenticalSince(ctx context.Context, senderID uuid.UUID, hash string, since time.Time) (int, error) {
	return f.identical, f.identicalErr
}

// Screening vocabularies are supplied here the way a deployment
// supplies them through config.
func testKeywords() crisis.Keywords {
	return crisis.Keywords{
		High: []string{
			"i want to die", "kill myself", "suicide", "end my life",
			"better off dead", "end it all",
		},
		Medium: []string{
			"hurt myself", "self harm", "can't go on", "give up",
			"no point", "nothing matters",
		},
		Low: []string{"depressed", "hopeless", "worthless"},
	}
}

func testModerationConfig() config.ModerationConfig {
	return config.ModerationConfig{
		Enabled:            true,
		MaxMessageLength:   500,
		StudentRateLimit:   config.RateLimitConfig{PerMinute: 5, PerHour: 30, PerDay: 100},
		TherapistRateLimit: config.RateLimitConfig{PerMinute: 10, PerHour: 100, PerDay: 400},
		BusinessHourStart:  8,
		BusinessHourEnd:    20,
		Profanity: config.ProfanityConfig{
			Severe:   []string{"fuck", "fucking", "cunt"},
			Moderate: []string{"shit", "bitch", "asshole", "idiot"},
			Mild:     []string{"damn", "hell", "crap", "stupid"},
		},
		Boundary: config.BoundaryConfig{
			Block:  []string{"personal phone number", "my address is", "meet me at", "sexual"},
			Filter: []string{"personal email", "social media", "phone number", "home address"},
			Log:    []string{"friend", "outside therapy", "after work"},
		},
	}
}

func newTestModerator(messages *fakeMessages) *Moderator {
	m := NewModerator(testModerationConfig(), messages,
		crisis.NewClassifier(testKeywords()), logger.NewLogger(nil))
	// Wednesday, mid-morning.
	m.now = func() time.Time { return time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC) }
	return m
}

func TestModerateCleanMessage(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "I had a rough week but the breathing exercises helped.", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Empty(t, d.Flags)
	assert.Equal(t, model.CrisisNone, d.EscalationLevel)
}

func TestModerateBlocksEmpty(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "   ", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationBlock, d.Action)
	assert.Contains(t, d.Flags, "empty_message")
}

func TestModerateBlocksOversized(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), strings.Repeat("a", 501), model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationBlock, d.Action)
	assert.Contains(t, d.Flags, "message_too_long")
}

func TestModerateRateLimit(t *testing.T) {
	m := newTestModerator(&fakeMessages{senderCount: 5})

	d := m.Moderate(context.Background(), "hello again", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationBlock, d.Action)
	assert.Contains(t, d.Flags, "rate_limit_exceeded")
	assert.NotEmpty(t, d.AutoResponse)
}

func TestModerateTherapistRateLimitHigher(t *testing.T) {
	// Five recent messages block a student but not a therapist.
	m := newTestModerator(&fakeMessages{senderCount: 5})

	d := m.Moderate(context.Background(), "checking in on your homework", model.RoleTherapist, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
}

func TestModerateRateLimitFailsOpen(t *testing.T) {
	m := newTestModerator(&fakeMessages{senderCountErr: errors.New("db down")})

	d := m.Moderate(context.Background(), "is the session still on?", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
}

func TestModerateSpamBlock(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "visit http://spam.example and http://more.example", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationBlock, d.Action)
	assert.Contains(t, d.Flags, "spam_detected")
}

func TestModeratePotentialSpamFlagged(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "look at http://one.example please!!!", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Contains(t, d.Flags, "potential_spam")
}

func TestModerateDuplicateSpamFailsOpen(t *testing.T) {
	m := newTestModerator(&fakeMessages{identicalErr: errors.New("db down")})

	d := m.Moderate(context.Background(), "same message as before", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
}

func TestModerateCrisisEscalation(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "lately I have been thinking about suicide", model.RoleStudent, uuid.New())
	// The message is still delivered.
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Equal(t, model.CrisisCritical, d.EscalationLevel)
	assert.Contains(t, d.Flags, "crisis_critical")
	assert.NotEmpty(t, d.AutoResponse)
}

func TestModerateSevereProfanityFiltered(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "this fucking week was hard", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationFilter, d.Action)
	assert.Contains(t, d.Flags, "profanity_severe")
	assert.Equal(t, "this [filtered] week was hard", d.FilteredBody)
}

func TestModerateModerateProfanityMasked(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "my roommate is an idiot", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Contains(t, d.Flags, "profanity_moderate")
	assert.Equal(t, "my roommate is an *****", d.FilteredBody)
}

func TestModerateBoundaryBlock(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "meet me at the coffee shop after this", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationBlock, d.Action)
	assert.Contains(t, d.Flags, "boundary_violation_severe")
	assert.NotEmpty(t, d.AutoResponse)
}

func TestModerateBoundaryRedaction(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "can I have your phone number", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationFilter, d.Action)
	assert.Contains(t, d.Flags, "boundary_violation_moderate")
	assert.Equal(t, "can I have your [personal contact info]", d.FilteredBody)
}

func TestModerateBoundaryMildFlagged(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "you feel more like a friend than a therapist", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Contains(t, d.Flags, "boundary_violation_mild")
}

func TestModerateVeryNegativeSentiment(t *testing.T) {
	m := newTestModerator(&fakeMessages{})

	d := m.Moderate(context.Background(), "everything feels awful and terrible and miserable", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Contains(t, d.Flags, "very_negative_sentiment")
}

func TestModerateOutsideBusinessHours(t *testing.T) {
	m := newTestModerator(&fakeMessages{})
	m.now = func() time.Time { return time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC) } // Saturday

	d := m.Moderate(context.Background(), "are you around this weekend?", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Contains(t, d.Flags, "outside_business_hours")
}

func TestScoreSentiment(t *testing.T) {
	assert.InDelta(t, 0.0, scoreSentiment("the bus was late today"), 0.001)
	assert.InDelta(t, -0.9, scoreSentiment("that was awful"), 0.001)
	assert.InDelta(t, 0.6, scoreSentiment("I am happy today"), 0.001)
	// Negation flips polarity.
	assert.InDelta(t, -0.6, scoreSentiment("I am not happy"), 0.001)
	assert.InDelta(t, 0.5, scoreSentiment("honestly not sad anymore"), 0.001)
}

func TestModerateDisabledPassesThrough(t *testing.T) {
	cfg := testModerationConfig()
	cfg.Enabled = false
	m := NewModerator(cfg, &fakeMessages{}, crisis.NewClassifier(testKeywords()), logger.NewLogger(nil))

	d := m.Moderate(context.Background(), "this fucking week, meet me at the quad", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationAllow, d.Action)
	assert.Equal(t, "this fucking week, meet me at the quad", d.FilteredBody)
	assert.Empty(t, d.Flags)
}

func TestModerateCustomVocabularies(t *testing.T) {
	cfg := testModerationConfig()
	cfg.StudentRateLimit = config.RateLimitConfig{}
	cfg.ExtraProfanity = []string{"dingus"}
	cfg.ExtraBoundaryPhrases = []string{"my dorm room"}
	m := NewModerator(cfg, &fakeMessages{}, crisis.NewClassifier(crisis.Keywords{}), logger.NewLogger(nil))
	m.now = func() time.Time { return time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC) }

	d := m.Moderate(context.Background(), "you absolute dingus", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationFilter, d.Action)
	assert.Contains(t, d.FilteredBody, "[filtered]")
	assert.Contains(t, d.Flags, "profanity_severe")

	d = m.Moderate(context.Background(), "come by my dorm room later", model.RoleStudent, uuid.New())
	assert.Equal(t, model.ModerationBlock, d.Action)
	assert.Contains(t, d.Flags, "boundary_violation_severe")
}
