package zoom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/campuswell/wellbeing-api/internal/model"
)

// FallbackMeeting deterministically synthesizes meeting details from the
// appointment id, so retries for the same appointment produce the same
// link.
func FallbackMeeting(appointmentID string) *model.MeetingInfo {
	sum := sha256.Sum256([]byte(appointmentID))
	id := hex.EncodeToString(sum[:])[:12]

	return &model.MeetingInfo{
		MeetLink:      fmt.Sprintf("https://zoom.us/j/fallback%s", id),
		HostLink:      fmt.Sprintf("https://zoom.us/j/fallback%s", id),
		ProviderID:    model.FallbackIDPrefix + id,
		Password:      "123456",
		DialIn:        "+1-646-558-8656",
		Platform:      "zoom",
		IsFallback:    true,
		CreatedMethod: "fallback",
	}
}
