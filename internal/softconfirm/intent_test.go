package softconfirm_test

import (
	"testing"
	"time"

	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/softconfirm"
)

func TestIsRejection(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"bare no", "no", true},
		{"bare no with punctuation", "No!", true},
		{"bare wait", "wait", true},
		{"bare wait with comma", " Wait... ", true},
		{"cancel that", "cancel that", true},
		{"cancel that with tail", "Cancel that, I changed my mind", true},
		{"dont proceed", "don't proceed", true},
		{"wait dont do that", "wait, don't do that", true},
		{"on second thought", "On second thought, let's skip it", true},
		{"never mind trailing", "never mind about the upgrade", true},

		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"substring cancel", "our cancellation policy says you can cancel that booking anytime", false},
		{"substring no", "there's no rush, book the earlier slot", false},
		{"substring wait", "the wait time at that restaurant is long, book it anyway", false},
		{"stop mid-sentence", "please book a stop in Denver", false},
		{"dont mid-sentence", "I don't mind either option, pick one", false},
		{"word prefix not boundary", "nothing to change", false},
		{"cancellation prefix", "cancellation fees apply, that's fine", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := softconfirm.IsRejection(tt.message); got != tt.want {
				t.Errorf("IsRejection(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestIsAffirmation(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"yes", true},
		{"Yes.", true},
		{"yes please", true},
		{"go ahead", true},
		{"do it", true},
		{"confirmed", true},
		{"okay", true},

		{"", false},
		{"yes, but first check the price", false},
		{"I guess the answer is yes", false},
		{"not yet", false},
		{"maybe", false},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := softconfirm.IsAffirmation(tt.message); got != tt.want {
				t.Errorf("IsAffirmation(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestWindowsFor(t *testing.T) {
	w := softconfirm.DefaultWindows()

	if got := w.For(session.TypeChat); got != 30*time.Second {
		t.Errorf("chat window = %v, want 30s", got)
	}
	if got := w.For(session.TypeSetup); got != 5*time.Minute {
		t.Errorf("setup window = %v, want 5m", got)
	}
	if got := w.For(session.TypeAdmin); got != 2*time.Minute {
		t.Errorf("admin window = %v, want 2m", got)
	}
	// Unknown surfaces fall back to the conservative chat window.
	if got := w.For(session.Type("kiosk")); got != 30*time.Second {
		t.Errorf("unknown window = %v, want 30s", got)
	}
}

func TestDeadline(t *testing.T) {
	w := softconfirm.DefaultWindows()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := w.Deadline(session.TypeChat, now); !got.Equal(now.Add(30 * time.Second)) {
		t.Errorf("Deadline = %v, want now+30s", got)
	}
}
