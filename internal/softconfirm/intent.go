package softconfirm

import "strings"

// wholeMessageRejections match only when they are the entire trimmed message.
// Short interjections like "no" or "wait" are rejections on their own but
// appear constantly inside legitimate text, so they never match as fragments.
var wholeMessageRejections = map[string]struct{}{
	"no":         {},
	"nope":       {},
	"wait":       {},
	"stop":       {},
	"cancel":     {},
	"don't":      {},
	"no thanks":  {},
	"never mind": {},
	"nevermind":  {},
}

// anchoredRejections match when the message starts with the phrase at a word
// boundary. Multi-token and anchored, never a bare substring scan, so
// "our cancellation policy says you can cancel that booking" stays harmless.
var anchoredRejections = []string{
	"cancel that",
	"cancel the",
	"don't proceed",
	"don't do that",
	"don't do it",
	"do not proceed",
	"do not do that",
	"stop that",
	"hold off",
	"never mind",
	"abort that",
	"no don't",
	"wait don't",
	"wait no",
	"on second thought",
	"actually don't",
	"actually no",
}

// wholeMessageAffirmations confirm a hard-confirm (T3) proposal. Matching is
// whole-message only: an explicit consent check must never fire off a
// sentence that merely contains "yes".
var wholeMessageAffirmations = map[string]struct{}{
	"yes":        {},
	"y":          {},
	"yep":        {},
	"yeah":       {},
	"yes please": {},
	"confirm":    {},
	"confirmed":  {},
	"approve":    {},
	"approved":   {},
	"go ahead":   {},
	"do it":      {},
	"proceed":    {},
	"ok":         {},
	"okay":       {},
	"sure":       {},
}

// IsRejection reports whether the user message is an objection that should
// cancel pending soft-confirmed proposals.
func IsRejection(message string) bool {
	norm := normalize(message)
	if norm == "" {
		return false
	}
	if _, ok := wholeMessageRejections[norm]; ok {
		return true
	}
	for _, phrase := range anchoredRejections {
		if hasAnchoredPrefix(norm, phrase) {
			return true
		}
	}
	return false
}

// IsAffirmation reports whether the user message is an explicit, whole-message
// consent suitable for releasing a hard-confirm proposal.
func IsAffirmation(message string) bool {
	_, ok := wholeMessageAffirmations[normalize(message)]
	return ok
}

// normalize lowercases, trims, strips punctuation other than apostrophes, and
// collapses runs of whitespace to single spaces.
func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r == '\'', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// hasAnchoredPrefix reports whether msg begins with phrase ending at a word
// boundary.
func hasAnchoredPrefix(msg, phrase string) bool {
	if !strings.HasPrefix(msg, phrase) {
		return false
	}
	return len(msg) == len(phrase) || msg[len(phrase)] == ' '
}
