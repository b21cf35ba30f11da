package notify

import "strings"

// Status is one of the four canonical attendance states.
type Status string

const (
	StatusPresent   Status = "present"
	StatusSick      Status = "sick"
	StatusPermitted Status = "permitted"
	StatusAbsent    Status = "absent"
)

// statusTokens lists every accepted surface token per canonical status,
// Indonesian first. The Indonesian token is what gets stored.
var statusTokens = map[Status][]string{
	StatusPresent:   {"hadir", "present"},
	StatusSick:      {"sakit", "sick"},
	StatusPermitted: {"izin", "permitted"},
	StatusAbsent:    {"alpha", "absent"},
}

// displayText is the Indonesian label used in structured messages.
var displayText = map[Status]string{
	StatusPresent:   "Hadir",
	StatusSick:      "Sakit",
	StatusPermitted: "Izin",
	StatusAbsent:    "Alpha",
}

// ParseStatus maps a token to its canonical status using exact matching.
func ParseStatus(token string) (Status, bool) {
	for st, tokens := range statusTokens {
		for _, t := range tokens {
			if t == token {
				return st, true
			}
		}
	}
	return "", false
}

// Token returns the stored (Indonesian) token for s.
func (s Status) Token() string {
	if tokens, ok := statusTokens[s]; ok {
		return tokens[0]
	}
	return string(s)
}

// Display returns the Indonesian label for s, "Alpha" for anything unknown.
func (s Status) Display() string {
	if d, ok := displayText[s]; ok {
		return d
	}
	return displayText[StatusAbsent]
}

// isPresent reports whether token names the present status, ignoring case.
func isPresent(token string) bool {
	for _, t := range statusTokens[StatusPresent] {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

// structuredLabel returns the label for a non-present token. Unmatched tokens
// are reported as absent.
func structuredLabel(token string) string {
	st, ok := ParseStatus(token)
	if !ok || st == StatusPresent {
		return StatusAbsent.Display()
	}
	return st.Display()
}

// AcceptedTokens returns every accepted status token.
func AcceptedTokens() []string {
	out := make([]string, 0, 8)
	for _, st := range []Status{StatusPresent, StatusSick, StatusPermitted, StatusAbsent} {
		out = append(out, statusTokens[st]...)
	}
	return out
}
