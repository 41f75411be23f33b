package security

import "regexp"

// PII pattern kinds.
const (
	PIIEmail      = "email"
	PIIPhone      = "phone"
	PIISSN        = "ssn"
	PIICreditCard = "credit_card"
	PIIIPAddress  = "ip_address"
)

type piiPattern struct {
	kind    string
	pattern *regexp.Regexp
}

// Order matters: SSNs and credit cards are matched before the looser phone
// pattern so a digit run is claimed by the most specific kind first.
var piiPatterns = []piiPattern{
	{PIIEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{PIISSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PIICreditCard, regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b`)},
	{PIIIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)},
	{PIIPhone, regexp.MustCompile(`(?:\+\d{1,3}[ -]?)?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`)},
}

// PIIMatch is one detected piece of personally identifiable information.
type PIIMatch struct {
	Kind  string
	Value string
}

// DetectPII returns every PII match in text, in pattern order.
func DetectPII(text string) []PIIMatch {
	var matches []PIIMatch
	remaining := text
	for _, p := range piiPatterns {
		for _, value := range p.pattern.FindAllString(remaining, -1) {
			matches = append(matches, PIIMatch{Kind: p.kind, Value: value})
		}
		// Claimed spans must not re-match under a later, looser pattern.
		remaining = p.pattern.ReplaceAllString(remaining, "")
	}
	return matches
}

// RedactPII replaces every PII match with marker.
func RedactPII(text, marker string) string {
	if marker == "" {
		marker = defaultRedactionMarker
	}
	for _, p := range piiPatterns {
		text = p.pattern.ReplaceAllString(text, marker)
	}
	return text
}
