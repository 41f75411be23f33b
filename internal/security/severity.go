// Package security provides single-pass text filters: prompt-injection
// detection, content filtering, PII redaction, and secret scanning.
package security

// Severity ranks findings across all filters.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the severity's ordering weight; unknown severities rank lowest.
func (s Severity) Rank() int { return severityRank[s] }

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool { return s.Rank() >= min.Rank() }
