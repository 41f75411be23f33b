package security

import (
	"regexp"
	"sort"
	"strings"
)

// Sensitivity scales the injection detector's risk thresholds. It never
// changes the underlying patterns.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Injection pattern family names.
const (
	FamilyDirectOverride   = "direct_override"
	FamilySystemPromptLeak = "system_prompt_leak"
	FamilyJailbreak        = "jailbreak"
	FamilyRoleManipulation = "role_manipulation"
)

var injectionFamilies = map[string][]*regexp.Regexp{
	FamilyDirectOverride: {
		regexp.MustCompile(`(?i)\bignore\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|prompts|rules|directions)\b`),
		regexp.MustCompile(`(?i)\bdisregard\s+(?:all\s+)?(?:previous|prior|above|your)\s+(?:instructions|rules|guidelines)\b`),
		regexp.MustCompile(`(?i)\bforget\s+(?:everything|all)\s+(?:you\s+(?:were|have been)\s+told|above|before)\b`),
		regexp.MustCompile(`(?i)\bnew\s+instructions?\s*:`),
		regexp.MustCompile(`(?i)\boverride\s+(?:your|the)\s+(?:instructions|programming|rules)\b`),
	},
	FamilySystemPromptLeak: {
		regexp.MustCompile(`(?i)\b(?:reveal|show|print|repeat|output|display)\s+(?:me\s+)?(?:your|the)\s+(?:system\s+prompt|initial\s+prompt|hidden\s+instructions)\b`),
		regexp.MustCompile(`(?i)\bwhat\s+(?:are|were)\s+your\s+(?:original|initial|system)\s+(?:instructions|prompt)\b`),
		regexp.MustCompile(`(?i)\brepeat\s+the\s+(?:text|words)\s+above\b`),
	},
	FamilyJailbreak: {
		regexp.MustCompile(`(?i)\b(?:DAN|do\s+anything\s+now)\s+mode\b`),
		regexp.MustCompile(`(?i)\bjailbreak\b`),
		regexp.MustCompile(`(?i)\bwithout\s+(?:any\s+)?(?:restrictions|limitations|filters|censorship)\b`),
		regexp.MustCompile(`(?i)\b(?:bypass|disable|turn\s+off)\s+(?:your\s+)?(?:safety|content|ethical)\s+(?:filters?|guidelines|checks)\b`),
	},
	FamilyRoleManipulation: {
		regexp.MustCompile(`(?i)\b(?:you\s+are\s+now|from\s+now\s+on\s+you\s+are|act\s+as\s+if\s+you\s+are)\s+(?:a|an|the)?\s*(?:different|unrestricted|evil|uncensored)\b`),
		regexp.MustCompile(`(?i)\bpretend\s+(?:to\s+be|you\s+are)\s+(?:a|an)?\s*(?:different|unrestricted|another)\s+(?:ai|assistant|model|person)\b`),
		regexp.MustCompile(`(?i)\byour?\s+(?:new\s+)?(?:role|persona|personality)\s+is\b`),
	},
}

var (
	imperativeVerbs = regexp.MustCompile(`(?i)\b(?:ignore|disregard|forget|reveal|bypass|override|disable|pretend|obey|comply|execute|repeat)\b`)
	delimiterRuns   = regexp.MustCompile("(?:[-=*#_]{6,}|`{3,}|<\\|.*?\\|>)")
)

// riskThresholds are the score cut-offs per sensitivity.
var riskThresholds = map[Sensitivity]struct{ high, critical float64 }{
	SensitivityLow:    {high: 4, critical: 6},
	SensitivityMedium: {high: 3, critical: 5},
	SensitivityHigh:   {high: 2, critical: 4},
}

// Detection is one injection-scan verdict.
type Detection struct {
	Detected bool
	Risk     Severity
	Families []string
	Matches  []string
	Score    float64
}

// InjectionDetector scans prompts for injection attempts.
type InjectionDetector struct {
	sensitivity Sensitivity
}

// NewInjectionDetector builds a detector; sensitivity defaults to medium.
func NewInjectionDetector(sensitivity Sensitivity) *InjectionDetector {
	if _, ok := riskThresholds[sensitivity]; !ok {
		sensitivity = SensitivityMedium
	}
	return &InjectionDetector{sensitivity: sensitivity}
}

// Detect runs every pattern family plus the heuristics over text.
func (d *InjectionDetector) Detect(text string) Detection {
	result := Detection{Risk: SeverityNone}
	familySet := map[string]bool{}

	for family, patterns := range injectionFamilies {
		matchesInFamily := 0
		for _, p := range patterns {
			for _, m := range p.FindAllString(text, -1) {
				result.Matches = append(result.Matches, m)
				matchesInFamily++
			}
		}
		if matchesInFamily > 0 {
			familySet[family] = true
			result.Score += 2
			// Repeated matches within a family strengthen the signal.
			if matchesInFamily > 1 {
				result.Score += float64(matchesInFamily - 1)
			}
		}
	}
	for family := range familySet {
		result.Families = append(result.Families, family)
	}
	sort.Strings(result.Families)

	// Heuristics: imperative density and unusual delimiter sequences.
	words := len(strings.Fields(text))
	imperatives := len(imperativeVerbs.FindAllString(text, -1))
	if words > 0 && imperatives >= 3 {
		result.Score++
	}
	if delimiterRuns.MatchString(text) {
		result.Score++
	}

	thresholds := riskThresholds[d.sensitivity]
	switch {
	case len(result.Families) >= 2:
		result.Risk = SeverityCritical
	case result.Score >= thresholds.critical:
		result.Risk = SeverityCritical
	case result.Score >= thresholds.high:
		result.Risk = SeverityHigh
	case len(result.Families) == 1:
		result.Risk = SeverityMedium
	case result.Score > 0:
		result.Risk = SeverityLow
	}

	result.Detected = len(result.Families) > 0 || result.Score >= thresholds.high
	return result
}
