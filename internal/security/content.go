package security

import (
	"regexp"
	"strings"
)

// Action is what the content filter does with matched text.
type Action string

const (
	ActionWarn   Action = "warn"
	ActionRedact Action = "redact"
	ActionBlock  Action = "block"
)

const defaultRedactionMarker = "[FILTERED]"

// Rule is one ordered content-filter pattern.
type Rule struct {
	Name     string
	Category string
	Severity Severity
	Pattern  *regexp.Regexp
}

// Built-in rule categories.
const (
	CategoryProfanity = "profanity"
	CategoryHarm      = "harm"
	CategorySpam      = "spam"
)

func builtinRules() []Rule {
	return []Rule{
		{
			Name:     "harm-instructions",
			Category: CategoryHarm,
			Severity: SeverityCritical,
			Pattern:  regexp.MustCompile(`(?i)\b(?:how\s+to\s+(?:make|build)\s+(?:a\s+)?(?:bomb|weapon|explosive)|kill\s+yourself|hurt\s+(?:yourself|someone))\b`),
		},
		{
			Name:     "profanity-common",
			Category: CategoryProfanity,
			Severity: SeverityMedium,
			Pattern:  regexp.MustCompile(`(?i)\b(?:fuck(?:ing|ed)?|shit(?:ty)?|asshole|bitch)\b`),
		},
		{
			Name:     "spam-phrases",
			Category: CategorySpam,
			Severity: SeverityLow,
			Pattern:  regexp.MustCompile(`(?i)\b(?:buy\s+now|click\s+here|limited\s+time\s+offer|act\s+now|100%\s+free)\b`),
		},
	}
}

// FilterConfig configures a content filter.
type FilterConfig struct {
	DefaultAction   Action
	CategoryActions map[string]Action
	Allowlist       []string
	CustomRules     []Rule
	RedactionMarker string
}

// RuleMatch is one matched term.
type RuleMatch struct {
	Rule     string
	Category string
	Severity Severity
	Term     string
}

// FilterResult is the filter's verdict on one text.
type FilterResult struct {
	Action   Action
	Filtered string
	Matches  []RuleMatch
	Blocked  bool
}

// ContentFilter applies the ordered rule set in one pass per rule.
type ContentFilter struct {
	rules         []Rule
	defaultAction Action
	overrides     map[string]Action
	allowlist     map[string]bool
	marker        string
}

// NewContentFilter builds a filter with the built-in rules first, then any
// custom rules in caller order.
func NewContentFilter(cfg FilterConfig) *ContentFilter {
	action := cfg.DefaultAction
	if action == "" {
		action = ActionWarn
	}
	marker := cfg.RedactionMarker
	if marker == "" {
		marker = defaultRedactionMarker
	}
	allowlist := make(map[string]bool, len(cfg.Allowlist))
	for _, term := range cfg.Allowlist {
		allowlist[strings.ToLower(term)] = true
	}
	return &ContentFilter{
		rules:         append(builtinRules(), cfg.CustomRules...),
		defaultAction: action,
		overrides:     cfg.CategoryActions,
		allowlist:     allowlist,
		marker:        marker,
	}
}

// Apply scans text against every rule in order. Any critical match forces a
// block regardless of configured actions. Redaction leaves no trace of the
// matched term.
func (f *ContentFilter) Apply(text string) FilterResult {
	result := FilterResult{Action: ActionWarn, Filtered: text}

	forceBlock := false
	redact := false
	for _, rule := range f.rules {
		matched := false
		for _, term := range rule.Pattern.FindAllString(text, -1) {
			if f.allowlist[strings.ToLower(term)] {
				continue
			}
			matched = true
			result.Matches = append(result.Matches, RuleMatch{
				Rule:     rule.Name,
				Category: rule.Category,
				Severity: rule.Severity,
				Term:     term,
			})
		}
		if !matched {
			continue
		}

		if rule.Severity == SeverityCritical {
			forceBlock = true
			continue
		}
		switch f.actionFor(rule.Category) {
		case ActionBlock:
			forceBlock = true
		case ActionRedact:
			redact = true
			result.Filtered = replaceUnlessAllowed(result.Filtered, rule.Pattern, f.allowlist, f.marker)
		}
	}

	if len(result.Matches) == 0 {
		return result
	}

	switch {
	case forceBlock:
		result.Action = ActionBlock
		result.Blocked = true
		result.Filtered = ""
	case redact:
		result.Action = ActionRedact
	default:
		result.Action = f.actionFor(result.Matches[0].Category)
		if result.Action == "" {
			result.Action = f.defaultAction
		}
	}
	return result
}

func (f *ContentFilter) actionFor(category string) Action {
	if action, ok := f.overrides[category]; ok {
		return action
	}
	return f.defaultAction
}

func replaceUnlessAllowed(text string, pattern *regexp.Regexp, allowlist map[string]bool, marker string) string {
	return pattern.ReplaceAllStringFunc(text, func(term string) string {
		if allowlist[strings.ToLower(term)] {
			return term
		}
		return marker
	})
}
