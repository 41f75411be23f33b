package security

import "regexp"

// Secret kinds reported by the scanner.
const (
	SecretAnthropicKey = "anthropic_api_key"
	SecretOpenAIKey    = "openai_api_key"
	SecretGroqKey      = "groq_api_key"
	SecretAWSAccessKey = "aws_access_key"
	SecretGitHubToken  = "github_token"
	SecretBearerToken  = "bearer_token"
	SecretPrivateKey   = "private_key"
)

type secretPattern struct {
	kind     string
	severity Severity
	pattern  *regexp.Regexp
}

// Specific key shapes first; the generic bearer pattern sweeps up the rest.
var secretPatterns = []secretPattern{
	{SecretAnthropicKey, SeverityCritical, regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{20,}\b`)},
	{SecretOpenAIKey, SeverityCritical, regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9_-]{20,}\b`)},
	{SecretGroqKey, SeverityCritical, regexp.MustCompile(`\bgsk_[A-Za-z0-9]{20,}\b`)},
	{SecretAWSAccessKey, SeverityHigh, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{SecretGitHubToken, SeverityHigh, regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{SecretPrivateKey, SeverityCritical, regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	{SecretBearerToken, SeverityHigh, regexp.MustCompile(`\bBearer\s+[A-Za-z0-9._~+/-]{20,}=*`)},
}

// SecretMatch is one detected credential-shaped token.
type SecretMatch struct {
	Kind     string
	Severity Severity
	Value    string
}

// ScanSecrets returns every secret-shaped token in text. Overlapping kinds
// are reported once, under the most specific pattern.
func ScanSecrets(text string) []SecretMatch {
	var matches []SecretMatch
	remaining := text
	for _, p := range secretPatterns {
		for _, value := range p.pattern.FindAllString(remaining, -1) {
			matches = append(matches, SecretMatch{Kind: p.kind, Severity: p.severity, Value: value})
		}
		remaining = p.pattern.ReplaceAllString(remaining, "")
	}
	return matches
}
