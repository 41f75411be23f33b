package security

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rana/internal/metrics"
)

const maxScannableFileSize = 1 << 20 // 1 MiB

// Scan modes.
type ScanMode string

const (
	ScanAll         ScanMode = "all"
	ScanSecretsOnly ScanMode = "secrets"
	ScanPIIOnly     ScanMode = "pii"
)

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
}

// Finding is one file-scan hit.
type Finding struct {
	File     string
	Line     int
	Category string // "secret" or "pii"
	Kind     string
	Severity Severity
	Match    string
}

// Scanner walks files looking for secrets and PII.
type Scanner struct {
	Mode        ScanMode
	MinSeverity Severity
}

// Scan walks path (a file or directory tree) and returns findings at or
// above the configured severity.
func (s *Scanner) Scan(path string) ([]Finding, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	var findings []Finding
	if !info.IsDir() {
		return s.scanFile(path)
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxScannableFileSize {
			return nil
		}
		fileFindings, err := s.scanFile(p)
		if err != nil {
			return nil // unreadable files are skipped, not fatal
		}
		findings = append(findings, fileFindings...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return findings, nil
}

func (s *Scanner) scanFile(path string) ([]Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []Finding
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannableFileSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return findings, nil // binary content, stop scanning this file
		}

		if s.Mode != ScanPIIOnly {
			for _, m := range ScanSecrets(line) {
				findings = s.appendFinding(findings, Finding{
					File: path, Line: lineNo,
					Category: "secret", Kind: m.Kind, Severity: m.Severity, Match: m.Value,
				})
			}
		}
		if s.Mode != ScanSecretsOnly {
			for _, m := range DetectPII(line) {
				findings = s.appendFinding(findings, Finding{
					File: path, Line: lineNo,
					Category: "pii", Kind: m.Kind, Severity: SeverityMedium, Match: m.Value,
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return findings, nil
}

func (s *Scanner) appendFinding(findings []Finding, f Finding) []Finding {
	if s.MinSeverity != "" && !f.Severity.AtLeast(s.MinSeverity) {
		return findings
	}
	metrics.SecurityDetection(f.Category, string(f.Severity))
	return append(findings, f)
}

// HasBlocking reports whether any finding is high or critical. The CLI exits
// non-zero when this holds.
func HasBlocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity.AtLeast(SeverityHigh) {
			return true
		}
	}
	return false
}
