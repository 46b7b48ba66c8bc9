package domain

import "strings"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity returns the normalized severity and whether it is a known value.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityWarning, SeverityCritical:
		return s, true
	default:
		return "", false
	}
}
