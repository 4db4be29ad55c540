package scan

import "strings"

// Severity levels used in result summaries.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Summary counts findings by severity.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Total returns the number of findings across all severities.
func (s Summary) Total() int {
	return s.Critical + s.High + s.Medium + s.Low + s.Info
}

// Add increments the counter for severity. Unknown values count as info.
func (s *Summary) Add(severity string) {
	switch strings.ToLower(severity) {
	case SeverityCritical:
		s.Critical++
	case SeverityHigh, "error":
		s.High++
	case SeverityMedium, "warning":
		s.Medium++
	case SeverityLow, "note":
		s.Low++
	default:
		s.Info++
	}
}
