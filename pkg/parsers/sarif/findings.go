package sarif

import (
	"maps"
	"slices"
	"strconv"
)

// Severities assigned to findings.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Finding is a flattened result.
type Finding struct {
	RuleID      string `json:"ruleId"`
	RuleName    string `json:"ruleName,omitempty"`
	Severity    string `json:"severity"`
	Level       Level  `json:"level,omitempty"`
	Message     string `json:"message"`
	FilePath    string `json:"filePath,omitempty"`
	StartLine   int    `json:"startLine,omitempty"`
	EndLine     int    `json:"endLine,omitempty"`
	Tool        string `json:"tool"`
	ToolVersion string `json:"toolVersion,omitempty"`
	HelpURI     string `json:"helpUri,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ExtractFindings flattens every result of every run.
func ExtractFindings(log *Log) []Finding {
	var findings []Finding
	for i := range log.Runs {
		run := &log.Runs[i]
		version := run.Tool.Driver.SemanticVersion
		if version == "" {
			version = run.Tool.Driver.Version
		}
		for j := range run.Results {
			res := &run.Results[j]
			rule := run.RuleFor(res)
			f := Finding{
				RuleID:      res.RuleID,
				Severity:    Severity(rule, res),
				Level:       effectiveLevel(rule, res),
				Message:     res.Message.Text,
				Tool:        run.Tool.Driver.Name,
				ToolVersion: version,
				Fingerprint: fingerprint(res),
			}
			if rule != nil {
				f.RuleName = rule.Name
				f.HelpURI = rule.HelpURI
				if f.RuleID == "" {
					f.RuleID = rule.ID
				}
			}
			if len(res.Locations) > 0 && res.Locations[0].PhysicalLocation != nil {
				pl := res.Locations[0].PhysicalLocation
				if pl.ArtifactLocation != nil {
					f.FilePath = pl.ArtifactLocation.URI
				}
				if pl.Region != nil {
					f.StartLine = pl.Region.StartLine
					f.EndLine = pl.Region.EndLine
				}
			}
			findings = append(findings, f)
		}
	}
	return findings
}

// Severity grades a result. A numeric "security-severity" property on the
// result or its rule wins (CVSS bands); otherwise the level is used, with
// error as high, warning as medium and note as low.
func Severity(rule *Rule, res *Result) string {
	if score, ok := securitySeverity(res.Properties); ok {
		return fromScore(score)
	}
	if rule != nil {
		if score, ok := securitySeverity(rule.Properties); ok {
			return fromScore(score)
		}
	}
	switch effectiveLevel(rule, res) {
	case LevelError:
		return SeverityHigh
	case LevelWarning:
		return SeverityMedium
	case LevelNote:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// effectiveLevel applies the SARIF default of warning when neither the
// result nor its rule sets a level.
func effectiveLevel(rule *Rule, res *Result) Level {
	if res.Level != "" {
		return res.Level
	}
	if rule != nil && rule.DefaultConfiguration != nil && rule.DefaultConfiguration.Level != "" {
		return rule.DefaultConfiguration.Level
	}
	return LevelWarning
}

func securitySeverity(props Properties) (float64, bool) {
	v, ok := props["security-severity"]
	if !ok {
		return 0, false
	}
	switch s := v.(type) {
	case float64:
		return s, true
	case string:
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func fromScore(score float64) string {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// fingerprint picks a stable fingerprint: full fingerprints before partial
// ones, lowest key first.
func fingerprint(res *Result) string {
	for _, fps := range []map[string]string{res.Fingerprints, res.PartialFingerprints} {
		if len(fps) == 0 {
			continue
		}
		keys := slices.Sorted(maps.Keys(fps))
		return fps[keys[0]]
	}
	return ""
}
