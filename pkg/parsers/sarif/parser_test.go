package sarif

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "semgrep", "semanticVersion": "1.50.0", "rules": [
      {"id": "go.sqli", "name": "sql-injection", "properties": {"security-severity": "9.1"}},
      {"id": "go.weak-hash", "defaultConfiguration": {"level": "note"}},
      {"id": "go.unused"}
    ]}},
    "versionControlProvenance": [{"repositoryUri": "https://github.com/acme/api", "revisionId": "4b825dc6"}],
    "results": [
      {"ruleId": "go.sqli", "level": "error", "message": {"text": "tainted query"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "db/query.go"}, "region": {"startLine": 42, "endLine": 44}}}],
       "partialFingerprints": {"primaryLocationLineHash": "b", "a": "a"}},
      {"ruleId": "go.weak-hash", "message": {"text": "md5"}},
      {"ruleIndex": 2, "message": {"text": "unused"}},
      {"ruleId": "go.unused", "kind": "pass", "message": {"text": "ok"}},
      {"ruleId": "go.sqli", "level": "error", "message": {"text": "suppressed"}, "suppressions": [{"kind": "inSource"}]}
    ]
  }]
}`

func TestParseBytes(t *testing.T) {
	log, err := NewParser(nil).ParseBytes([]byte(sampleLog))
	require.NoError(t, err)

	require.Len(t, log.Runs, 1)
	assert.Len(t, log.Runs[0].Results, 3, "pass and suppressed results are dropped")
	assert.Equal(t, "4b825dc6", log.Revision())
}

func TestParseBytes_Options(t *testing.T) {
	log, err := NewParser(&Options{IncludePassed: true, IncludeSuppressed: true}).ParseBytes([]byte(sampleLog))
	require.NoError(t, err)
	assert.Len(t, log.Runs[0].Results, 5)

	log, err = NewParser(&Options{MaxResults: 2}).ParseBytes([]byte(sampleLog))
	require.NoError(t, err)
	assert.Len(t, log.Runs[0].Results, 2)
}

func TestParseBytes_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    *Options
		wantErr error
	}{
		{name: "not json", input: "{", wantErr: ErrInvalidSARIF},
		{name: "old version", input: `{"version":"1.0.0","runs":[{}]}`, wantErr: ErrUnsupportedVersion},
		{name: "no runs", input: `{"version":"2.1.0","runs":[]}`, wantErr: ErrEmptyRuns},
		{
			name:    "strict without tool name",
			input:   `{"version":"2.1.0","runs":[{"tool":{"driver":{}}}]}`,
			opts:    &Options{StrictMode: true},
			wantErr: ErrInvalidSARIF,
		},
		{
			name:    "strict bad level",
			input:   `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"x"}},"results":[{"level":"fatal","message":{"text":"m"}}]}]}`,
			opts:    &Options{StrictMode: true},
			wantErr: ErrInvalidSARIF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(tt.opts).ParseBytes([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestParse_MaxBytes(t *testing.T) {
	_, err := NewParser(&Options{MaxBytes: 10}).Parse(strings.NewReader(sampleLog))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = NewParser(&Options{MaxBytes: int64(len(sampleLog))}).Parse(strings.NewReader(sampleLog))
	assert.NoError(t, err)
}

func TestExtractFindings(t *testing.T) {
	log, err := NewParser(nil).ParseBytes([]byte(sampleLog))
	require.NoError(t, err)

	findings := ExtractFindings(log)
	require.Len(t, findings, 3)

	sqli := findings[0]
	assert.Equal(t, "go.sqli", sqli.RuleID)
	assert.Equal(t, "sql-injection", sqli.RuleName)
	assert.Equal(t, SeverityCritical, sqli.Severity)
	assert.Equal(t, "db/query.go", sqli.FilePath)
	assert.Equal(t, 42, sqli.StartLine)
	assert.Equal(t, "semgrep", sqli.Tool)
	assert.Equal(t, "1.50.0", sqli.ToolVersion)
	assert.Equal(t, "a", sqli.Fingerprint)

	assert.Equal(t, SeverityLow, findings[1].Severity, "rule default level note")
	assert.Equal(t, LevelNote, findings[1].Level)

	assert.Equal(t, "go.unused", findings[2].RuleID, "rule resolved by index")
	assert.Equal(t, SeverityMedium, findings[2].Severity, "level defaults to warning")
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		name string
		rule *Rule
		res  Result
		want string
	}{
		{name: "error", res: Result{Level: LevelError}, want: SeverityHigh},
		{name: "none", res: Result{Level: LevelNone}, want: SeverityInfo},
		{name: "numeric score", res: Result{Properties: Properties{"security-severity": 7.5}}, want: SeverityHigh},
		{name: "score below medium", res: Result{Properties: Properties{"security-severity": "3.9"}}, want: SeverityLow},
		{name: "zero score", res: Result{Properties: Properties{"security-severity": "0"}}, want: SeverityInfo},
		{
			name: "rule score beats level",
			rule: &Rule{Properties: Properties{"security-severity": "4.0"}},
			res:  Result{Level: LevelError},
			want: SeverityMedium,
		},
		{name: "unparseable score falls back", res: Result{Level: LevelNote, Properties: Properties{"security-severity": "high"}}, want: SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Severity(tt.rule, &tt.res))
		})
	}
}
