package sarif

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Errors.
var (
	ErrInvalidSARIF       = errors.New("invalid SARIF format")
	ErrUnsupportedVersion = errors.New("unsupported SARIF version")
	ErrEmptyRuns          = errors.New("SARIF log contains no runs")
	ErrTooLarge           = errors.New("SARIF log too large")
)

// SupportedVersions lists the accepted log versions.
var SupportedVersions = []string{"2.1.0"}

// Options configures a Parser.
type Options struct {
	// StrictMode requires a tool name and a message on every result and
	// rejects unknown levels and kinds.
	StrictMode bool
	// IncludePassed keeps results of kind "pass" and "notApplicable".
	IncludePassed bool
	// IncludeSuppressed keeps suppressed results.
	IncludeSuppressed bool
	// MaxResults caps results per run; 0 means no cap.
	MaxResults int
	// MaxBytes caps the input size for Parse; 0 means no cap.
	MaxBytes int64
}

// Parser decodes SARIF logs. It is safe for concurrent use.
type Parser struct {
	opts Options
}

// NewParser creates a Parser. A nil opts uses the zero Options.
func NewParser(opts *Options) *Parser {
	p := &Parser{}
	if opts != nil {
		p.opts = *opts
	}
	return p
}

// Parse reads and decodes a log from r.
func (p *Parser) Parse(r io.Reader) (*Log, error) {
	if p.opts.MaxBytes > 0 {
		r = io.LimitReader(r, p.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read SARIF: %w", err)
	}
	if p.opts.MaxBytes > 0 && int64(len(data)) > p.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	return p.ParseBytes(data)
}

// ParseBytes decodes a log, validates it and drops filtered results.
func (p *Parser) ParseBytes(data []byte) (*Log, error) {
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSARIF, err)
	}
	if !slices.Contains(SupportedVersions, log.Version) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, log.Version)
	}
	if len(log.Runs) == 0 {
		return nil, ErrEmptyRuns
	}
	if p.opts.StrictMode {
		if err := validateStrict(&log); err != nil {
			return nil, err
		}
	}

	for i := range log.Runs {
		log.Runs[i].Results = p.filter(log.Runs[i].Results)
	}
	return &log, nil
}

func validateStrict(log *Log) error {
	for i, run := range log.Runs {
		if run.Tool.Driver.Name == "" {
			return fmt.Errorf("%w: runs[%d] has no tool name", ErrInvalidSARIF, i)
		}
		for j, res := range run.Results {
			switch {
			case res.Message.Text == "" && res.Message.ID == "":
				return fmt.Errorf("%w: runs[%d].results[%d] has no message", ErrInvalidSARIF, i, j)
			case !res.Level.IsValid():
				return fmt.Errorf("%w: runs[%d].results[%d] has level %q", ErrInvalidSARIF, i, j, res.Level)
			case !res.Kind.IsValid():
				return fmt.Errorf("%w: runs[%d].results[%d] has kind %q", ErrInvalidSARIF, i, j, res.Kind)
			}
		}
	}
	return nil
}

func (p *Parser) filter(results []Result) []Result {
	kept := results[:0]
	for _, res := range results {
		if !p.opts.IncludePassed && (res.Kind == KindPass || res.Kind == KindNotApplicable) {
			continue
		}
		if !p.opts.IncludeSuppressed && len(res.Suppressions) > 0 {
			continue
		}
		kept = append(kept, res)
		if p.opts.MaxResults > 0 && len(kept) >= p.opts.MaxResults {
			break
		}
	}
	return kept
}

// Revision returns the first revision recorded in the log's version control
// provenance, or "".
func (l *Log) Revision() string {
	for _, run := range l.Runs {
		for _, vc := range run.VersionControlProvenance {
			if vc.RevisionID != "" {
				return vc.RevisionID
			}
		}
	}
	return ""
}

// RuleFor returns the rule a result refers to, or nil.
func (r *Run) RuleFor(res *Result) *Rule {
	rules := r.Tool.Driver.Rules
	if res.RuleIndex != nil && *res.RuleIndex >= 0 && *res.RuleIndex < len(rules) {
		return &rules[*res.RuleIndex]
	}
	if res.RuleID == "" {
		return nil
	}
	for i := range rules {
		if rules[i].ID == res.RuleID {
			return &rules[i]
		}
	}
	return nil
}
