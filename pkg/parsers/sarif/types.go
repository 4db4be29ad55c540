// Package sarif reads SARIF 2.1.0 logs uploaded as scan results. Only the
// parts of the format needed to list and grade findings are modelled.
package sarif

// Log is the root SARIF object.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema,omitempty"`
	Runs    []Run  `json:"runs"`
}

// Run is one invocation of one tool.
type Run struct {
	Tool                     Tool                    `json:"tool"`
	Results                  []Result                `json:"results,omitempty"`
	VersionControlProvenance []VersionControlDetails `json:"versionControlProvenance,omitempty"`
	Properties               Properties              `json:"properties,omitempty"`
}

// VersionControlDetails identifies the revision a run analyzed.
type VersionControlDetails struct {
	RepositoryURI string `json:"repositoryUri"`
	RevisionID    string `json:"revisionId,omitempty"`
	Branch        string `json:"branch,omitempty"`
}

// Tool describes the analyzer.
type Tool struct {
	Driver ToolComponent `json:"driver"`
}

// ToolComponent is the tool driver with its rule metadata.
type ToolComponent struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// SemanticVersion is preferred over Version when present.
	SemanticVersion string `json:"semanticVersion,omitempty"`
	InformationURI  string `json:"informationUri,omitempty"`
	Rules           []Rule `json:"rules,omitempty"`
}

// Rule is a reportingDescriptor for a rule.
type Rule struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name,omitempty"`
	ShortDescription     *MultiformatMessage `json:"shortDescription,omitempty"`
	FullDescription      *MultiformatMessage `json:"fullDescription,omitempty"`
	HelpURI              string              `json:"helpUri,omitempty"`
	DefaultConfiguration *RuleConfiguration  `json:"defaultConfiguration,omitempty"`
	Properties           Properties          `json:"properties,omitempty"`
}

// RuleConfiguration carries a rule's default level.
type RuleConfiguration struct {
	Level Level `json:"level,omitempty"`
}

// Result is a single finding.
type Result struct {
	RuleID              string            `json:"ruleId,omitempty"`
	RuleIndex           *int              `json:"ruleIndex,omitempty"`
	Kind                Kind              `json:"kind,omitempty"`
	Level               Level             `json:"level,omitempty"`
	Message             Message           `json:"message"`
	Locations           []Location        `json:"locations,omitempty"`
	Fingerprints        map[string]string `json:"fingerprints,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Suppressions        []Suppression     `json:"suppressions,omitempty"`
	Properties          Properties        `json:"properties,omitempty"`
}

// Location points into an artifact.
type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation,omitempty"`
}

// PhysicalLocation is a file and region.
type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
	Region           *Region           `json:"region,omitempty"`
}

// ArtifactLocation names a file.
type ArtifactLocation struct {
	URI       string `json:"uri,omitempty"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

// Region is a line range.
type Region struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

// Message is plain text; Markdown is ignored.
type Message struct {
	Text string `json:"text,omitempty"`
	ID   string `json:"id,omitempty"`
}

// MultiformatMessage is a rule description.
type MultiformatMessage struct {
	Text string `json:"text"`
}

// Suppression marks a result as suppressed in source or externally.
type Suppression struct {
	Kind   string `json:"kind"`
	Status string `json:"status,omitempty"`
}

// Properties is a SARIF property bag.
type Properties map[string]any

// Level is a result level.
type Level string

const (
	LevelNone    Level = "none"
	LevelNote    Level = "note"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// IsValid reports whether l is a SARIF level or empty.
func (l Level) IsValid() bool {
	switch l {
	case LevelNone, LevelNote, LevelWarning, LevelError, "":
		return true
	}
	return false
}

// Kind is a result kind.
type Kind string

const (
	KindNotApplicable Kind = "notApplicable"
	KindPass          Kind = "pass"
	KindFail          Kind = "fail"
	KindReview        Kind = "review"
	KindOpen          Kind = "open"
	KindInformational Kind = "informational"
)

// IsValid reports whether k is a SARIF kind or empty.
func (k Kind) IsValid() bool {
	switch k {
	case KindNotApplicable, KindPass, KindFail, KindReview, KindOpen, KindInformational, "":
		return true
	}
	return false
}
