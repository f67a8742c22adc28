// Package schema defines the canonical data types shared across the
// AgentForge pipeline: validation findings and outcomes, the generated
// specification document, and the final implementation artifact.
package schema

// Severity represents the severity level of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category identifies which validator class produced a finding.
type Category string

const (
	CategoryStructural Category = "structural"
	CategorySafety     Category = "safety"
)

// ArtifactKind discriminates the two artifact shapes the pipeline produces.
type ArtifactKind string

const (
	// KindSpecification is the schema-shaped YAML agent specification.
	KindSpecification ArtifactKind = "specification"
	// KindImplementation is the grammar-shaped Python implementation unit.
	KindImplementation ArtifactKind = "implementation"
)

// Finding records a single validation issue on a generated artifact.
// Line is 1-based; 0 means the finding has no useful location.
type Finding struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
}

// Outcome is the result of validating one generated artifact text.
// It is derived deterministically from the text: validating identical
// input twice yields an identical Outcome.
type Outcome struct {
	Accepted  bool      `json:"accepted"`
	Findings  []Finding `json:"findings"`
	RiskScore int       `json:"risk_score"`
}

// ErrorFindings returns the error-severity findings in order.
func (o Outcome) ErrorFindings() []Finding {
	var errs []Finding
	for _, f := range o.Findings {
		if f.Severity == SeverityError {
			errs = append(errs, f)
		}
	}
	return errs
}

// HasErrors reports whether any finding carries error severity.
func (o Outcome) HasErrors() bool {
	for _, f := range o.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Requirement is the pipeline input: a natural-language task plus optional
// contextual key/value hints produced upstream. The pipeline core treats the
// fields as opaque prompt material.
type Requirement struct {
	Task    string            `json:"task"`
	Context map[string]string `json:"context,omitempty"`
}

// SpecDocument is the structured agent specification produced by the
// specification stage and consumed read-only by the implementation stage.
type SpecDocument struct {
	SchemaVersion string         `yaml:"schema_version" json:"schema_version"`
	AgentName     string         `yaml:"agent_name" json:"agent_name"`
	AgentType     string         `yaml:"agent_type" json:"agent_type"`
	Version       string         `yaml:"version" json:"version"`
	Description   string         `yaml:"description" json:"description"`
	Role          string         `yaml:"role" json:"role"`
	Capabilities  []string       `yaml:"capabilities" json:"capabilities"`
	Workflow      Workflow       `yaml:"workflow" json:"workflow"`
	Dependencies  Dependencies   `yaml:"dependencies" json:"dependencies"`
	DataSources   []string       `yaml:"data_sources,omitempty" json:"data_sources,omitempty"`
	Testing       *TestingConfig `yaml:"testing,omitempty" json:"testing,omitempty"`
}

// Workflow describes the ordered steps an agent performs, keyed by step name.
type Workflow struct {
	Steps map[string]string `yaml:"steps" json:"steps"`
}

// Dependencies declares what the generated implementation may rely on.
type Dependencies struct {
	Packages []string `yaml:"packages,omitempty" json:"packages,omitempty"`
	Services []string `yaml:"services,omitempty" json:"services,omitempty"`
}

// TestingConfig lists the scenarios a generated agent should be tested with.
type TestingConfig struct {
	TestScenarios []string `yaml:"test_scenarios,omitempty" json:"test_scenarios,omitempty"`
}

// Artifact is the terminal pipeline output: validated implementation source,
// the dependencies it declares via imports, and its safety risk score.
// Ownership passes to the caller once returned.
type Artifact struct {
	Source       string   `json:"source"`
	Dependencies []string `json:"dependencies"`
	RiskScore    int      `json:"risk_score"`
}
