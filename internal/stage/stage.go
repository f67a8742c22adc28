// Package stage binds the generic retry loop to concrete artifact kinds:
// the specification stage produces a validated YAML agent specification and
// the implementation stage produces a validated Python implementation unit.
package stage

import (
	"fmt"
	"time"

	"github.com/dshills/agentforge/internal/retry"
	"github.com/dshills/agentforge/internal/schema"
)

// Options carries the generation parameters shared by both stages.
type Options struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Failure is a terminal per-stage failure. It carries the full retry session
// so callers can see every attempt and every finding.
type Failure struct {
	Stage   schema.ArtifactKind
	Session *retry.Session
	Err     error
}

func (f *Failure) Error() string {
	attempts := 0
	if f.Session != nil {
		attempts = len(f.Session.Attempts)
	}
	return fmt.Sprintf("stage %s failed after %d attempts: %v", f.Stage, attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// CompositeValidator chains a structural checker and a safety scanner into a
// single retry validator. Safety scanning is skipped whenever the structural
// checker reports an error: a malformed artifact cannot be meaningfully
// scanned. Acceptance requires zero error findings and a risk score at or
// below the threshold.
func CompositeValidator(
	structural func(string) []schema.Finding,
	safety func(string) ([]schema.Finding, int),
	riskThreshold int,
) retry.Validator {
	return func(raw string) schema.Outcome {
		out := schema.Outcome{Findings: structural(raw)}
		if out.HasErrors() {
			return out
		}
		safetyFindings, risk := safety(raw)
		out.Findings = append(out.Findings, safetyFindings...)
		out.RiskScore = risk
		out.Accepted = !out.HasErrors() && risk <= riskThreshold
		return out
	}
}

// StructuralValidator wraps a structural checker alone into a retry
// validator, for artifact kinds with no safety dimension.
func StructuralValidator(structural func(string) []schema.Finding) retry.Validator {
	return func(raw string) schema.Outcome {
		out := schema.Outcome{Findings: structural(raw)}
		out.Accepted = !out.HasErrors()
		return out
	}
}
