package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentforge/internal/llm"
	"github.com/dshills/agentforge/internal/profile"
	"github.com/dshills/agentforge/internal/retry"
	"github.com/dshills/agentforge/internal/schema"
)

// mockProvider is a test double for llm.Provider.
type mockProvider struct {
	responses []string // returned in order; last entry is repeated if list exhausted
	err       error
	callCount int
}

func (m *mockProvider) Complete(_ context.Context, _, _ string, _ int, _ float64) (string, error) {
	m.callCount++
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("mockProvider: no responses configured")
	}
	idx := m.callCount - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

const validSpecYAML = `schema_version: "1"
agent_name: order_checker
agent_type: validation
version: "1.0.0"
description: Validates incoming orders against business rules.
role: primary_agent
capabilities:
  - check_required_fields
workflow:
  steps:
    load: Load the order payload
    check: Apply each rule and collect failures
dependencies:
  packages: []
  services: []
`

const validPython = `import os
import logging

logger = logging.getLogger(__name__)


def main() -> None:
    threshold = os.getenv("THRESHOLD", "10")
    logger.info("checking with threshold %s", threshold)
    print(f"RESULT: threshold={threshold}")


if __name__ == "__main__":
    main()
`

func testOptions() Options {
	return Options{MaxTokens: 4096, Temperature: 0.2, Timeout: 5 * time.Second}
}

func loadGeneralProfile(t *testing.T) profile.Profile {
	t.Helper()
	prof, err := profile.Load("general")
	require.NoError(t, err)
	return prof
}

func TestSpecification_AcceptsValidFirstAttempt(t *testing.T) {
	mp := &mockProvider{responses: []string{validSpecYAML}}
	s := &Specification{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	doc, session, err := s.Run(context.Background(), schema.Requirement{Task: "validate orders"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, mp.callCount)
	assert.Equal(t, retry.StateAccepted, session.Terminal)
	assert.Equal(t, "order_checker", doc.AgentName)
	assert.Equal(t, "validation", doc.AgentType)
	assert.Equal(t, "Apply each rule and collect failures", doc.Workflow.Steps["check"])
}

func TestSpecification_RetriesWithFeedback(t *testing.T) {
	// First response is missing required sections; the retry must carry those
	// findings and the second response is accepted.
	mp := &mockProvider{responses: []string{"agent_name: partial\n", validSpecYAML}}
	s := &Specification{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	doc, session, err := s.Run(context.Background(), schema.Requirement{Task: "validate orders"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, mp.callCount)
	require.Len(t, session.Attempts, 2)
	assert.Contains(t, session.Attempts[1].Feedback, "agent_type")
	assert.Equal(t, "order_checker", doc.AgentName)
}

func TestSpecification_StripsMarkdownFences(t *testing.T) {
	mp := &mockProvider{responses: []string{"```yaml\n" + validSpecYAML + "```"}}
	s := &Specification{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	doc, _, err := s.Run(context.Background(), schema.Requirement{Task: "validate orders"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "order_checker", doc.AgentName)
}

func TestSpecification_ExhaustionReturnsFailure(t *testing.T) {
	mp := &mockProvider{responses: []string{"not: [valid"}}
	s := &Specification{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	_, session, err := s.Run(context.Background(), schema.Requirement{Task: "anything"}, 2)
	assert.Equal(t, 2, mp.callCount)
	assert.Equal(t, retry.StateExhausted, session.Terminal)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, schema.KindSpecification, failure.Stage)
	assert.Same(t, session, failure.Session)

	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestSpecification_DefaultsSchemaVersion(t *testing.T) {
	noVersion := validSpecYAML[len("schema_version: \"1\"\n"):]
	mp := &mockProvider{responses: []string{noVersion}}
	s := &Specification{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	doc, _, err := s.Run(context.Background(), schema.Requirement{Task: "anything"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.SchemaVersion)
}

func testSpecDocument() *schema.SpecDocument {
	return &schema.SpecDocument{
		SchemaVersion: "1",
		AgentName:     "order_checker",
		AgentType:     "validation",
		Version:       "1.0.0",
		Description:   "Validates incoming orders.",
		Role:          "primary_agent",
		Capabilities:  []string{"check_required_fields"},
		Workflow:      schema.Workflow{Steps: map[string]string{"check": "Apply rules"}},
	}
}

func TestImplementation_AcceptsCleanSource(t *testing.T) {
	mp := &mockProvider{responses: []string{validPython}}
	s := &Implementation{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	artifact, session, err := s.Run(context.Background(), testSpecDocument(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, mp.callCount)
	assert.Equal(t, retry.StateAccepted, session.Terminal)
	assert.Equal(t, 0, artifact.RiskScore)
	assert.Empty(t, artifact.Dependencies)
	assert.Contains(t, artifact.Source, "def main()")
}

func TestImplementation_CollectsDependencies(t *testing.T) {
	src := "import os\nimport requests\nimport pandas\n\nvalue = os.getenv(\"X\")\n"
	mp := &mockProvider{responses: []string{src}}
	s := &Implementation{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	artifact, _, err := s.Run(context.Background(), testSpecDocument(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"pandas", "requests"}, artifact.Dependencies)
}

func TestImplementation_RetriesAfterSafetyRejection(t *testing.T) {
	unsafe := "import os\n\nresult = eval(os.getenv(\"EXPR\", \"1\"))\n"
	mp := &mockProvider{responses: []string{unsafe, validPython}}
	s := &Implementation{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	artifact, session, err := s.Run(context.Background(), testSpecDocument(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, mp.callCount)
	require.Len(t, session.Attempts, 2)
	assert.Contains(t, session.Attempts[1].Feedback, "eval")
	assert.Equal(t, 0, artifact.RiskScore)
}

func TestImplementation_RiskAboveThresholdBlocks(t *testing.T) {
	// Hardcoded secret scores 3; with the default zero threshold every
	// attempt is rejected even though the source is syntactically clean.
	leaky := "import logging\n\npassword = \"hunter2\"\nlogging.info(\"connecting\")\n"
	mp := &mockProvider{responses: []string{leaky}}
	s := &Implementation{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	_, session, err := s.Run(context.Background(), testSpecDocument(), 2)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, schema.KindImplementation, failure.Stage)
	assert.Equal(t, retry.StateExhausted, session.Terminal)
	assert.Equal(t, 3, session.LastOutcome().RiskScore)
}

func TestImplementation_RaisedThresholdAdmitsRisk(t *testing.T) {
	leaky := "import logging\n\npassword = \"hunter2\"\nlogging.info(\"connecting\")\n"
	mp := &mockProvider{responses: []string{leaky}}
	s := &Implementation{
		Client:        llm.NewClient(mp, nil),
		Profile:       loadGeneralProfile(t),
		Options:       testOptions(),
		RiskThreshold: 5,
	}

	_, session, err := s.Run(context.Background(), testSpecDocument(), 1)
	// Risk within threshold is not enough on its own: the secret finding is
	// error severity, so acceptance is still refused.
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, session.LastOutcome().RiskScore)
}

func TestImplementation_BackendFailureEscalates(t *testing.T) {
	mp := &mockProvider{err: errors.New("backend down")}
	s := &Implementation{
		Client:  llm.NewClient(mp, nil),
		Profile: loadGeneralProfile(t),
		Options: testOptions(),
	}

	_, session, err := s.Run(context.Background(), testSpecDocument(), 3)
	assert.Equal(t, 1, mp.callCount, "backend failure must not consume retry budget")
	assert.Empty(t, session.Attempts)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	var genErr *retry.GenerationError
	assert.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestCompositeValidator_SkipsSafetyOnStructuralErrors(t *testing.T) {
	structuralCalls, safetyCalls := 0, 0
	structural := func(string) []schema.Finding {
		structuralCalls++
		return []schema.Finding{{Severity: schema.SeverityError, Category: schema.CategoryStructural, Message: "broken"}}
	}
	safetyFn := func(string) ([]schema.Finding, int) {
		safetyCalls++
		return nil, 0
	}

	out := CompositeValidator(structural, safetyFn, 0)("whatever")
	assert.False(t, out.Accepted)
	assert.Equal(t, 1, structuralCalls)
	assert.Zero(t, safetyCalls, "safety scan must not run on structurally broken input")
}

func TestCompositeValidator_MergesFindings(t *testing.T) {
	structural := func(string) []schema.Finding {
		return []schema.Finding{{Severity: schema.SeverityWarning, Category: schema.CategoryStructural, Message: "odd"}}
	}
	safetyFn := func(string) ([]schema.Finding, int) {
		return []schema.Finding{{Severity: schema.SeverityWarning, Category: schema.CategorySafety, Message: "no env"}}, 0
	}

	out := CompositeValidator(structural, safetyFn, 0)("whatever")
	assert.True(t, out.Accepted, "warnings alone never block acceptance")
	assert.Len(t, out.Findings, 2)
	assert.Equal(t, 0, out.RiskScore)
}

func TestCompositeValidator_RiskThreshold(t *testing.T) {
	structural := func(string) []schema.Finding { return nil }
	safetyFn := func(string) ([]schema.Finding, int) { return nil, 4 }

	assert.False(t, CompositeValidator(structural, safetyFn, 3)("x").Accepted)
	assert.True(t, CompositeValidator(structural, safetyFn, 4)("x").Accepted)
}

func TestStructuralValidator(t *testing.T) {
	pass := StructuralValidator(func(string) []schema.Finding { return nil })
	assert.True(t, pass("x").Accepted)

	fail := StructuralValidator(func(string) []schema.Finding {
		return []schema.Finding{{Severity: schema.SeverityError, Message: "nope"}}
	})
	assert.False(t, fail("x").Accepted)
}
