package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dshills/agentforge/internal/llm"
	"github.com/dshills/agentforge/internal/profile"
	"github.com/dshills/agentforge/internal/retry"
	"github.com/dshills/agentforge/internal/schema"
	"github.com/dshills/agentforge/internal/validate"
)

// Specification turns a requirement into a validated SpecDocument.
type Specification struct {
	Client  *llm.Client
	Profile profile.Profile
	Options Options
	Logger  *zap.Logger
}

// Run drives the retry loop for the specification artifact. On success it
// returns the parsed document and the session; on failure the returned error
// is a *Failure carrying the session.
func (s *Specification) Run(ctx context.Context, req schema.Requirement, maxAttempts int) (*schema.SpecDocument, *retry.Session, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	producer := func(ctx context.Context, feedback string) (string, error) {
		raw, err := s.Client.Generate(ctx, llm.Request{
			SystemPrompt: systemPrompt(specSystemPrompt, s.Profile),
			UserPrompt:   specUserPrompt(req, feedback),
			MaxTokens:    s.Options.MaxTokens,
			Temperature:  s.Options.Temperature,
			Timeout:      s.Options.Timeout,
		})
		if err != nil {
			return "", err
		}
		return llm.StripFences(raw), nil
	}

	raw, session, err := retry.Run(ctx, maxAttempts, producer,
		StructuralValidator(validate.CheckSpecification), logger)
	if err != nil {
		return nil, session, &Failure{Stage: schema.KindSpecification, Session: session, Err: err}
	}

	doc, err := parseSpecDocument(raw)
	if err != nil {
		return nil, session, &Failure{Stage: schema.KindSpecification, Session: session, Err: err}
	}

	logger.Info("specification accepted",
		zap.String("session", session.ID),
		zap.Int("attempts", len(session.Attempts)),
		zap.String("agent_name", doc.AgentName),
		zap.String("agent_type", doc.AgentType))
	return doc, session, nil
}

// parseSpecDocument unmarshals validated YAML into the document type. The
// structural validator has already checked field shapes, so a failure here
// means the validator and the document type have drifted apart.
func parseSpecDocument(raw string) (*schema.SpecDocument, error) {
	var doc schema.SpecDocument
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("stage: unmarshal accepted specification: %w", err)
	}
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = "1"
	}
	return &doc, nil
}
