package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/dshills/agentforge/internal/llm"
	"github.com/dshills/agentforge/internal/profile"
	"github.com/dshills/agentforge/internal/retry"
	"github.com/dshills/agentforge/internal/safety"
	"github.com/dshills/agentforge/internal/schema"
	"github.com/dshills/agentforge/internal/validate"
)

// Implementation turns a SpecDocument into a validated Artifact. The
// document is read-only here: the stage renders it into the prompt and never
// modifies it.
type Implementation struct {
	Client        *llm.Client
	Profile       profile.Profile
	Options       Options
	RiskThreshold int
	Logger        *zap.Logger
}

// Run drives the retry loop for the implementation artifact with the
// combined structural+safety validator.
func (s *Implementation) Run(ctx context.Context, doc *schema.SpecDocument, maxAttempts int) (*schema.Artifact, *retry.Session, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	producer := func(ctx context.Context, feedback string) (string, error) {
		raw, err := s.Client.Generate(ctx, llm.Request{
			SystemPrompt: systemPrompt(implSystemPrompt, s.Profile),
			UserPrompt:   implUserPrompt(doc, feedback),
			MaxTokens:    s.Options.MaxTokens,
			Temperature:  s.Options.Temperature,
			Timeout:      s.Options.Timeout,
		})
		if err != nil {
			return "", err
		}
		return llm.StripFences(raw), nil
	}

	validator := CompositeValidator(validate.CheckImplementation, safety.Scan, s.RiskThreshold)

	raw, session, err := retry.Run(ctx, maxAttempts, producer, validator, logger)
	auditSafetyNearMisses(session, logger)
	if err != nil {
		return nil, session, &Failure{Stage: schema.KindImplementation, Session: session, Err: err}
	}

	artifact := &schema.Artifact{
		Source:       raw,
		Dependencies: validate.CollectImports(raw),
		RiskScore:    session.LastOutcome().RiskScore,
	}

	logger.Info("implementation accepted",
		zap.String("session", session.ID),
		zap.Int("attempts", len(session.Attempts)),
		zap.Strings("dependencies", artifact.Dependencies),
		zap.Int("risk_score", artifact.RiskScore))
	return artifact, session, nil
}

// auditSafetyNearMisses surfaces safety errors from earlier attempts even
// when a later attempt was accepted. Recurring secret leaks across attempts
// are a signal operators want to see regardless of the final outcome.
func auditSafetyNearMisses(session *retry.Session, logger *zap.Logger) {
	if session == nil {
		return
	}
	nearMisses := 0
	for _, outcome := range session.Outcomes {
		for _, f := range outcome.Findings {
			if f.Category == schema.CategorySafety && f.Severity == schema.SeverityError {
				nearMisses++
			}
		}
	}
	if nearMisses > 0 {
		logger.Warn("safety findings recorded during session",
			zap.String("session", session.ID),
			zap.Int("safety_error_findings", nearMisses))
	}
}
