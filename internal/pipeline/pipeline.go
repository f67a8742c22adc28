// Package pipeline composes the specification and implementation stages into
// the end-to-end requirement-to-artifact driver.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/agentforge/internal/llm"
	"github.com/dshills/agentforge/internal/profile"
	"github.com/dshills/agentforge/internal/retry"
	"github.com/dshills/agentforge/internal/schema"
	"github.com/dshills/agentforge/internal/stage"
)

// Config carries every knob the driver needs. Zero values are filled in by
// Normalize.
type Config struct {
	Provider            string
	Model               string
	BaseURL             string
	Profile             string
	MaxSpecAttempts     int
	MaxImplAttempts     int
	MaxTokens           int
	Temperature         float64
	GenerationTimeout   time.Duration
	SafetyRiskThreshold int
}

// Normalize fills unset fields with working defaults. The risk threshold
// deliberately stays at zero: any detected risk blocks acceptance unless the
// operator raises it.
func (c *Config) Normalize() {
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
	if c.Profile == "" {
		c.Profile = "general"
	}
	if c.MaxSpecAttempts < 1 {
		c.MaxSpecAttempts = 3
	}
	if c.MaxImplAttempts < 1 {
		c.MaxImplAttempts = 3
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8192
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 120 * time.Second
	}
}

// Result is the complete record of one pipeline run: the intermediate
// specification, the final artifact, and the retry session of each stage.
// Sessions are present even for the failed stage; stages that never ran have
// a nil session.
type Result struct {
	Requirement schema.Requirement   `json:"requirement"`
	Spec        *schema.SpecDocument `json:"spec,omitempty"`
	Artifact    *schema.Artifact     `json:"artifact,omitempty"`
	SpecSession *retry.Session       `json:"spec_session,omitempty"`
	ImplSession *retry.Session       `json:"impl_session,omitempty"`
	Elapsed     time.Duration        `json:"elapsed"`
}

// Driver runs the two-stage pipeline against a single provider client.
type Driver struct {
	cfg    Config
	client *llm.Client
	prof   profile.Profile
	logger *zap.Logger
}

// New builds a driver from a normalized config and a ready client.
func New(cfg Config, client *llm.Client, logger *zap.Logger) (*Driver, error) {
	cfg.Normalize()
	if client == nil {
		return nil, fmt.Errorf("pipeline: client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prof, err := profile.Load(cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Driver{cfg: cfg, client: client, prof: prof, logger: logger}, nil
}

// Run executes the pipeline for one requirement. A specification-stage
// failure stops the run before the implementation stage is entered; the
// returned Result always carries whatever sessions completed, so callers can
// report every attempt even on failure.
func (d *Driver) Run(ctx context.Context, req schema.Requirement) (*Result, error) {
	start := time.Now()
	result := &Result{Requirement: req}

	if req.Task == "" {
		return result, fmt.Errorf("pipeline: requirement task is empty")
	}

	opts := stage.Options{
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
		Timeout:     d.cfg.GenerationTimeout,
	}

	d.logger.Info("pipeline start",
		zap.String("provider", d.cfg.Provider),
		zap.String("model", d.cfg.Model),
		zap.String("profile", d.prof.Name))

	specStage := &stage.Specification{
		Client:  d.client,
		Profile: d.prof,
		Options: opts,
		Logger:  d.logger,
	}
	doc, specSession, err := specStage.Run(ctx, req, d.cfg.MaxSpecAttempts)
	result.SpecSession = specSession
	if err != nil {
		result.Elapsed = time.Since(start)
		return result, err
	}
	result.Spec = doc

	implStage := &stage.Implementation{
		Client:        d.client,
		Profile:       d.prof,
		Options:       opts,
		RiskThreshold: d.cfg.SafetyRiskThreshold,
		Logger:        d.logger,
	}
	artifact, implSession, err := implStage.Run(ctx, doc, d.cfg.MaxImplAttempts)
	result.ImplSession = implSession
	result.Elapsed = time.Since(start)
	if err != nil {
		return result, err
	}
	result.Artifact = artifact

	d.logger.Info("pipeline complete",
		zap.String("agent_name", doc.AgentName),
		zap.Int("spec_attempts", len(specSession.Attempts)),
		zap.Int("impl_attempts", len(implSession.Attempts)),
		zap.Int("risk_score", artifact.RiskScore),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}
