//go:build integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentforge/internal/llm"
	"github.com/dshills/agentforge/internal/pipeline"
)

const specMockResponse = `schema_version: "1"
agent_name: stock_alert
agent_type: monitoring
version: "1.0.0"
description: Watches a stock price and reports threshold crossings.
role: primary_agent
capabilities:
  - poll_price
  - report_crossing
workflow:
  steps:
    poll: Poll the configured price feed
    report: Report crossings above the threshold
dependencies:
  packages:
    - requests
  services:
    - price_feed
`

const implMockResponse = `import os
import logging
import requests

logger = logging.getLogger(__name__)


def main() -> None:
    feed = os.getenv("PRICE_FEED_URL", "")
    threshold = float(os.getenv("ALERT_THRESHOLD", "100"))
    logger.info("watching %s above %.2f", feed, threshold)
    print(f"RESULT: feed={feed} threshold={threshold}")


if __name__ == "__main__":
    main()
`

// mockMultiProvider returns successive responses from a list.
type mockMultiProvider struct {
	responses []string
	idx       int
}

func (m *mockMultiProvider) Complete(ctx context.Context, system, user string, maxTokens int, temp float64) (string, error) {
	if m.idx >= len(m.responses) {
		return "", fmt.Errorf("mock: no more responses")
	}
	r := m.responses[m.idx]
	m.idx++
	return r, nil
}

// errorProvider always returns an error from Complete.
type errorProvider struct{}

func (errorProvider) Complete(ctx context.Context, system, user string, maxTokens int, temp float64) (string, error) {
	return "", fmt.Errorf("simulated API error")
}

func injectMock(t *testing.T, responses []string) {
	t.Helper()
	orig := llm.NewProvider
	llm.NewProvider = func(_, _, _ string) (llm.Provider, error) {
		return &mockMultiProvider{responses: responses}, nil
	}
	t.Cleanup(func() { llm.NewProvider = orig })
}

func injectErrProvider(t *testing.T) {
	t.Helper()
	orig := llm.NewProvider
	llm.NewProvider = func(_, _, _ string) (llm.Provider, error) {
		return errorProvider{}, nil
	}
	t.Cleanup(func() { llm.NewProvider = orig })
}

func writeTestConfig(t *testing.T, outDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("output:\n  dir: %s\n  format: json\n", outDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runGenerate(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newGenerateCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestIntegration_GenerateWritesArtifacts(t *testing.T) {
	injectMock(t, []string{specMockResponse, implMockResponse})
	outDir := t.TempDir()
	cfg := writeTestConfig(t, outDir)

	err := runGenerate(t, "watch a stock price", "--config", cfg)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(outDir, "stock_alert_report.json"))
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(b, &result))
	assert.Equal(t, "stock_alert", result.Spec.AgentName)
	assert.Equal(t, []string{"requests"}, result.Artifact.Dependencies)
	assert.Equal(t, 0, result.Artifact.RiskScore)

	spec, err := os.ReadFile(filepath.Join(outDir, "stock_alert_spec.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(spec), "agent_name: stock_alert")

	impl, err := os.ReadFile(filepath.Join(outDir, "stock_alert.py"))
	require.NoError(t, err)
	assert.Contains(t, string(impl), "def main()")
}

func TestIntegration_GenerateRepairsInvalidSpec(t *testing.T) {
	injectMock(t, []string{"agent_name: partial\n", specMockResponse, implMockResponse})
	outDir := t.TempDir()
	cfg := writeTestConfig(t, outDir)

	err := runGenerate(t, "watch a stock price", "--config", cfg)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(outDir, "stock_alert_report.json"))
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(b, &result))
	require.NotNil(t, result.SpecSession)
	assert.Len(t, result.SpecSession.Attempts, 2)
}

func TestIntegration_SpecFailureStillWritesReport(t *testing.T) {
	injectMock(t, []string{"garbage: [", "garbage: [", "garbage: ["})
	outDir := t.TempDir()
	cfg := writeTestConfig(t, outDir)

	err := runGenerate(t, "anything", "--config", cfg)
	require.Error(t, err)

	// The run failed but the session record is still persisted for diagnosis.
	b, err := os.ReadFile(filepath.Join(outDir, "agent_report.json"))
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(b, &result))
	assert.Nil(t, result.Spec)
	require.NotNil(t, result.SpecSession)
	assert.Len(t, result.SpecSession.Attempts, 3)
}

func TestIntegration_ProviderError(t *testing.T) {
	injectErrProvider(t)
	cfg := writeTestConfig(t, t.TempDir())

	err := runGenerate(t, "anything", "--config", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}
