// Package render produces output from a completed pipeline.Result.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/agentforge/internal/pipeline"
	"github.com/dshills/agentforge/internal/retry"
	"github.com/dshills/agentforge/internal/schema"
)

// RenderJSON produces a pretty-printed JSON representation of the run result.
// The output round-trips through json.Unmarshal back to an equal Result.
func RenderJSON(result *pipeline.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("render: nil result")
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a Markdown summary of the run, suitable for
// terminal output or a run log. Every session finding with error severity
// will appear in the output.
func RenderMarkdown(result *pipeline.Result) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder

	sb.WriteString("## AgentForge Run Report\n\n")
	fmt.Fprintf(&sb, "**Task:** %s  \n", mdEscape(result.Requirement.Task))
	fmt.Fprintf(&sb, "**Elapsed:** %s\n\n", result.Elapsed.Round(time.Millisecond))

	if result.Spec != nil {
		sb.WriteString("## Specification\n\n")
		fmt.Fprintf(&sb, "**Agent:** %s (%s, %s)  \n",
			result.Spec.AgentName, result.Spec.AgentType, result.Spec.Role)
		fmt.Fprintf(&sb, "**Version:** %s  \n", result.Spec.Version)
		fmt.Fprintf(&sb, "**Description:** %s\n\n", mdEscape(result.Spec.Description))
		if len(result.Spec.Capabilities) > 0 {
			sb.WriteString("**Capabilities:**\n\n")
			for _, c := range result.Spec.Capabilities {
				fmt.Fprintf(&sb, "- %s\n", mdEscape(c))
			}
			sb.WriteString("\n")
		}
	}

	writeSession(&sb, "Specification Stage", result.SpecSession)
	writeSession(&sb, "Implementation Stage", result.ImplSession)

	if result.Artifact != nil {
		sb.WriteString("## Artifact\n\n")
		fmt.Fprintf(&sb, "**Risk score:** %d  \n", result.Artifact.RiskScore)
		if len(result.Artifact.Dependencies) > 0 {
			fmt.Fprintf(&sb, "**Dependencies:** %s\n",
				strings.Join(result.Artifact.Dependencies, ", "))
		} else {
			sb.WriteString("**Dependencies:** none\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// writeSession renders one stage's retry history: attempt count, terminal
// state, and the findings of each rejected attempt.
func writeSession(sb *strings.Builder, title string, session *retry.Session) {
	if session == nil {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n", title)
	fmt.Fprintf(sb, "**Attempts:** %d/%d  \n", len(session.Attempts), session.MaxAttempts)
	fmt.Fprintf(sb, "**Outcome:** %s\n\n", session.Terminal)

	for i, outcome := range session.Outcomes {
		if len(outcome.Findings) == 0 {
			continue
		}
		fmt.Fprintf(sb, "<details>\n<summary><strong>Attempt %d</strong> — %s</summary>\n\n",
			i+1, outcomeLabel(outcome))
		sb.WriteString("| Severity | Category | Line | Message |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, f := range outcome.Findings {
			line := ""
			if f.Line > 0 {
				line = fmt.Sprintf("%d", f.Line)
			}
			fmt.Fprintf(sb, "| %s | %s | %s | %s |\n",
				f.Severity, f.Category, line, mdEscape(f.Message))
		}
		sb.WriteString("\n</details>\n\n")
	}
}

func outcomeLabel(outcome schema.Outcome) string {
	if outcome.Accepted {
		return "accepted"
	}
	return fmt.Sprintf("rejected (%d errors, risk %d)",
		len(outcome.ErrorFindings()), outcome.RiskScore)
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
