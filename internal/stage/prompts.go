package stage

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/agentforge/internal/profile"
	"github.com/dshills/agentforge/internal/schema"
)

// specSystemPrompt instructs the model to emit a bare YAML specification
// conforming to the version-1 schema. The field list mirrors what the
// structural validator checks.
const specSystemPrompt = `You are an expert agent architect. Produce an agent specification as YAML.

Output ONLY valid YAML. No prose, no markdown fences, no explanation outside the YAML.

The specification MUST contain these fields:
  schema_version: "1"
  agent_name: short snake_case identifier
  agent_type: one of data_retrieval, calculation, validation, orchestration, monitoring, transformation
  version: semantic version such as "1.0.0"
  description: one or two sentences describing the agent
  role: one of primary_agent, secondary_agent, support_agent, orchestrator
  capabilities: list of capability name strings
  workflow:
    steps: mapping from step name to a one-line step description
  dependencies:
    packages: list of third-party package names the implementation may use
    services: list of external services the agent talks to

Optional fields: data_sources (list), testing with test_scenarios (list).
Every capability must be reachable from at least one workflow step.`

// implSystemPrompt instructs the model to emit a runnable Python module. The
// rules mirror what the structural and safety validators enforce, so a model
// that follows them passes on the first attempt.
const implSystemPrompt = `You are an expert Python developer. Generate a complete, runnable Python module implementing the agent specification you are given.

Output ONLY Python source. No prose, no markdown fences.

CRITICAL REQUIREMENTS:
1. The module must be self-contained and executable.
2. ALL configuration comes from environment variables via os.getenv(); never hardcode credentials, connection strings, URLs, or tokens.
3. Never use eval(), exec(), compile(), __import__(), or os.system().
4. Include error handling (try/except) around I/O and external calls.
5. Use the logging module and type hints throughout.
6. Only top-level imports, definitions, and a main guard; print results to stdout in a labelled summary.`

// systemPrompt appends the profile addendum to a stage's base prompt.
func systemPrompt(base string, prof profile.Profile) string {
	if prof.SystemPromptAddendum == "" {
		return base
	}
	return base + "\n\n" + prof.SystemPromptAddendum
}

// specUserPrompt renders the requirement into the specification-stage user
// prompt. Context keys are sorted so the prompt is deterministic for a given
// requirement.
func specUserPrompt(req schema.Requirement, feedback string) string {
	var sb strings.Builder

	sb.WriteString("TASK:\n")
	sb.WriteString(req.Task)
	sb.WriteString("\n")

	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nCONTEXT:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, req.Context[k])
		}
	}

	sb.WriteString("\nProduce the YAML agent specification now.")
	appendFeedback(&sb, feedback)
	return sb.String()
}

// implUserPrompt renders the specification document into the
// implementation-stage user prompt.
func implUserPrompt(doc *schema.SpecDocument, feedback string) string {
	var sb strings.Builder

	sb.WriteString("AGENT SPECIFICATION:\n")
	if b, err := yaml.Marshal(doc); err == nil {
		sb.Write(b)
	}

	sb.WriteString("\nImplement this agent as a single Python module now.")
	appendFeedback(&sb, feedback)
	return sb.String()
}

// appendFeedback attaches the previous attempt's error findings. Only the
// findings travel between attempts; the previous raw output is never
// replayed, which keeps the prompt size bounded across retries.
func appendFeedback(sb *strings.Builder, feedback string) {
	if feedback == "" {
		return
	}
	sb.WriteString("\n\nYOUR PREVIOUS ATTEMPT FAILED VALIDATION:\n")
	sb.WriteString(feedback)
	sb.WriteString("\nFix every issue listed. Do not repeat the errors.")
}
