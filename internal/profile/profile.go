// Package profile defines per-agent-type prompt profiles that modulate LLM
// prompt construction. Each profile provides a SystemPromptAddendum appended
// to the system prompt of both generation stages.
package profile

import (
	"fmt"
	"sort"
)

// Profile describes a generation strategy for one agent type.
type Profile struct {
	Name                 string
	Description          string
	SystemPromptAddendum string
}

// builtins is the registry of built-in profiles keyed by agent type.
var builtins = map[string]Profile{
	"general": {
		Name:        "general",
		Description: "Default profile with no agent-type specialization.",
		SystemPromptAddendum: "Choose the agent type that best matches the task. When the task is " +
			"ambiguous, prefer the simplest agent shape that satisfies it and state assumptions " +
			"in the description field rather than guessing silently.",
	},
	"calculation": {
		Name:        "calculation",
		Description: "Numeric and financial computation agents.",
		SystemPromptAddendum: "This agent performs calculations. Every formula must be implemented " +
			"explicitly; never approximate with placeholder values. All numeric inputs arrive from " +
			"configured data sources, and results must be printed in a labelled summary.",
	},
	"data_retrieval": {
		Name:        "data_retrieval",
		Description: "Agents that fetch and reshape data from external sources.",
		SystemPromptAddendum: "This agent retrieves data. All source locations, credentials, and " +
			"connection strings come from environment lookup. Handle an empty or unreachable " +
			"source gracefully with a clear message instead of raising.",
	},
	"validation": {
		Name:        "validation",
		Description: "Agents that check data or artifacts against rules.",
		SystemPromptAddendum: "This agent validates inputs. Every rule must be checked " +
			"independently and every failure reported with enough context to fix it; never stop " +
			"at the first failure.",
	},
	"monitoring": {
		Name:        "monitoring",
		Description: "Agents that observe a system and report state.",
		SystemPromptAddendum: "This agent monitors. Polling intervals and thresholds come from " +
			"environment configuration. Report state transitions, not raw samples.",
	},
	"transformation": {
		Name:        "transformation",
		Description: "Agents that convert data between shapes or formats.",
		SystemPromptAddendum: "This agent transforms data. Preserve all input records; emit a " +
			"per-record error report for records that cannot be transformed rather than dropping " +
			"them silently.",
	},
	"orchestration": {
		Name:        "orchestration",
		Description: "Agents that sequence other agents or steps.",
		SystemPromptAddendum: "This agent orchestrates a workflow. Steps execute in declared order, " +
			"each step's failure policy must be explicit, and no step may be skipped silently.",
	},
}

// Load returns the named built-in profile or an error if the name is unknown.
func Load(name string) (Profile, error) {
	p, ok := builtins[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile: unknown profile %q (available: %s)", name, availableNames)
	}
	return p, nil
}

// List returns all built-in profiles sorted by name.
func List() []Profile {
	out := make([]Profile, 0, len(builtins))
	for _, p := range builtins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

const availableNames = "general, calculation, data_retrieval, validation, monitoring, transformation, orchestration"
