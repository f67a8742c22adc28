// Package validate holds the deterministic structural validators for
// generated artifacts. Both checkers are pure functions of their input text:
// no I/O, no hidden state, identical input yields identical findings.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/agentforge/internal/schema"
)

// fieldKind is the expected YAML shape of a specification field.
type fieldKind int

const (
	kindString fieldKind = iota
	kindList
	kindMapping
)

// specField pairs a required specification field with its expected shape.
// Fields are checked in declaration order so finding order is stable.
type specField struct {
	name string
	kind fieldKind
}

// requiredSpecFields is the schema for a version-1 agent specification.
var requiredSpecFields = []specField{
	{"agent_name", kindString},
	{"agent_type", kindString},
	{"version", kindString},
	{"description", kindString},
	{"role", kindString},
	{"capabilities", kindList},
	{"workflow", kindMapping},
	{"dependencies", kindMapping},
}

// validAgentTypes are the standard agent type values. A nonstandard value is
// a warning, not an error.
var validAgentTypes = []string{
	"data_retrieval",
	"calculation",
	"validation",
	"orchestration",
	"monitoring",
	"transformation",
}

// validRoles are the standard role values.
var validRoles = []string{
	"primary_agent",
	"secondary_agent",
	"support_agent",
	"orchestrator",
}

// CheckSpecification validates the schema-shaped specification artifact:
// YAML well-formedness, required field presence, field shapes, and enum
// values. An artifact with zero error-severity findings is structurally
// acceptable; warnings never block acceptance.
func CheckSpecification(text string) []schema.Finding {
	var findings []schema.Finding

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return []schema.Finding{{
			Severity: schema.SeverityError,
			Category: schema.CategoryStructural,
			Message:  fmt.Sprintf("unparseable document: %v", err),
		}}
	}
	if doc == nil {
		return []schema.Finding{{
			Severity: schema.SeverityError,
			Category: schema.CategoryStructural,
			Message:  "specification must be a YAML mapping",
		}}
	}

	for _, f := range requiredSpecFields {
		value, ok := doc[f.name]
		if !ok {
			findings = append(findings, structuralError(
				fmt.Sprintf("required section %q is missing", f.name)))
			continue
		}
		if msg := checkShape(f, value); msg != "" {
			findings = append(findings, structuralError(msg))
		}
	}

	findings = append(findings, checkEnum(doc, "agent_type", validAgentTypes)...)
	findings = append(findings, checkEnum(doc, "role", validRoles)...)
	findings = append(findings, checkVersion(doc)...)
	findings = append(findings, checkCapabilities(doc)...)
	findings = append(findings, checkWorkflow(doc)...)

	if _, ok := doc["schema_version"]; !ok {
		findings = append(findings, structuralWarning(
			"schema_version is missing; version 1 is assumed"))
	}

	return findings
}

func structuralError(msg string) schema.Finding {
	return schema.Finding{Severity: schema.SeverityError, Category: schema.CategoryStructural, Message: msg}
}

func structuralWarning(msg string) schema.Finding {
	return schema.Finding{Severity: schema.SeverityWarning, Category: schema.CategoryStructural, Message: msg}
}

// checkShape returns a non-empty message when value does not match the
// field's expected YAML shape.
func checkShape(f specField, value any) string {
	switch f.kind {
	case kindString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("field %q must be a string", f.name)
		}
	case kindList:
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("field %q must be a list", f.name)
		}
	case kindMapping:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("field %q must be a mapping", f.name)
		}
	}
	return ""
}

// checkEnum warns when a string field is present but outside the standard
// value set. Shape errors are already reported by checkShape.
func checkEnum(doc map[string]any, field string, valid []string) []schema.Finding {
	v, ok := doc[field].(string)
	if !ok || v == "" {
		return nil
	}
	for _, candidate := range valid {
		if v == candidate {
			return nil
		}
	}
	return []schema.Finding{structuralWarning(fmt.Sprintf(
		"%s %q is not a standard value (expected one of: %s)",
		field, v, strings.Join(valid, ", ")))}
}

// checkVersion warns when version is present but not MAJOR.MINOR.PATCH.
func checkVersion(doc map[string]any) []schema.Finding {
	v, ok := doc["version"].(string)
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return []schema.Finding{structuralWarning(
			fmt.Sprintf("version %q should follow semantic versioning (MAJOR.MINOR.PATCH)", v))}
	}
	for _, part := range parts {
		for _, r := range part {
			if r < '0' || r > '9' {
				return []schema.Finding{structuralWarning(
					fmt.Sprintf("version %q parts should be numeric", v))}
			}
		}
		if part == "" {
			return []schema.Finding{structuralWarning(
				fmt.Sprintf("version %q parts should be numeric", v))}
		}
	}
	return nil
}

// checkCapabilities validates the capability list entries.
func checkCapabilities(doc map[string]any) []schema.Finding {
	caps, ok := doc["capabilities"].([]any)
	if !ok {
		return nil
	}
	var findings []schema.Finding
	if len(caps) == 0 {
		findings = append(findings, structuralWarning("capabilities list is empty"))
	}
	for i, c := range caps {
		if _, ok := c.(string); !ok {
			findings = append(findings, structuralError(
				fmt.Sprintf("capabilities[%d] must be a string", i)))
		}
	}
	return findings
}

// checkWorkflow validates the workflow section: a steps mapping is expected,
// and an empty one is suspicious but not fatal.
func checkWorkflow(doc map[string]any) []schema.Finding {
	wf, ok := doc["workflow"].(map[string]any)
	if !ok {
		return nil
	}
	steps, ok := wf["steps"]
	if !ok {
		return []schema.Finding{structuralWarning("workflow is missing a steps section")}
	}
	m, ok := steps.(map[string]any)
	if !ok {
		return []schema.Finding{structuralError("workflow steps must be a mapping")}
	}
	if len(m) == 0 {
		return []schema.Finding{structuralWarning("workflow has no steps defined")}
	}
	var findings []schema.Finding
	for _, name := range sortedKeys(m) {
		if _, ok := m[name].(string); !ok {
			findings = append(findings, structuralError(
				fmt.Sprintf("workflow step %q must be a string description", name)))
		}
	}
	return findings
}

// sortedKeys keeps finding order independent of map iteration order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
