// Package safety scans generated implementation source for leaked secrets
// and disallowed capabilities. Scanning is deterministic and pure: the same
// text always produces the same findings and risk score.
package safety

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/dshills/agentforge/internal/schema"
)

// Risk weights per finding class. The risk score is the weighted sum over
// error findings; warnings contribute nothing, so a warning can never block
// acceptance on its own.
const (
	weightSecret     = 3
	weightBlocklist  = 2
	weightConfigMiss = 2
)

// credentialPattern is a heuristic shape for a hardcoded credential literal.
type credentialPattern struct {
	re      *regexp.Regexp
	message string
}

// credentialPatterns match literal assignments of credential-shaped values.
// The non-empty body requirement means an empty default ("") never matches.
var credentialPatterns = []credentialPattern{
	{regexp.MustCompile(`(?i)password\s*=\s*["'][^"']+["']`), "potential hardcoded password"},
	{regexp.MustCompile(`(?i)api[_-]?key\s*=\s*["'][^"']+["']`), "potential hardcoded API key"},
	{regexp.MustCompile(`(?i)secret\s*=\s*["'][^"']+["']`), "potential hardcoded secret"},
	{regexp.MustCompile(`(?i)token\s*=\s*["'][^"']+["']`), "potential hardcoded token"},
}

// connStringRe matches a quoted connection URL that carries inline
// user:password credentials. Connection strings must come from environment
// lookup, never from a literal.
var connStringRe = regexp.MustCompile(
	`(?i)["'](?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^"'\s@]*:[^"'\s@]+@[^"']*["']`)

// blockedCalls are the execution and dynamic-import primitives a generated
// implementation may never invoke.
var blockedCalls = map[string]bool{
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"__import__": true,
	"os.system":  true,
}

// envContextWindow is how far around a credential match to look for an
// environment lookup that makes the assignment legitimate.
const envContextWindow = 50

// Scan inspects implementation source and returns safety findings plus the
// risk score. A score of 0 signals a clean scan. Three classes are detected:
// credential-shaped literals, blocklisted call primitives, and configuration
// values that must come from the environment but appear inline.
func Scan(text string) ([]schema.Finding, int) {
	var findings []schema.Finding
	risk := 0

	for _, p := range credentialPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if hasEnvLookupNearby(text, loc[0], loc[1]) {
				continue
			}
			findings = append(findings, schema.Finding{
				Severity: schema.SeverityError,
				Category: schema.CategorySafety,
				Message:  p.message,
				Line:     lineOf(text, loc[0]),
			})
			risk += weightSecret
		}
	}

	for _, loc := range connStringRe.FindAllStringIndex(text, -1) {
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityError,
			Category: schema.CategorySafety,
			Message:  "connection string with inline credentials; configuration must come from environment lookup",
			Line:     lineOf(text, loc[0]),
		})
		risk += weightConfigMiss
	}

	callFindings, callRisk := scanCalls(text)
	findings = append(findings, callFindings...)
	risk += callRisk

	if !strings.Contains(text, "os.getenv") && !strings.Contains(text, "os.environ") {
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityWarning,
			Category: schema.CategorySafety,
			Message:  "no environment variable usage detected",
		})
	}

	return findings, risk
}

// scanCalls walks the Python AST for blocklisted call sites. Walking the tree
// rather than grepping the text keeps mentions inside comments and string
// literals from producing false positives. Source that does not parse is
// skipped: the structural validator rejects it before safety scanning runs.
func scanCalls(text string) ([]schema.Finding, int) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(text))
	if err != nil {
		return nil, 0
	}
	defer tree.Close()

	var findings []schema.Finding
	risk := 0
	walkCalls(tree.RootNode(), text, func(name string, line int) {
		if !blockedCalls[name] {
			return
		}
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityError,
			Category: schema.CategorySafety,
			Message:  fmt.Sprintf("use of disallowed primitive %s()", name),
			Line:     line,
		})
		risk += weightBlocklist
	})
	return findings, risk
}

// walkCalls visits every call node in source order and reports the called
// function name (identifier or dotted attribute) with its 1-based line.
func walkCalls(node *sitter.Node, text string, visit func(name string, line int)) {
	if node == nil {
		return
	}
	if node.Type() == "call" && node.NamedChildCount() > 0 {
		fn := node.NamedChild(0)
		if fn.Type() == "identifier" || fn.Type() == "attribute" {
			visit(text[fn.StartByte():fn.EndByte()], int(node.StartPoint().Row)+1)
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkCalls(node.NamedChild(i), text, visit)
	}
}

// hasEnvLookupNearby reports whether an environment lookup appears within the
// context window around a credential match, which makes the assignment a
// legitimate env read rather than a leak.
func hasEnvLookupNearby(text string, start, end int) bool {
	lo := start - envContextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + envContextWindow
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]
	return strings.Contains(window, "os.getenv") || strings.Contains(window, "os.environ")
}

// lineOf returns the 1-based line number of a byte offset.
func lineOf(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
