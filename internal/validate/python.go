package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/dshills/agentforge/internal/schema"
)

// allowedTopLevel lists the statement node types permitted at module level in
// a generated implementation. Anything outside this set is rejected: a
// generated unit must be a plain module of imports, definitions, and
// straight-line setup code.
var allowedTopLevel = map[string]bool{
	"comment":                 true,
	"import_statement":        true,
	"import_from_statement":   true,
	"future_import_statement": true,
	"expression_statement":    true,
	"function_definition":     true,
	"class_definition":        true,
	"decorated_definition":    true,
	"if_statement":            true,
	"for_statement":           true,
	"while_statement":         true,
	"try_statement":           true,
	"with_statement":          true,
	"match_statement":         true,
	"assert_statement":        true,
	"raise_statement":         true,
	"pass_statement":          true,
}

// CheckImplementation validates the grammar-shaped implementation artifact:
// the text must parse as a Python module, and every top-level statement must
// come from the allowed set. Syntax findings carry the 1-based line of the
// offending node. Wildcard imports are flagged as warnings; the safety
// scanner decides whether dynamic import use blocks acceptance.
func CheckImplementation(text string) []schema.Finding {
	if strings.TrimSpace(text) == "" {
		return []schema.Finding{{
			Severity: schema.SeverityError,
			Category: schema.CategoryStructural,
			Message:  "implementation is empty",
		}}
	}

	// Tree-sitter needs a context; the validator itself never blocks, so a
	// background context is used and the parse stays an in-process computation.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(text))
	if err != nil {
		return []schema.Finding{{
			Severity: schema.SeverityError,
			Category: schema.CategoryStructural,
			Message:  fmt.Sprintf("unparseable grammar: %v", err),
		}}
	}
	defer tree.Close()

	var findings []schema.Finding
	root := tree.RootNode()

	if root.HasError() {
		collectSyntaxErrors(root, &findings)
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		t := child.Type()
		if t == "ERROR" {
			continue // already reported by collectSyntaxErrors
		}
		if !allowedTopLevel[t] {
			findings = append(findings, schema.Finding{
				Severity: schema.SeverityError,
				Category: schema.CategoryStructural,
				Message:  fmt.Sprintf("disallowed top-level statement %q", t),
				Line:     int(child.StartPoint().Row) + 1,
			})
		}
		if t == "import_from_statement" && hasWildcardImport(child) {
			findings = append(findings, schema.Finding{
				Severity: schema.SeverityWarning,
				Category: schema.CategoryStructural,
				Message:  "wildcard import hides the declared dependency surface",
				Line:     int(child.StartPoint().Row) + 1,
			})
		}
	}

	return findings
}

// collectSyntaxErrors walks the tree and records every ERROR or missing node
// with its position. ERROR subtrees are not descended into; one finding per
// error region keeps retry feedback focused.
func collectSyntaxErrors(node *sitter.Node, findings *[]schema.Finding) {
	if node.Type() == "ERROR" {
		*findings = append(*findings, schema.Finding{
			Severity: schema.SeverityError,
			Category: schema.CategoryStructural,
			Message:  "syntax error",
			Line:     int(node.StartPoint().Row) + 1,
		})
		return
	}
	if node.IsMissing() {
		*findings = append(*findings, schema.Finding{
			Severity: schema.SeverityError,
			Category: schema.CategoryStructural,
			Message:  fmt.Sprintf("syntax error: missing %q", node.Type()),
			Line:     int(node.StartPoint().Row) + 1,
		})
		return
	}
	if !node.HasError() {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxErrors(node.Child(i), findings)
	}
}

// hasWildcardImport reports whether a from-import statement imports *.
func hasWildcardImport(node *sitter.Node) bool {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if node.NamedChild(i).Type() == "wildcard_import" {
			return true
		}
	}
	return false
}

// pythonStdlib holds the module roots that never become declared
// dependencies. The set covers what generated agents actually reach for; it
// is not an exhaustive stdlib inventory.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"collections": true, "concurrent": true, "contextlib": true, "copy": true,
	"csv": true, "dataclasses": true, "datetime": true, "decimal": true,
	"enum": true, "functools": true, "glob": true, "hashlib": true,
	"hmac": true, "html": true, "http": true, "inspect": true, "io": true,
	"itertools": true, "json": true, "logging": true, "math": true,
	"multiprocessing": true, "operator": true, "os": true, "pathlib": true,
	"pickle": true, "queue": true, "random": true, "re": true, "shutil": true,
	"signal": true, "socket": true, "sqlite3": true, "statistics": true,
	"string": true, "struct": true, "subprocess": true, "sys": true,
	"tempfile": true, "textwrap": true, "threading": true, "time": true,
	"traceback": true, "types": true, "typing": true, "unittest": true,
	"urllib": true, "uuid": true, "warnings": true, "zoneinfo": true,
}

// CollectImports returns the sorted set of third-party module roots imported
// at the top level of the implementation. Relative imports and stdlib modules
// are excluded. Unparseable input yields an empty set; the structural checker
// is responsible for rejecting it.
func CollectImports(text string) []string {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(text))
	if err != nil {
		return nil
	}
	defer tree.Close()

	seen := map[string]bool{}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			for _, mod := range importedModules(child, text) {
				seen[moduleRoot(mod)] = true
			}
		case "import_from_statement":
			if mod := fromModule(child, text); mod != "" {
				seen[moduleRoot(mod)] = true
			}
		}
	}

	var deps []string
	for mod := range seen {
		if mod == "" || pythonStdlib[mod] {
			continue
		}
		deps = append(deps, mod)
	}
	sort.Strings(deps)
	return deps
}

// importedModules extracts the dotted module paths from an import statement,
// covering both plain and aliased forms.
func importedModules(node *sitter.Node, text string) []string {
	var mods []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			mods = append(mods, nodeText(child, text))
		case "aliased_import":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				grandchild := child.NamedChild(j)
				if grandchild.Type() == "dotted_name" {
					mods = append(mods, nodeText(grandchild, text))
					break
				}
			}
		}
	}
	return mods
}

// fromModule extracts the source module of a from-import statement. Relative
// imports return "".
func fromModule(node *sitter.Node, text string) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "relative_import":
			return ""
		case "dotted_name":
			// The first dotted_name precedes the import keyword and names the
			// source module; later ones are imported symbols.
			return nodeText(child, text)
		}
	}
	return ""
}

func moduleRoot(mod string) string {
	if idx := strings.IndexByte(mod, '.'); idx >= 0 {
		return mod[:idx]
	}
	return mod
}

func nodeText(node *sitter.Node, text string) string {
	return text[node.StartByte():node.EndByte()]
}
