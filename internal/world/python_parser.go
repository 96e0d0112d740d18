// Package world inspects generated Python source with Tree-sitter before it
// is executed: it locates syntax errors and lists the functions, classes and
// methods the code defines.
package world

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"codesmith/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SymbolKind classifies a definition found in the source.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolMethod   SymbolKind = "method"
)

// Symbol is a function, class or method definition.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Parent    string // enclosing class for methods
	StartLine int
	EndLine   int
	Signature string // first line of the definition, trimmed
}

// QualifiedName returns Parent.Name for methods and Name otherwise.
func (s Symbol) QualifiedName() string {
	if s.Parent != "" {
		return s.Parent + "." + s.Name
	}
	return s.Name
}

// SyntaxIssue locates a parse error. Line and Column are 1-based.
type SyntaxIssue struct {
	Line    int
	Column  int
	Missing string // token the parser expected, if it inserted one
	Snippet string
}

func (s SyntaxIssue) String() string {
	if s.Missing != "" {
		return fmt.Sprintf("line %d, column %d: missing %q", s.Line, s.Column, s.Missing)
	}
	if s.Snippet != "" {
		return fmt.Sprintf("line %d, column %d: unexpected %q", s.Line, s.Column, s.Snippet)
	}
	return fmt.Sprintf("line %d, column %d", s.Line, s.Column)
}

// Report is the result of inspecting one source file.
type Report struct {
	Symbols []Symbol
	Issues  []SyntaxIssue
}

// HasSyntaxErrors reports whether the parser found any error or missing nodes.
func (r *Report) HasSyntaxErrors() bool {
	return len(r.Issues) > 0
}

// SyntaxError formats the first issue the way the Python interpreter would
// headline it. Empty when the source parsed cleanly.
func (r *Report) SyntaxError() string {
	if len(r.Issues) == 0 {
		return ""
	}
	return "SyntaxError: invalid syntax (" + r.Issues[0].String() + ")"
}

// Defines reports whether a top-level function or class with the given name exists.
func (r *Report) Defines(name string) bool {
	for _, s := range r.Symbols {
		if s.Parent == "" && s.Name == name {
			return true
		}
	}
	return false
}

// Names returns qualified names of all symbols in source order.
func (r *Report) Names() []string {
	names := make([]string, 0, len(r.Symbols))
	for _, s := range r.Symbols {
		names = append(names, s.QualifiedName())
	}
	return names
}

// PythonInspector parses Python source with Tree-sitter.
// A tree-sitter parser is not safe for concurrent use, so calls are serialized.
type PythonInspector struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewPythonInspector creates an inspector.
func NewPythonInspector() *PythonInspector {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &PythonInspector{parser: parser}
}

// Inspect parses source and reports its definitions and syntax issues.
func (p *PythonInspector) Inspect(ctx context.Context, source string) (*Report, error) {
	start := time.Now()
	content := []byte(source)

	p.mu.Lock()
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	p.mu.Unlock()
	if err != nil {
		logging.Get(logging.CategoryWorld).Error("PythonInspector: parse failed: %v", err)
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	lines := strings.Split(source, "\n")
	report := &Report{}

	walkDefinitions(root, "", content, lines, report)
	if root.HasError() {
		collectIssues(root, content, report)
	}

	logging.WorldDebug("PythonInspector: %d symbols, %d syntax issues in %v",
		len(report.Symbols), len(report.Issues), time.Since(start))
	return report, nil
}

// walkDefinitions records class and function definitions, descending into
// class bodies for methods and into other compound statements for
// conditionally defined names. Function bodies are not entered.
func walkDefinitions(node *sitter.Node, parent string, content []byte, lines []string, report *Report) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		switch child.Type() {
		case "class_definition":
			name := addDefinition(child, child, SymbolClass, "", content, lines, report)
			if body := child.ChildByFieldName("body"); body != nil && name != "" {
				walkDefinitions(body, name, content, lines, report)
			}

		case "function_definition":
			kind := SymbolFunction
			if parent != "" {
				kind = SymbolMethod
			}
			addDefinition(child, child, kind, parent, content, lines, report)

		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			switch def.Type() {
			case "class_definition":
				name := addDefinition(child, def, SymbolClass, "", content, lines, report)
				if body := def.ChildByFieldName("body"); body != nil && name != "" {
					walkDefinitions(body, name, content, lines, report)
				}
			case "function_definition":
				kind := SymbolFunction
				if parent != "" {
					kind = SymbolMethod
				}
				addDefinition(child, def, kind, parent, content, lines, report)
			}

		case "ERROR":
			// partial definitions inside error nodes are not reported

		default:
			walkDefinitions(child, parent, content, lines, report)
		}
	}
}

// addDefinition appends a symbol spanning outer (which includes decorators)
// named by def's name field. Returns the name, or "" when def has none.
func addDefinition(outer, def *sitter.Node, kind SymbolKind, parent string, content []byte, lines []string, report *Report) string {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	defLine := int(def.StartPoint().Row) + 1

	signature := ""
	if defLine > 0 && defLine <= len(lines) {
		signature = strings.TrimSpace(lines[defLine-1])
	}

	report.Symbols = append(report.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		Parent:    parent,
		StartLine: int(outer.StartPoint().Row) + 1,
		EndLine:   int(outer.EndPoint().Row) + 1,
		Signature: signature,
	})
	return name
}

func collectIssues(node *sitter.Node, content []byte, report *Report) {
	if node.IsMissing() {
		report.Issues = append(report.Issues, SyntaxIssue{
			Line:    int(node.StartPoint().Row) + 1,
			Column:  int(node.StartPoint().Column) + 1,
			Missing: node.Type(),
		})
		return
	}
	if node.Type() == "ERROR" {
		snippet := strings.TrimSpace(string(content[node.StartByte():node.EndByte()]))
		if i := strings.IndexByte(snippet, '\n'); i >= 0 {
			snippet = snippet[:i]
		}
		report.Issues = append(report.Issues, SyntaxIssue{
			Line:    int(node.StartPoint().Row) + 1,
			Column:  int(node.StartPoint().Column) + 1,
			Snippet: clipSnippet(snippet),
		})
		return
	}
	if !node.HasError() {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectIssues(node.Child(i), content, report)
	}
}

const maxSnippetRunes = 40

// clipSnippet shortens s to maxSnippetRunes without splitting a rune.
func clipSnippet(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippetRunes {
		return s
	}
	return string(r[:maxSnippetRunes])
}
