// Package articulation renders pipeline progress and run history for the
// terminal, either as plain lines or styled with lipgloss and glamour.
package articulation

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"codesmith/internal/diff"
	"codesmith/internal/forge"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Printer writes pipeline events to w. It implements forge.Reporter.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	style    Style
	styles   styles
	renderer *glamour.TermRenderer

	showDiffs bool
	lastCode  string
	revision  int
}

var _ forge.Reporter = (*Printer)(nil)

// PrinterOption configures a Printer.
type PrinterOption func(*printerConfig)

type printerConfig struct {
	glamourStyle string
	wordWrap     int
	showDiffs    bool
}

// WithGlamourStyle selects a named glamour style ("dark", "light", "notty")
// instead of detecting one from the terminal.
func WithGlamourStyle(name string) PrinterOption {
	return func(c *printerConfig) { c.glamourStyle = name }
}

// WithWordWrap sets the wrap width for rendered code.
func WithWordWrap(width int) PrinterOption {
	return func(c *printerConfig) { c.wordWrap = width }
}

// WithFixDiffs prints a unified diff of each fix against the code it replaced.
func WithFixDiffs(enabled bool) PrinterOption {
	return func(c *printerConfig) { c.showDiffs = enabled }
}

// NewPrinter creates a printer. StyleAuto is resolved against w.
func NewPrinter(w io.Writer, style Style, opts ...PrinterOption) (*Printer, error) {
	cfg := printerConfig{wordWrap: 80}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Printer{w: w, style: style.Resolve(w), styles: newStyles(), showDiffs: cfg.showDiffs}
	if p.style == StylePretty {
		styleOpt := glamour.WithAutoStyle()
		if cfg.glamourStyle != "" {
			styleOpt = glamour.WithStandardStyle(cfg.glamourStyle)
		}
		renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(cfg.wordWrap))
		if err != nil {
			return nil, fmt.Errorf("failed to create renderer: %w", err)
		}
		p.renderer = renderer
	}
	return p, nil
}

// Style returns the resolved style.
func (p *Printer) Style() Style {
	return p.style
}

func (p *Printer) pretty() bool {
	return p.style == StylePretty
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// section prints a blank line, a header, and a body.
func (p *Printer) section(header, body string, isCode bool) {
	if !p.pretty() {
		p.printf("\n%s\n%s\n", header, body)
		return
	}
	rendered := body
	if isCode {
		rendered = p.renderCode(body)
	}
	p.printf("%s\n%s\n", p.styles.header.Render(strings.TrimSuffix(header, ":")), rendered)
}

func (p *Printer) renderCode(code string) string {
	out, err := p.renderer.Render("```python\n" + code + "\n```\n")
	if err != nil {
		return code
	}
	return strings.TrimRight(out, "\n")
}

// Signature prints the generated signature.
func (p *Printer) Signature(signature string) {
	p.section("Generated code signature:", signature, true)
}

// Code prints the generated implementation.
func (p *Printer) Code(code string) {
	p.remember(code)
	p.section("Generated code:", code, true)
}

// Tests prints each generated test as "name: source".
func (p *Printer) Tests(tests []forge.TestCase) {
	if !p.pretty() {
		var b strings.Builder
		b.WriteString("\nGenerated tests:\n")
		for _, tc := range tests {
			fmt.Fprintf(&b, "%s: %s\n", tc.Name, tc.Source)
		}
		p.printf("%s", b.String())
		return
	}
	var b strings.Builder
	b.WriteString(p.styles.header.Render("Generated tests") + "\n")
	for _, tc := range tests {
		fmt.Fprintf(&b, "%s %s\n", p.styles.label.Render(tc.Name+":"), tc.Source)
	}
	p.printf("%s", b.String())
}

func (p *Printer) RunningCode() {
	if p.pretty() {
		p.printf("\n%s\n", p.styles.step.Render("Running the code..."))
		return
	}
	p.printf("\nRunning the code...\n")
}

// Output echoes what the program printed.
func (p *Printer) Output(stage, stdout string) {
	if !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	if p.pretty() {
		p.printf("%s", p.styles.muted.Render(stdout))
		return
	}
	p.printf("%s", stdout)
}

func (p *Printer) CodeFailed(message string) {
	p.line(p.styles.failure, "Code failed with error: "+message)
}

func (p *Printer) RunningTests() {
	p.line(p.styles.step, "Running the tests...")
}

func (p *Printer) TestFailed(name, message string) {
	p.line(p.styles.failure, fmt.Sprintf("Test %s failed with error: %s", name, message))
}

func (p *Printer) Regenerating() {
	p.line(p.styles.notice, "Re-generating the code with the execution feedback...")
}

// Fixed prints the code returned by the fixer.
func (p *Printer) Fixed(code string) {
	p.section("Fixed code:", code, true)
	if p.showDiffs {
		p.mu.Lock()
		old, rev := p.lastCode, p.revision
		p.mu.Unlock()
		p.printDiff(diff.Compute(revisionName(rev), revisionName(rev+1), old, code))
	}
	p.remember(code)
}

func (p *Printer) remember(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCode = code
	p.revision++
}

func revisionName(rev int) string {
	return fmt.Sprintf("revision %d", rev)
}

// printDiff writes d with a +/- summary. Identical code prints a notice.
func (p *Printer) printDiff(d *diff.CodeDiff) {
	if d.Empty() {
		p.line(p.styles.muted, "(fix left the code unchanged)")
		return
	}
	added, removed := d.Stats()
	p.line(p.styles.muted, fmt.Sprintf("Changes: +%d -%d", added, removed))
	if !p.pretty() {
		p.printf("%s", d.Unified())
		return
	}
	var b strings.Builder
	for _, text := range strings.Split(strings.TrimSuffix(d.Unified(), "\n"), "\n") {
		switch {
		case strings.HasPrefix(text, "+++"), strings.HasPrefix(text, "---"), strings.HasPrefix(text, "@@"):
			text = p.styles.label.Render(text)
		case strings.HasPrefix(text, "+"):
			text = p.styles.success.Render(text)
		case strings.HasPrefix(text, "-"):
			text = p.styles.failure.Render(text)
		}
		b.WriteString(text + "\n")
	}
	p.printf("%s", b.String())
}

func (p *Printer) Passed() {
	p.line(p.styles.success, "All generated tests passed")
}

func (p *Printer) line(style lipgloss.Style, text string) {
	if p.pretty() {
		text = style.Render(text)
	}
	p.printf("%s\n", text)
}
