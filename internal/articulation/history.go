package articulation

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"codesmith/internal/diff"
	"codesmith/internal/forge"
	"codesmith/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const taskColumnWidth = 48

// PrintHistory writes a table of runs, newest first as given.
func (p *Printer) PrintHistory(runs []store.Run) {
	if len(runs) == 0 {
		p.printf("No runs recorded.\n")
		return
	}

	headers := []string{"ID", "STARTED", "STATUS", "FIXES", "DURATION", "TASK"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(r.Status),
			fmt.Sprintf("%d", r.FixCount),
			formatDuration(r.Duration()),
			truncate(r.Task, taskColumnWidth),
		})
	}

	if p.pretty() {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(p.styles.muted).
			Headers(headers...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return p.styles.label
				}
				if col == 2 && row >= 0 && row < len(rows) {
					return p.statusStyle(store.RunStatus(rows[row][2]))
				}
				return lipgloss.NewStyle()
			})
		p.printf("%s\n", t.String())
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// PrintRun writes one run with its fix attempts.
func (p *Printer) PrintRun(run *store.Run) {
	p.printf("Run %s\n", run.ID)
	p.printf("Task: %s\n", run.Task)
	p.printf("Model: %s\n", run.Model)
	p.printf("Status: %s\n", p.statusText(run.Status))
	p.printf("Started: %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if run.FinishedAt != nil {
		p.printf("Duration: %s\n", formatDuration(run.Duration()))
	}
	if run.PromptTokens > 0 || run.CompletionTokens > 0 {
		p.printf("Tokens: %d prompt, %d completion\n", run.PromptTokens, run.CompletionTokens)
	}
	if run.Error != "" {
		p.printf("Error: %s\n", run.Error)
	}

	if run.Signature != "" {
		p.Signature(run.Signature)
	}
	if len(run.Tests) > 0 {
		var tests []forge.TestCase
		for _, name := range forge.TestNames {
			if src, ok := run.Tests[name]; ok {
				tests = append(tests, forge.TestCase{Name: name, Source: src})
			}
		}
		p.Tests(tests)
	}
	for _, a := range run.Attempts {
		p.printf("\nAttempt %d failed in %s: %s\n", a.Seq, a.Stage, a.ErrorMessage)
		if a.Code != "" && a.FixedCode != "" {
			p.printDiff(diff.Compute(revisionName(a.Seq), revisionName(a.Seq+1), a.Code, a.FixedCode))
		}
	}
	if run.Code != "" {
		p.Code(run.Code)
	}
}

func (p *Printer) statusStyle(s store.RunStatus) lipgloss.Style {
	switch s {
	case store.StatusPassed:
		return p.styles.success
	case store.StatusFailed, store.StatusError:
		return p.styles.failure
	default:
		return p.styles.notice
	}
}

func (p *Printer) statusText(s store.RunStatus) string {
	if p.pretty() {
		return p.statusStyle(s).Render(string(s))
	}
	return string(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
