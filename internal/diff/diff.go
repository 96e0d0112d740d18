// Package diff computes line diffs between successive versions of generated
// code using sergi/go-diff, and renders them in unified format.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

func (t LineType) prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a hunk.
type Line struct {
	Type    LineType
	Content string
}

// Hunk is a run of changes with surrounding context. Starts are 1-based.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// CodeDiff is the difference between two versions of a source.
type CodeDiff struct {
	OldName string
	NewName string
	Hunks   []Hunk
}

// Empty reports whether the versions are identical.
func (d *CodeDiff) Empty() bool {
	return len(d.Hunks) == 0
}

// Stats counts added and removed lines.
func (d *CodeDiff) Stats() (added, removed int) {
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// Unified renders the diff in unified format. Empty when there are no changes.
func (d *CodeDiff) Unified() string {
	if d.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", d.OldName, d.NewName)
	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%s +%s @@\n", span(h.OldStart, h.OldCount), span(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			b.WriteString(l.Type.prefix())
			b.WriteString(l.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func span(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// Engine computes line diffs.
type Engine struct {
	dmp          *diffmatchpatch.DiffMatchPatch
	contextLines int
}

// NewEngine creates an engine that keeps contextLines of context around changes.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // exact diffs; inputs are small
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{dmp: dmp, contextLines: contextLines}
}

// Compute diffs oldSrc against newSrc line by line.
func (e *Engine) Compute(oldName, newName, oldSrc, newSrc string) *CodeDiff {
	d := &CodeDiff{OldName: oldName, NewName: newName}
	if oldSrc == newSrc {
		return d
	}

	// Line-level reduction avoids newline boundary artifacts.
	a, b, lineArray := e.dmp.DiffLinesToChars(withNewline(oldSrc), withNewline(newSrc))
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	d.Hunks = e.group(toOperations(diffs))
	return d
}

// Compute diffs with three lines of context.
func Compute(oldName, newName, oldSrc, newSrc string) *CodeDiff {
	return NewEngine(3).Compute(oldName, newName, oldSrc, newSrc)
}

func withNewline(s string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}

type operation struct {
	typ     LineType
	oldLine int // 0-based, -1 for additions
	newLine int // 0-based, -1 for removals
	content string
}

func toOperations(diffs []diffmatchpatch.Diff) []operation {
	var ops []operation
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{LineRemoved, oldLine, -1, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{LineAdded, -1, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

// group splits operations into hunks, merging changes separated by at most
// 2*contextLines unchanged lines.
func (e *Engine) group(ops []operation) []Hunk {
	var changes []int
	for i, op := range ops {
		if op.typ != LineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []Hunk
	start := max(changes[0]-e.contextLines, 0)
	end := changes[0]
	for _, idx := range changes[1:] {
		if idx-end > 2*e.contextLines+1 {
			hunks = append(hunks, makeHunk(ops, start, min(end+e.contextLines, len(ops)-1)))
			start = idx - e.contextLines
		}
		end = idx
	}
	hunks = append(hunks, makeHunk(ops, start, min(end+e.contextLines, len(ops)-1)))
	return hunks
}

// makeHunk builds a hunk from ops[from..to] inclusive.
func makeHunk(ops []operation, from, to int) Hunk {
	var h Hunk
	oldNext, newNext := nextLines(ops, from)
	h.OldStart, h.NewStart = oldNext+1, newNext+1
	for _, op := range ops[from : to+1] {
		h.Lines = append(h.Lines, Line{Type: op.typ, Content: op.content})
		if op.typ != LineAdded {
			h.OldCount++
		}
		if op.typ != LineRemoved {
			h.NewCount++
		}
	}
	// Unified format reports the line before an empty range.
	if h.OldCount == 0 {
		h.OldStart--
	}
	if h.NewCount == 0 {
		h.NewStart--
	}
	return h
}

// nextLines returns the 0-based old and new line numbers at ops[i].
func nextLines(ops []operation, i int) (oldLine, newLine int) {
	for _, op := range ops[:i] {
		if op.typ != LineAdded {
			oldLine++
		}
		if op.typ != LineRemoved {
			newLine++
		}
	}
	return oldLine, newLine
}
