package articulation

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Style selects how results are rendered.
type Style string

const (
	StyleAuto   Style = "auto"
	StylePlain  Style = "plain"
	StylePretty Style = "pretty"
)

// ParseStyle validates a style name. The empty string means auto.
func ParseStyle(name string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(name))) {
	case "", StyleAuto:
		return StyleAuto, nil
	case StylePlain:
		return StylePlain, nil
	case StylePretty:
		return StylePretty, nil
	default:
		return "", fmt.Errorf("unknown style %q (want plain, pretty or auto)", name)
	}
}

// Resolve turns auto into pretty for terminals and plain otherwise.
func (s Style) Resolve(w io.Writer) Style {
	if s != StyleAuto {
		return s
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return StylePretty
	}
	return StylePlain
}

// Palette
var (
	colorPrimary     = lipgloss.Color("#8BC34A")
	colorInfo        = lipgloss.Color("#2196F3")
	colorWarning     = lipgloss.Color("#FFC107")
	colorDestructive = lipgloss.Color("#e53935")
	colorMuted       = lipgloss.Color("#6b7785")
)

type styles struct {
	header  lipgloss.Style
	label   lipgloss.Style
	step    lipgloss.Style
	failure lipgloss.Style
	notice  lipgloss.Style
	success lipgloss.Style
	muted   lipgloss.Style
}

func newStyles() styles {
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginTop(1),
		label:   lipgloss.NewStyle().Bold(true).Foreground(colorInfo),
		step:    lipgloss.NewStyle().Foreground(colorInfo),
		failure: lipgloss.NewStyle().Foreground(colorDestructive),
		notice:  lipgloss.NewStyle().Italic(true).Foreground(colorWarning),
		success: lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		muted:   lipgloss.NewStyle().Foreground(colorMuted),
	}
}
