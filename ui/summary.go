package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/mitchellh/go-homedir"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

func (m model) statusBarView(b *strings.Builder) {
	percent := math.Max(0, math.Min(1, m.viewport.ScrollPercent()))
	scrollPercent := statusBarScrollPosStyle(fmt.Sprintf(" %3.f%% ", percent*100))
	helpNote := statusBarHelpStyle(" ? Help ")
	badge := m.speechBadge()

	note := m.statusMessage
	if note == "" {
		note = m.summaryNote()
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(badge)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)

	style := statusBarNoteStyle
	switch {
	case m.statusMessage != "" && m.statusIsError:
		style = statusBarErrorStyle
	case m.statusMessage != "":
		style = statusBarMessageStyle
	}
	note = style(note)

	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(badge)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)

	fmt.Fprintf(b, "%s%s%s%s%s",
		badge,
		note,
		style(strings.Repeat(" ", padding)),
		scrollPercent,
		helpNote,
	)
}

func (m model) summaryNote() string {
	var parts []string
	if m.cfg.Details != "" {
		parts = append(parts, "Details: "+m.cfg.Details)
	}
	if m.result.Cached {
		parts = append(parts, "cached")
	}
	if m.speech.LastError != "" {
		parts = append(parts, "speech error: "+m.speech.LastError)
	}
	return strings.Join(parts, " | ")
}

func (m model) speechBadge() string {
	switch m.speech.State {
	case "pending", "running":
		return speechActiveStyle(" ▶ " + m.speech.Option + " ")
	default:
		return statusBarHelpStyle(" ■ ")
	}
}

func (m model) helpView() string {
	s := "\n" +
		"k/↑      up                  v   speak (male voice)\n" +
		"j/↓      down                f   speak (female voice)\n" +
		"b/pgup   page up             s   stop speaking\n" +
		"pgdn     page down           c   copy summary\n" +
		"u        ½ page up           ?   toggle help\n" +
		"d        ½ page down         q   quit"
	s = indent(s, 2)

	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := range lines {
			n := max(m.width-runewidth.StringWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}

func copyToClipboard(s string) {
	// OSC 52 reaches the local terminal over ssh
	termenv.Copy(s)
	if err := clipboard.WriteAll(s); err != nil {
		log.Debug("Native clipboard unavailable", "error", err)
	}
}

func renderCmd(summary, style string, width int) tea.Cmd {
	return func() tea.Msg {
		out, err := RenderSummary(summary, style, width)
		if err != nil {
			log.Error("error rendering with Glamour", "error", err)
			return errMsg{err}
		}
		return contentRenderedMsg(out)
	}
}

// RenderSummary renders summary markdown for the terminal.
func RenderSummary(summary, style string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamourStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}
	out, err := r.Render(summary)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	return out, nil
}

func glamourStyle(style string) glamour.TermRendererOption {
	switch {
	case style == "" || style == styles.AutoStyle:
		return glamour.WithAutoStyle()
	case styles.DefaultStyles[style] != nil:
		return glamour.WithStandardStyle(style)
	}
	path, err := homedir.Expand(style)
	if err != nil {
		path = style
	}
	return glamour.WithStylePath(path)
}

// ValidateStyle checks if the style is a built-in style or an existing
// style file.
func ValidateStyle(style string) error {
	if style == "" || style == styles.AutoStyle || styles.DefaultStyles[style] != nil {
		return nil
	}
	path, err := homedir.Expand(style)
	if err != nil {
		return fmt.Errorf("invalid style path: %w", err)
	}
	if _, err := glamour.NewTermRenderer(glamour.WithStylePath(path)); err != nil {
		return fmt.Errorf("specified style does not exist: %s", style)
	}
	return nil
}
