package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/pillcast/internal/speech"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [PATTERN]",
	Short:   "List the voices of the configured engine",
	Long:    paragraph(fmt.Sprintf("\n%s the voices of the configured engine, optionally fuzzy-filtered. The first voice answers to \"male\" and the second to \"female\"; a missing voice falls back to the first.", keyword("List"))),
	Example: paragraph("pillcast voices\npillcast voices amy --engine piper"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		voices, err := listVoices(config)
		if err != nil {
			return err
		}
		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}
		return printVoices(os.Stdout, voices, pattern)
	},
}

var optionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Render

func printVoices(w io.Writer, voices []speech.Voice, pattern string) error {
	if len(voices) == 0 {
		_, err := fmt.Fprintln(w, "The engine has no voices; its default voice is used.")
		return err
	}

	options := map[string]string{}
	for _, o := range []speech.VoiceOption{speech.VoiceMale, speech.VoiceFemale} {
		r := speech.ResolveVoice(voices, o)
		if r.Fallback {
			options[r.Voice.ID] += " " + o.String() + " (fallback)"
			continue
		}
		options[r.Voice.ID] += " " + o.String()
	}

	for _, v := range speech.FilterVoices(voices, pattern) {
		if _, err := fmt.Fprintf(w, "%-28s %-8s %-6s%s\n", v.ID, v.Language, v.Gender, optionStyle(options[v.ID])); err != nil {
			return err
		}
	}
	return nil
}
