package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/pillcast/internal/speech"
)

var (
	speakVoice string

	speakCmd = &cobra.Command{
		Use:     "speak [TEXT]",
		Short:   "Speak text with the configured engine",
		Long:    paragraph(fmt.Sprintf("\n%s text with the configured engine. Reads stdin when TEXT is - or missing.", keyword("Speak"))),
		Example: paragraph("pillcast speak \"Take one tablet daily\"\necho hello | pillcast speak --voice female"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSpeak(ctx, args, os.Stdin)
		},
	}
)

func init() {
	speakCmd.Flags().StringVar(&speakVoice, "voice", "male", "voice to speak with (male or female)")
}

func runSpeak(ctx context.Context, args []string, stdin io.Reader) error {
	option, err := speech.ParseVoiceOption(speakVoice)
	if err != nil {
		return err
	}

	var text string
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("unable to read from stdin: %w", err)
		}
		text = string(b)
	} else {
		text = args[0]
	}
	if strings.TrimSpace(text) == "" {
		return speech.ErrEmptyText
	}

	st, err := newCache(config.Cache)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	ctrl, err := newController(config, st, nil)
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck

	job, err := ctrl.Speak(text, option)
	if err != nil {
		return err
	}
	err = job.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		log.Debug("Speech interrupted")
		return nil
	}
	return err
}
