package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/pillcast/internal/speech"
	"github.com/dgnsrekt/pillcast/internal/vision"
	"github.com/dgnsrekt/pillcast/ui"
)

var (
	analyzeDetails string
	analyzeVoice   string
	analyzeSpeak   bool
	analyzePlain   bool
	analyzeMouse   bool

	analyzeCmd = &cobra.Command{
		Use:   "analyze IMAGE",
		Short: "Summarize a tablet image",
		Long: paragraph(fmt.Sprintf("\n%s a tablet image with the vision model and show the summary. "+
			"Press v or f to hear it with the male or female voice.", keyword("Summarize"))),
		Example: paragraph("pillcast analyze tablet.jpg\npillcast analyze tablet.png --details \"white, round, 44 157\" --speak --voice female\npillcast analyze tablet.jpg --plain"),
		Args:    cobra.ExactArgs(1),
		RunE:    runAnalyze,
	}
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeDetails, "details", "d", "", "details about the tablet, such as markings")
	analyzeCmd.Flags().StringVar(&analyzeVoice, "voice", "male", "voice used with --speak (male or female)")
	analyzeCmd.Flags().BoolVarP(&analyzeSpeak, "speak", "s", false, "speak the summary once it arrives")
	analyzeCmd.Flags().BoolVarP(&analyzePlain, "plain", "p", false, "print the summary instead of opening the TUI")
	analyzeCmd.Flags().BoolVarP(&analyzeMouse, "mouse", "m", false, "enable mouse wheel")
	_ = analyzeCmd.Flags().MarkHidden("mouse")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	option, err := speech.ParseVoiceOption(analyzeVoice)
	if err != nil {
		return err
	}

	path, err := homedir.Expand(args[0])
	if err != nil {
		return fmt.Errorf("unable to expand path: %w", err)
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read image: %w", err)
	}
	mediaType := vision.DetectMediaType(image, vision.MediaTypeFromName(path))

	st, err := newCache(config.Cache)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	summarizer, err := newSummarizer(config, st)
	if err != nil {
		return err
	}

	var ctrl *speech.Controller
	if !analyzePlain || analyzeSpeak {
		ctrl, err = newController(config, st, nil)
		if err != nil {
			if analyzeSpeak {
				return fmt.Errorf("unable to start speech: %w", err)
			}
			log.Warn("Speech is disabled", "error", err)
		} else {
			defer ctrl.Close() //nolint:errcheck
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if analyzePlain {
		return analyzePlainly(ctx, os.Stdout, summarizer, image, mediaType, ctrl, option)
	}

	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	// use style set in env, or the configured one if unset
	if os.Getenv("GLAMOUR_STYLE") == "" || ui.ValidateStyle(cfg.GlamourStyle) != nil {
		cfg.GlamourStyle = config.Style
	}
	cfg.GlamourMaxWidth = config.Width
	cfg.EnableMouse = analyzeMouse
	cfg.ImagePath = path
	cfg.MediaType = mediaType
	cfg.Details = analyzeDetails
	cfg.Voice = option
	cfg.AutoSpeak = analyzeSpeak

	var speaker ui.Speaker
	if ctrl != nil {
		speaker = ctrl
	}
	if _, err := ui.NewProgram(cfg, image, summarizer, speaker).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func analyzePlainly(ctx context.Context, w io.Writer, a ui.Analyzer, image []byte, mediaType string, ctrl *speech.Controller, option speech.VoiceOption) error {
	res, err := a.Summarize(ctx, analyzeDetails, image, mediaType)
	if err != nil {
		return fmt.Errorf("unable to analyze tablet: %w", err)
	}

	if _, err := fmt.Fprintln(w, wordwrap.String(res.Summary, int(config.Width))); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write to writer: %w", err)
	}

	if !analyzeSpeak || ctrl == nil {
		return nil
	}
	job, err := ctrl.Speak(ui.Speakable(res.Summary), option)
	if err != nil {
		return err
	}
	if err := job.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("speech failed: %w", err)
	}
	return nil
}
