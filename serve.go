package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/pillcast/internal/metrics"
	"github.com/dgnsrekt/pillcast/internal/web"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the tablet summarizer page",
	Long:    paragraph(fmt.Sprintf("\n%s the tablet summarizer page. Upload a tablet photo, read the summary and have it spoken on this machine.", keyword("Serve"))),
	Example: paragraph("pillcast serve\npillcast serve --addr :8080 --engine gtts"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "address to listen on")
	serveCmd.Flags().Float64("analyze-rate", 0, "analyses per minute (0 disables the limit)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.analyze_rate", serveCmd.Flags().Lookup("analyze-rate"))
}

func runServe(ctx context.Context) error {
	logToStderr()

	st, err := newCache(config.Cache)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() {
			if err := st.Close(); err != nil {
				log.Error("Could not close cache", "error", err)
			}
		}()
	}

	m := metrics.New()
	ctrl, err := newController(config, st, m)
	if err != nil {
		return fmt.Errorf("unable to start speech: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Error("Could not close speech", "error", err)
		}
	}()

	var analyzer web.Analyzer
	if s, err := newSummarizer(config, st); err != nil {
		log.Warn("Tablet analysis is disabled", "error", err)
	} else {
		analyzer = s
	}

	maxUpload, err := parseSize(config.Server.MaxUpload)
	if err != nil {
		return err
	}

	srv := web.New(web.Config{
		Addr:            config.Server.Addr,
		MaxUploadBytes:  maxUpload,
		AnalyzeRate:     config.Server.AnalyzeRate,
		AnalyzeTimeout:  config.Vision.Timeout,
		ShutdownTimeout: config.Server.ShutdownTimeout,
	}, ctrl, analyzer, m, log.Default())

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			log.Info("Configuration changed, reloading", "file", e.Name)
			setLogLevel(viper.GetBool("debug"))
			srv.SetAnalyzeRate(viper.GetFloat64("server.analyze_rate"))
		})
		viper.WatchConfig()
	}

	return srv.ListenAndServe(ctx)
}
