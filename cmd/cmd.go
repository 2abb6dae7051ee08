// Package cmd wires the CLI. `aide serve` loads both models and runs the
// inference server until interrupted.
package cmd

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aidelabs/aide/api"
	"github.com/aidelabs/aide/envconfig"
	"github.com/aidelabs/aide/logutil"
	"github.com/aidelabs/aide/ml"
	"github.com/aidelabs/aide/ocr"
	"github.com/aidelabs/aide/pose"
	"github.com/aidelabs/aide/server"
	"github.com/aidelabs/aide/version"
)

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "aide",
		Short:         "Local multimodal inference gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the inference server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	rootCmd.AddCommand(serveCmd)
	return rootCmd
}

// RunServer loads both models and serves until the listener closes. Model
// loading is fatal on failure: downstream endpoints assume both models are
// present, so there is no degraded mode.
func RunServer(_ *cobra.Command, _ []string) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	progress := func(p api.ProgressResponse) {
		slog.Info("model load progress", "status", p.Status, "completed", p.Completed, "total", p.Total)
	}

	engine, err := ml.LoadEngine(envconfig.Models(), envconfig.MaxNewTokens(), progress)
	if err != nil {
		slog.Error("loading vision-language model failed", "dir", envconfig.Models(), "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	poseModel, err := pose.Load(envconfig.PoseModel())
	if err != nil {
		slog.Error("loading pose model failed", "path", envconfig.PoseModel(), "error", err)
		os.Exit(1)
	}
	defer poseModel.Close()

	extractor := &ocr.EngineExtractor{Runner: engine}
	srv := server.New(engine, poseModel, extractor, envconfig.Uploads())

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		slog.Info("shutting down")
		ln.Close()
	}()

	slog.Info("server listening", "addr", ln.Addr(), "uploads", envconfig.Uploads())
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
