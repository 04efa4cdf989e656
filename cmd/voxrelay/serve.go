package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/steveyiyo/voxrelay/internal/config"
	"github.com/steveyiyo/voxrelay/internal/core/gemini"
	"github.com/steveyiyo/voxrelay/internal/core/live"
	"github.com/steveyiyo/voxrelay/internal/core/session"
	h "github.com/steveyiyo/voxrelay/internal/http"
	"github.com/steveyiyo/voxrelay/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

func geminiOptions(cfg config.Config) gemini.Options {
	return gemini.Options{
		APIKey:         cfg.APIKey,
		Timeout:        cfg.RequestTimeout,
		ThinkingModel:  cfg.ThinkingModel,
		ThinkingBudget: cfg.ThinkingBudget,
		SearchModel:    cfg.SearchModel,
		ImageModel:     cfg.ImageModel,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeKV()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	deps := session.Deps{
		APIKey:  cfg.APIKey,
		KV:      kv,
		Metrics: m,
		Live: live.SessionConfig{
			Model:               cfg.LiveModel,
			Voice:               cfg.LiveVoice,
			SystemInstruction:   cfg.SystemInstruction,
			InputTranscription:  cfg.InputTranscription,
			OutputTranscription: cfg.OutputTranscription,
		},
		HistoryLimit:  cfg.HistoryLimit,
		PromptTimeout: cfg.RequestTimeout,
	}
	// Without a key the server still runs; voice start and prompts report it.
	if cfg.APIKey != "" {
		gen, err := gemini.New(ctx, geminiOptions(cfg))
		if err != nil {
			return err
		}
		conn, err := gemini.NewLiveConnector(ctx, geminiOptions(cfg))
		if err != nil {
			return err
		}
		deps.Generator = gen
		deps.Connector = conn
	} else {
		slog.Warn("serve: GEMINI_API_KEY is not set; voice and prompts are disabled")
	}

	svc := session.NewService(deps)
	defer svc.Shutdown()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.NewRouter(cfg, h.Deps{Sessions: svc, Metrics: m, Gatherer: reg}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("serve: listening", "addr", srv.Addr, "history_backend", cfg.HistoryBackend, "live_model", cfg.LiveModel)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Shutdown()
	return srv.Shutdown(shutdownCtx)
}
