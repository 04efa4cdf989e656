package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/natefinch/lumberjack"
	"github.com/spf13/cobra"

	"github.com/steveyiyo/voxrelay/internal/config"
	"github.com/steveyiyo/voxrelay/internal/core/history"
	"github.com/steveyiyo/voxrelay/internal/repo/file"
	"github.com/steveyiyo/voxrelay/internal/repo/memory"
	"github.com/steveyiyo/voxrelay/internal/repo/postgres"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "voxrelay",
	Short:         "Voice and text relay between a browser and Gemini",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "YAML config file; environment variables override it")
	rootCmd.AddCommand(serveCmd, promptCmd, historyCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "voxrelay:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))
	gin.DefaultWriter = w
	gin.DefaultErrorWriter = w
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openHistory returns the configured history backend and its closer.
func openHistory(ctx context.Context, cfg config.Config) (history.Lister, func(), error) {
	switch cfg.HistoryBackend {
	case config.BackendFile:
		kv, err := file.New(cfg.HistoryDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {}, nil
	case config.BackendPostgres:
		kv, err := postgres.Open(ctx, cfg.HistoryDatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	default:
		return memory.NewKV(), func() {}, nil
	}
}
