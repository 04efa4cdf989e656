package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyiyo/voxrelay/internal/core/gemini"
	"github.com/steveyiyo/voxrelay/internal/core/history"
	"github.com/steveyiyo/voxrelay/internal/core/prompt"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

var promptFlags struct {
	mode       string
	historyKey string
}

var promptCmd = &cobra.Command{
	Use:   "prompt [text...]",
	Short: "Send one text prompt and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPrompt,
}

func init() {
	promptCmd.Flags().StringVarP(&promptFlags.mode, "mode", "m", types.ModeThinking, "prompt mode: thinking, search or image")
	promptCmd.Flags().StringVar(&promptFlags.historyKey, "history", "", "history key to record the exchange under")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var gen prompt.Generator
	if cfg.APIKey != "" {
		c, err := gemini.New(ctx, geminiOptions(cfg))
		if err != nil {
			return err
		}
		gen = c
	}

	record := func(types.Message) {}
	if promptFlags.historyKey != "" {
		kv, closeKV, err := openHistory(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeKV()
		store, err := history.Open(ctx, kv, promptFlags.historyKey, cfg.HistoryLimit)
		if err != nil {
			return err
		}
		record = func(m types.Message) {
			if err := store.Append(ctx, m); err != nil {
				fmt.Fprintln(os.Stderr, "voxrelay: record:", err)
			}
		}
	}

	svc := prompt.NewService(gen, record, prompt.Options{Timeout: cfg.RequestTimeout})
	msg, err := svc.Submit(ctx, promptFlags.mode, strings.Join(args, " "))
	if msg.ID != "" {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, msg.Text)
		if msg.Image != nil {
			fmt.Fprintf(out, "[image %s, %d base64 bytes]\n", msg.Image.MIMEType, len(msg.Image.Data))
		}
	}
	return err
}
