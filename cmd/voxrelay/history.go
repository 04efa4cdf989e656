package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyiyo/voxrelay/internal/core/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored conversation histories",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List history keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kv, closeKV, err := openHistory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeKV()
		keys, err := kv.Keys(cmd.Context())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show KEY",
	Short: "Print the messages stored under KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kv, closeKV, err := openHistory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeKV()
		store, err := history.Open(cmd.Context(), kv, args[0], cfg.HistoryLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, m := range store.Messages() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.CreatedAt.Format("2006-01-02 15:04:05"), m.Role, m.Text)
		}
		return tw.Flush()
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear KEY",
	Short: "Delete the history stored under KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kv, closeKV, err := openHistory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeKV()
		return kv.Delete(cmd.Context(), args[0])
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyClearCmd)
}
