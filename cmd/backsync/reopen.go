package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reopenNote string

var reopenCmd = &cobra.Command{
	Use:   "reopen <key>",
	Short: "Reopen a resolved issue",
	Long: `Reopen moves a resolved or false-positive issue back to open and
records the transition in its status history. Resolved issues never
reopen implicitly on re-import; this command is the only way back.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		is, err := newEngine(store).Reopen(ctx, args[0], reopenNote)
		if err != nil {
			return fmt.Errorf("failed to reopen %s: %w", args[0], err)
		}
		fmt.Printf("Reopened %s: %s\n", is.Key, is.Title)
		return nil
	},
}

func init() {
	reopenCmd.Flags().StringVar(&reopenNote, "note", "", "reason recorded in the status history")
	rootCmd.AddCommand(reopenCmd)
}
