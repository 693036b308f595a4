package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/EngSayh/backsync/internal/config"
	"github.com/EngSayh/backsync/internal/reconcile"
)

var importAsJSON bool

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Extract issues from a document and reconcile them into the store",
	Long: `Import reads a markdown session log (or a JSON export with --json),
extracts issue candidates, resolves their identities against the store,
and writes the merged results. Re-running an import over an unchanged
document is a no-op.

With no file argument the document is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var source string
		var data []byte
		var err error
		if len(args) == 1 {
			source = args[0]
			data, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
		} else {
			source = "stdin"
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
		}

		lock, err := acquireImportLock()
		if err != nil {
			return err
		}
		defer lock.Unlock()

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		eng := newEngine(store)

		var result *reconcile.Result
		if importAsJSON || strings.EqualFold(filepath.Ext(source), ".json") {
			result, err = eng.ImportJSON(ctx, data, source)
		} else {
			result, err = eng.ImportMarkdown(ctx, string(data), source)
		}
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		printResult(result)
		if result.Degraded() {
			return fmt.Errorf("import finished with %d record error(s)", len(result.Errors))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importAsJSON, "json", false, "treat the input as a JSON export")
	rootCmd.AddCommand(importCmd)
}

// acquireImportLock serializes imports across processes sharing a store.
func acquireImportLock() (*flock.Flock, error) {
	path := config.GetString("import.lock-path")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(path)
	timeout := config.GetDuration("import.lock-timeout")
	deadline := time.Now().Add(timeout)
	for {
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire import lock: %w", err)
		}
		if ok {
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("import lock at %s held by another process after %s", path, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func printResult(r *reconcile.Result) {
	fmt.Printf("Session %s: %d created, %d updated, %d skipped\n",
		r.SessionID, r.Created, r.Updated, r.Skipped)
	for _, c := range r.Conflicts {
		fmt.Printf("  conflict (%s): %s", c.Kind, c.Key)
		if c.OtherKey != "" {
			fmt.Printf(" vs %s", c.OtherKey)
		}
		if c.Detail != "" {
			fmt.Printf(": %s", c.Detail)
		}
		fmt.Println()
	}
	for _, e := range r.Errors {
		fmt.Printf("  error: %s: %s\n", e.Key, e.Reason)
	}
}
