package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/EngSayh/backsync/internal/config"
	"github.com/EngSayh/backsync/internal/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Re-import a document whenever it changes",
	Long: `Watch monitors a markdown document and re-runs the import pipeline
after each change. Writes are debounced so editors that save in bursts
trigger a single import.

With no file argument the configured import.source is watched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := config.GetString("import.source")
		if len(args) == 1 {
			source = args[0]
		}
		if _, err := os.Stat(source); err != nil {
			return fmt.Errorf("cannot watch %s: %w", source, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		eng := newEngine(store)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer watcher.Close()
		// Watching the directory survives editors that replace the file
		// on save instead of writing in place.
		if err := watcher.Add(filepath.Dir(source)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", source, err)
		}

		debounce := config.GetDuration("watch.debounce")
		var timer *time.Timer
		fire := make(chan struct{}, 1)

		reimport(ctx, eng, source)
		log.Info().Str("source", source).Msg("watching for changes")

		for {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				log.Warn().Err(err).Msg("watch error")
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) != filepath.Clean(source) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				reimport(ctx, eng, source)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func reimport(ctx context.Context, eng *engine.Engine, source string) {
	data, err := os.ReadFile(source)
	if err != nil {
		log.Warn().Err(err).Str("source", source).Msg("failed to read document")
		return
	}
	result, err := eng.ImportMarkdown(ctx, string(data), source)
	if err != nil {
		log.Error().Err(err).Msg("import failed")
		return
	}
	printResult(result)
}
