package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/EngSayh/backsync/internal/analytics"
	"github.com/EngSayh/backsync/internal/config"
	"github.com/EngSayh/backsync/internal/engine"
	"github.com/EngSayh/backsync/internal/logger"
	"github.com/EngSayh/backsync/internal/storage"
	"github.com/EngSayh/backsync/internal/storage/factory"
)

var (
	flagBackend string
	flagDBPath  string
	flagDSN     string

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "backsync",
	Short: "Backlog extraction and synchronization engine",
	Long: `backsync turns markdown session logs full of pipe tables and
checklists into a canonical issue store, and keeps that store in sync as
the documents grow. The store is the source of truth; the markdown is a
derived view.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if flagBackend != "" {
			config.Set("store.backend", flagBackend)
		}
		if flagDBPath != "" {
			config.Set("store.path", flagDBPath)
		}
		if flagDSN != "" {
			config.Set("store.dsn", flagDSN)
		}
		log = logger.New(config.GetString("env"))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "storage backend (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "sqlite database path")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "postgres connection string")
}

// openStore builds the configured storage backend.
func openStore(ctx context.Context) (storage.Store, error) {
	return factory.New(ctx,
		config.GetString("store.backend"),
		config.GetString("store.path"),
		config.GetString("store.dsn"))
}

// newEngine assembles the pipeline over a store.
func newEngine(store storage.Store) *engine.Engine {
	return engine.New(store, log, engine.Options{
		SimilarityThreshold: config.GetFloat64("resolve.similarity-threshold"),
		Analytics: analytics.Options{
			StaleAfter:       config.GetDuration("analytics.stale-after"),
			HeatmapTop:       config.GetInt("analytics.heatmap-top"),
			AnomalyThreshold: config.GetFloat64("analytics.anomaly-threshold"),
		},
	})
}
