// Package config holds the viper configuration singleton. Precedence is
// env over config file over defaults; env vars use the FXZ prefix with
// dots and hyphens folded to underscores (FXZ_STORE_BACKEND maps to
// "store.backend").
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Call once at startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Config file precedence: project backsync.yaml found by walking up
	// from CWD, then the user config dir.
	configFileSet := false
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			path := filepath.Join(dir, "backsync.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				configFileSet = true
				break
			}
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			path := filepath.Join(configDir, "backsync", "config.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("FXZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults()

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults() {
	v.SetDefault("env", "prod") // dev | prod; dev gets a console log writer

	v.SetDefault("title.max-length", 200)
	v.SetDefault("resolve.similarity-threshold", 0.85)

	v.SetDefault("analytics.stale-after", "336h") // 14 days
	v.SetDefault("analytics.heatmap-top", 10)
	v.SetDefault("analytics.anomaly-threshold", 0.5)

	v.SetDefault("store.backend", "sqlite") // memory | sqlite | postgres
	v.SetDefault("store.path", ".backsync/backsync.db")
	v.SetDefault("store.dsn", "")

	v.SetDefault("server.addr", ":8480")

	v.SetDefault("import.source", "docs/PENDING_MASTER.md")
	v.SetDefault("import.cron", "") // e.g. "0 7 * * 1"; empty disables
	v.SetDefault("import.lock-path", ".backsync/import.lock")
	v.SetDefault("import.lock-timeout", "30s")

	v.SetDefault("watch.debounce", "2s")
}

// ResetForTesting clears the singleton so tests can re-initialize.
func ResetForTesting() {
	v = nil
}

func ensure() {
	if v == nil {
		_ = Initialize()
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	ensure()
	return v.GetString(key)
}

// GetInt returns an integer config value.
func GetInt(key string) int {
	ensure()
	return v.GetInt(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	ensure()
	return v.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	ensure()
	return v.GetDuration(key)
}

// Set overrides a config value at runtime (flag bindings).
func Set(key string, value interface{}) {
	ensure()
	v.Set(key, value)
}

// ConfigFileUsed reports the loaded config file, if any.
func ConfigFileUsed() string {
	ensure()
	return v.ConfigFileUsed()
}
