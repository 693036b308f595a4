// Package factory creates storage backends from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/EngSayh/backsync/internal/storage"
	"github.com/EngSayh/backsync/internal/storage/memory"
	"github.com/EngSayh/backsync/internal/storage/postgres"
	"github.com/EngSayh/backsync/internal/storage/sqlite"
)

// Recognized backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// New creates a storage backend. For sqlite, path is the database file;
// for postgres, dsn is the connection string; memory ignores both. An
// empty backend selects sqlite.
func New(ctx context.Context, backend, path, dsn string) (storage.Store, error) {
	switch backend {
	case BackendSQLite, "":
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return sqlite.New(ctx, path)
	case BackendPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		return postgres.New(ctx, dsn)
	case BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want memory, sqlite or postgres)", backend)
	}
}
