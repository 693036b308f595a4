// Package jobs schedules periodic re-imports of the master document.
package jobs

import (
	"context"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/EngSayh/backsync/internal/engine"
)

// Cron re-extracts the configured source on a schedule. The import file
// lock keeps a scheduled run from racing a manual one.
type Cron struct {
	log      zerolog.Logger
	eng      *engine.Engine
	source   string
	lockPath string
	c        *cron.Cron
}

// New prepares the scheduler for the given cron spec (standard five-field
// format). It does not start it.
func New(log zerolog.Logger, eng *engine.Engine, spec, source, lockPath string) (*Cron, error) {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	cr := &Cron{log: log, eng: eng, source: source, lockPath: lockPath, c: c}
	if _, err := c.AddFunc(spec, cr.reimport); err != nil {
		return nil, err
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) reimport() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	lock := flock.New(cr.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		cr.log.Error().Err(err).Msg("cron: import lock error")
		return
	}
	if !ok {
		cr.log.Info().Msg("cron: import already running elsewhere")
		return
	}
	defer lock.Unlock()

	doc, err := os.ReadFile(cr.source)
	if err != nil {
		cr.log.Error().Err(err).Str("source", cr.source).Msg("cron: cannot read source")
		return
	}

	result, err := cr.eng.ImportMarkdown(ctx, string(doc), cr.source)
	if err != nil {
		cr.log.Error().Err(err).Str("source", cr.source).Msg("cron: import failed")
		return
	}
	if result.Degraded() {
		cr.log.Warn().Int("errors", len(result.Errors)).Msg("cron: import degraded")
	}
}
