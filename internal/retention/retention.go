// SPDX-License-Identifier: AGPL-3.0-only

// Package retention prunes aged tool run records on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

// Pruner deletes tool runs older than the configured retention age.
type Pruner struct {
	cron   *cron.Cron
	store  model.RunStore
	config *config.RetentionConfig
	logger *logging.Logger
}

// NewPruner creates a pruner for the given store and retention settings.
func NewPruner(store model.RunStore, cfg *config.RetentionConfig, logger *logging.Logger) *Pruner {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		),
	)
	return &Pruner{
		cron:   c,
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Start schedules the prune job and begins the cron loop. The loop stops when
// ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	if !p.config.Enabled || p.store == nil {
		return nil
	}

	if _, err := p.cron.AddFunc(p.config.Schedule, p.pruneOnce); err != nil {
		return fmt.Errorf("schedule retention job: %w", err)
	}
	p.cron.Start()
	p.logger.Infof("Retention pruner started (schedule %q, max age %s)", p.config.Schedule, p.config.MaxAge)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts the cron loop.
func (p *Pruner) Stop() {
	p.cron.Stop()
}

func (p *Pruner) pruneOnce() {
	cutoff := time.Now().Add(-p.config.MaxAge)
	removed, err := p.store.PruneRunsBefore(cutoff)
	if err != nil {
		p.logger.Errorf("Retention prune failed: %v", err)
		return
	}
	if removed > 0 {
		p.logger.Infof("Retention prune removed %d tool runs older than %s", removed, cutoff.Format(time.RFC3339))
	}
}
