// Package prune evicts cached per-area series the user no longer needs.
package prune

import (
	"context"
	"fmt"

	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
)

// Store is the eviction primitive the pruner needs.
type Store interface {
	PruneAreaData(ctx context.Context, keep ...string) (storage.PruneStats, error)
}

// Pruner keeps the overview and saved areas and drops every other per-area series.
type Pruner struct {
	store Store
	log   *logrus.Logger
}

func New(store Store, logger *logrus.Logger) *Pruner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pruner{store: store, log: logger}
}

// Prune deletes, in one transaction, every area_data row and area metadata
// row whose code is neither the overview nor saved.
func (p *Pruner) Prune(ctx context.Context) (storage.PruneStats, error) {
	stats, err := p.store.PruneAreaData(ctx, storage.OverviewCode)
	if err != nil {
		return stats, fmt.Errorf("prune: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"records":  stats.RecordsDeleted,
		"metadata": stats.MetadataDeleted,
	}).Info("prune: evicted unsaved areas")
	return stats, nil
}
