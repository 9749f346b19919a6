package main

import (
	"context"
	"sync"
	"time"

	"github.com/matthewjhunter/coviddash"
	"github.com/sirupsen/logrus"
)

// poller runs a background sync loop.
type poller struct {
	engine   *coviddash.Engine
	interval time.Duration
	log      *logrus.Logger

	mu       sync.Mutex // held for the duration of a sync
	stateMu  sync.Mutex
	last     *coviddash.SyncResult
	lastAt   time.Time
	done     chan struct{}
	stopOnce sync.Once
}

func newPoller(engine *coviddash.Engine, interval time.Duration, log *logrus.Logger) *poller {
	return &poller{
		engine:   engine,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	p.log.WithField("interval", p.interval).Info("poller: started")
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.log.Info("poller: stopped")
	})
}

// poll runs a single sync. Concurrent callers (the loop and POST /api/sync)
// are serialized.
func (p *poller) poll(ctx context.Context) (*coviddash.SyncResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.engine.Sync(ctx)
	if result != nil {
		p.stateMu.Lock()
		p.last = result
		p.lastAt = time.Now()
		p.stateMu.Unlock()
		p.log.WithFields(logrus.Fields{
			"status":       result.Status,
			"updated":      result.Updated,
			"not_modified": result.NotModified,
			"skipped":      result.Skipped,
			"failed":       result.Failed,
		}).Info("poller: sync finished")
	}
	return result, err
}

// lastResult returns the most recent sync result and when it finished.
func (p *poller) lastResult() (*coviddash.SyncResult, time.Time) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.last, p.lastAt
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		p.log.WithError(err).Warn("poller: initial poll error")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				p.log.WithError(err).Warn("poller: poll error")
			}
		}
	}
}
