package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealgate/dealgate/internal/config"
	"github.com/dealgate/dealgate/internal/storage"
)

// Pool polls the ledger for due deliveries and fans them out to a bounded
// number of concurrent workers. Deliveries for the same endpoint may run
// concurrently; ordering between events is not guaranteed.
type Pool struct {
	store    storage.Store
	worker   *Worker
	workers  int
	pollRate time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewPool(cfg config.DispatchConfig, store storage.Store, log zerolog.Logger) *Pool {
	sender := NewSender(cfg.Timeout)
	backoff := Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay}
	worker := NewWorker(store, sender, cfg.MaxAttempts, backoff, log)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		store:    store,
		worker:   worker,
		workers:  workers,
		pollRate: 1 * time.Second,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("starting delivery worker pool")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()
}

func (p *Pool) Stop() {
	p.log.Info().Msg("stopping delivery worker pool")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("delivery worker pool stopped")
}

func (p *Pool) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollRate)
	defer ticker.Stop()

	sem := make(chan struct{}, p.workers)

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			deliveries, err := p.store.GetDueDeliveries(ctx, p.workers)
			if err != nil {
				p.log.Error().Err(err).Msg("failed to fetch due deliveries")
				continue
			}

			for _, d := range deliveries {
				d := d
				sem <- struct{}{}
				p.wg.Add(1)
				go func() {
					defer p.wg.Done()
					defer func() { <-sem }()
					p.worker.Process(ctx, d)
				}()
			}
		}
	}
}
