// Package live implements the streaming price pipeline:
// subscribe -> filter and normalize -> time buffer -> coalesce -> store.
package live

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

const (
	// updateLiveRates is the time-buffer window: inbound updates
	// accumulate for this long before one coalesced store write.
	updateLiveRates = time.Second

	restartAfterError    = 60 * time.Second
	restartAfterComplete = 30 * time.Second
	autoRebootAfter      = 4 * time.Hour
	rebootSettle         = 10 * time.Second
)

// errReboot marks the periodic recycle of a healthy subscription.
var errReboot = errors.New("live pipeline auto-reboot")

type Pipeline struct {
	provider port.Provider
	store    port.Store
	refresh  port.RefreshService
	debug    bool
}

// NewPipeline builds the live-price pipeline. debug enables per-batch
// diagnostics (DEBUG_LIVE_RATES).
func NewPipeline(provider port.Provider, store port.Store, refresh port.RefreshService, debug bool) *Pipeline {
	return &Pipeline{
		provider: provider,
		store:    store,
		refresh:  refresh,
		debug:    debug,
	}
}

// Run drives one subscription lifetime. It returns nil when the provider
// stream completes naturally, errReboot on the 4h recycle, and an error
// otherwise. The subscription transport is released on every path.
func (p *Pipeline) Run(ctx context.Context) error {
	// The pair set must exist before subscribing: some providers derive
	// their subscription list from it.
	if _, err := p.refresh.RefreshAvailablePairExchanges(ctx); err != nil {
		return err
	}

	updates, unsubscribe, err := p.provider.SubscribePriceUpdates(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	slog.Info("Live pipeline subscribed", "provider", p.provider.Name())

	reboot := time.NewTimer(autoRebootAfter)
	defer reboot.Stop()
	ticker := time.NewTicker(updateLiveRates)
	defer ticker.Stop()

	batch := make(map[string]float64)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				p.flush(ctx, batch)
				slog.Info("Live subscription completed")
				return nil
			}
			p.ingest(batch, update)

		case <-ticker.C:
			p.flush(ctx, batch)
			batch = make(map[string]float64)

		case <-reboot.C:
			p.flush(ctx, batch)
			return errReboot

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ingest filters and normalizes one inbound update into the batch. Within
// a batch the last rate per id wins.
func (p *Pipeline) ingest(batch map[string]float64, update domain.PriceUpdate) {
	_, from, to, err := domain.ParsePairExchangeID(update.PairExchangeID)
	if err != nil {
		slog.Warn("Dropping malformed price update", "id", update.PairExchangeID)
		return
	}
	if !domain.IsTickerSupported(from) || !domain.IsTickerSupported(to) {
		return
	}
	rate, err := domain.ToCentSatRate(from, to, update.Price)
	if err != nil {
		return
	}
	batch[update.PairExchangeID] = rate
}

// flush writes one coalesced batch. Empty batches are discarded without a
// store call.
func (p *Pipeline) flush(ctx context.Context, batch map[string]float64) {
	if len(batch) == 0 {
		return
	}
	updates := make([]domain.PriceUpdate, 0, len(batch))
	for id, rate := range batch {
		updates = append(updates, domain.PriceUpdate{PairExchangeID: id, Price: rate})
	}
	if err := p.store.UpdateLiveRates(ctx, updates); err != nil {
		slog.Error("Failed to write live rates", "count", len(updates), "error", err)
		return
	}
	if p.debug {
		slog.Info("Live rates batch written", "count", len(updates))
	}
}

// Supervise reruns the pipeline forever: 60s after an error, 30s after a
// natural completion, and a 10s settle after the 4h auto-reboot. It
// returns when ctx is cancelled.
func (p *Pipeline) Supervise(ctx context.Context) {
	for {
		err := p.Run(ctx)
		if ctx.Err() != nil {
			slog.Info("Live pipeline supervisor stopped")
			return
		}

		var delay time.Duration
		switch {
		case errors.Is(err, errReboot):
			slog.Info("Live pipeline auto-reboot", "settle", rebootSettle)
			delay = rebootSettle
		case err != nil:
			slog.Error("Live pipeline failed, restarting", "error", err, "delay", restartAfterError)
			delay = restartAfterError
		default:
			slog.Info("Live pipeline completed, restarting", "delay", restartAfterComplete)
			delay = restartAfterComplete
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			slog.Info("Live pipeline supervisor stopped")
			return
		}
	}
}
