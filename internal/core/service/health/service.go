// Package health reports store reachability and sync staleness.
package health

import (
	"context"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

const (
	// Live rates are written every second while the sync process is
	// healthy; five minutes of silence means it is gone.
	liveRatesStaleAfter = 5 * time.Minute

	// The market cap ranking refreshes daily; one full day plus an hour
	// of slack.
	marketCapStaleAfter = 25 * time.Hour
)

type Service struct {
	store port.Store
	now   func() time.Time
}

func NewService(store port.Store) *Service {
	return &Service{store: store, now: time.Now}
}

var _ port.HealthService = (*Service)(nil)

// Status fails when the store is unreachable or holds no pair exchanges.
func (s *Service) Status(ctx context.Context) error {
	return s.store.StatusDB(ctx)
}

// Detail reports one status per service. The bool is true when all are
// OK. A store failure is returned as an error.
func (s *Service) Detail(ctx context.Context) ([]domain.ServiceStatus, bool, error) {
	if err := s.store.StatusDB(ctx); err != nil {
		return nil, false, err
	}

	meta, err := s.store.GetMeta(ctx)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	statuses := []domain.ServiceStatus{
		{Service: "database", Status: domain.StatusOK},
		{Service: "live-rates", Status: staleness(now, meta.LastLiveRatesSync, liveRatesStaleAfter)},
		{Service: "marketcap", Status: staleness(now, meta.LastMarketCapSync, marketCapStaleAfter)},
	}

	allOK := true
	for _, st := range statuses {
		if st.Status != domain.StatusOK {
			allOK = false
		}
	}
	return statuses, allOK, nil
}

func staleness(now, last time.Time, tolerance time.Duration) string {
	if last.IsZero() || now.Sub(last) > tolerance {
		return domain.StatusKO
	}
	return domain.StatusOK
}
