package server

import (
	"context"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/ledger"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// LedgerHealthService verifies ledger connectivity as part of health checks.
type LedgerHealthService struct {
	Store ledger.Store
}

// Probe implements the HealthService interface.
func (s LedgerHealthService) Probe(ctx context.Context) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Ping(ctx)
}
