package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/ledger"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/notify"
)

// Reaper sweeps the expiry index on a coarse schedule and expires payments
// that are still pending past their deadline.
type Reaper struct {
	store    ledger.Store
	notifier notify.Notifier
	logger   *slog.Logger
	interval time.Duration
	nowFn    func() time.Time
}

// NewReaper builds a reaper sweeping at the given interval.
func NewReaper(store ledger.Store, notifier notify.Notifier, logger *slog.Logger, interval time.Duration) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Reaper{
		store:    store,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		nowFn:    time.Now,
	}
}

// Run sweeps until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := r.Sweep(ctx); err != nil {
			r.logger.Error("expiry sweep failed", "error", err)
		}
	}
}

// Sweep expires every due pending payment. Whatever happens to an individual
// id, its expiry-index entry is removed so the same id is never rescanned.
func (r *Reaper) Sweep(ctx context.Context) error {
	due, err := r.store.DueExpiries(ctx, r.nowFn())
	if err != nil {
		return fmt.Errorf("scan due expiries: %w", err)
	}

	for _, id := range due {
		r.expireOne(ctx, id)
		if err := r.store.DropExpiry(ctx, id); err != nil {
			r.logger.Error("drop expiry index entry", "payment", id, "error", err)
		}
	}
	return nil
}

func (r *Reaper) expireOne(ctx context.Context, id string) {
	payment, err := r.store.Payment(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		// record already gone, nothing to expire
		return
	}
	if err != nil {
		r.logger.Error("load payment for expiry", "payment", id, "error", err)
		return
	}
	if payment.Status != domain.StatusPending {
		return
	}

	applied, err := r.store.UpdateStatusGuarded(ctx, id, domain.StatusPending, domain.StatusExpired, nil)
	if err != nil {
		r.logger.Error("expire payment", "payment", id, "error", err)
		return
	}
	if !applied {
		// the engine matched it between our read and the write
		return
	}

	if err := r.store.RemovePending(ctx, id); err != nil {
		r.logger.Error("remove expired payment from pending index", "payment", id, "error", err)
	}
	if err := r.store.ClearActivePayment(ctx, payment.UserID); err != nil {
		r.logger.Error("clear active payment", "user", payment.UserID, "error", err)
	}

	r.logger.Info("payment expired", "payment", id, "user", payment.UserID)
	msg := fmt.Sprintf("Payment %s expired before a matching transfer arrived. Please start a new one.", id)
	if err := r.notifier.Send(ctx, payment.UserID, msg); err != nil {
		r.logger.Error("expiry notification failed", "payment", id, "error", err)
	}
}
