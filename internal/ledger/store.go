package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
)

// ErrNotFound indicates the requested payment record does not exist.
var ErrNotFound = errors.New("payment not found")

// Store is the contract over the shared key-value ledger. The backing store
// offers single-key atomic operations only — no cross-key transactions — so
// every status change goes through UpdateStatusGuarded, which checks the
// current status before writing. Concurrent writers (the reconciliation engine
// racing the expiry reaper on the same payment) are resolved by whoever's
// guard passes first.
type Store interface {
	// Payment loads a payment record, or ErrNotFound.
	Payment(ctx context.Context, id string) (*domain.PaymentRequest, error)
	// PutPayment writes all fields of a payment record.
	PutPayment(ctx context.Context, p *domain.PaymentRequest) error
	// UpdateStatusGuarded moves a payment from one status to another, merging
	// extra fields into the record, if and only if the stored status still
	// equals from. Returns false when another writer got there first.
	UpdateStatusGuarded(ctx context.Context, id string, from, to domain.Status, extra map[string]string) (bool, error)

	PendingIDs(ctx context.Context) ([]string, error)
	AddPending(ctx context.Context, id string) error
	RemovePending(ctx context.Context, id string) error
	AddCompleted(ctx context.Context, id string) error

	// ScheduleExpiry records the moment the payment becomes stale.
	ScheduleExpiry(ctx context.Context, id string, at time.Time) error
	// DueExpiries returns payment ids whose expiry moment is at or before now.
	DueExpiries(ctx context.Context, now time.Time) ([]string, error)
	// DropExpiry removes a payment from the expiry index.
	DropExpiry(ctx context.Context, id string) error

	ActivePayment(ctx context.Context, userID string) (string, error)
	SetActivePayment(ctx context.Context, userID, paymentID string) error
	ClearActivePayment(ctx context.Context, userID string) error

	// MemoInUse reports whether any currently pending payment already carries
	// the memo. Checked at creation time to avoid ambiguous matches.
	MemoInUse(ctx context.Context, memo string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
