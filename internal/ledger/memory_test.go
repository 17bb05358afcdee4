package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
)

func newPayment(id string) *domain.PaymentRequest {
	now := time.Now()
	return &domain.PaymentRequest{
		ID:         id,
		UserID:     "u1",
		Email:      "u1@example.com",
		AmountUSDT: decimal.RequireFromString("10"),
		AmountVND:  260100,
		Rate:       decimal.RequireFromString("26010"),
		Memo:       "73920154",
		Status:     domain.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Payment(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	p := newPayment("p1")
	require.NoError(t, store.PutPayment(ctx, p))

	got, err := store.Payment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p.Memo, got.Memo)
	assert.Equal(t, p.AmountVND, got.AmountVND)
}

func TestGuardedUpdateChecksCurrentStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.PutPayment(ctx, newPayment("p1")))

	applied, err := store.UpdateStatusGuarded(ctx, "p1", domain.StatusPending, domain.StatusProcessing, map[string]string{
		"matchedTxRef": "FT1",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// a second writer assuming pending must lose
	applied, err = store.UpdateStatusGuarded(ctx, "p1", domain.StatusPending, domain.StatusExpired, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.Payment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, "FT1", got.MatchedTxRef)

	_, err = store.UpdateStatusGuarded(ctx, "nope", domain.StatusPending, domain.StatusExpired, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpiryIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.ScheduleExpiry(ctx, "due", now.Add(-time.Minute)))
	require.NoError(t, store.ScheduleExpiry(ctx, "later", now.Add(time.Hour)))

	due, err := store.DueExpiries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"due"}, due)

	require.NoError(t, store.DropExpiry(ctx, "due"))
	due, err = store.DueExpiries(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMemoInUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := newPayment("p1")
	require.NoError(t, store.PutPayment(ctx, p))
	require.NoError(t, store.AddPending(ctx, p.ID))

	used, err := store.MemoInUse(ctx, p.Memo)
	require.NoError(t, err)
	assert.True(t, used)

	used, err = store.MemoInUse(ctx, "00000000")
	require.NoError(t, err)
	assert.False(t, used)

	// memo of a non-pending payment does not count
	require.NoError(t, store.RemovePending(ctx, p.ID))
	used, err = store.MemoInUse(ctx, p.Memo)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestInjectedErrorPropagates(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")
	store := NewMemoryStore().WithError(boom)

	_, err := store.PendingIDs(ctx)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, store.Ping(ctx), boom)
}
