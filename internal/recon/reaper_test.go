package recon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/ledger"
)

func TestSweepExpiresDuePendingPayment(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	payment := seedPayment(t, store, "p1", "73920154", 260100)

	notifier := &recordingNotifier{}
	reaper := NewReaper(store, notifier, nil, time.Hour)
	reaper.nowFn = func() time.Time { return payment.ExpiresAt.Add(time.Second) }

	require.NoError(t, reaper.Sweep(ctx))

	got, err := store.Payment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	assert.False(t, store.InPending(payment.ID))
	assert.False(t, store.InExpiryIndex(payment.ID))
	assert.Equal(t, 1, notifier.count())

	active, err := store.ActivePayment(ctx, payment.UserID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSweepLeavesFuturePaymentsAlone(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	payment := seedPayment(t, store, "p1", "73920154", 260100)

	reaper := NewReaper(store, &recordingNotifier{}, nil, time.Hour)
	reaper.nowFn = func() time.Time { return payment.ExpiresAt.Add(-time.Minute) }

	require.NoError(t, reaper.Sweep(ctx))

	got, err := store.Payment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, store.InExpiryIndex(payment.ID))
}

func TestSweepDropsIndexEntryForMissingPayment(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	require.NoError(t, store.ScheduleExpiry(ctx, "ghost", time.Now().Add(-time.Hour)))

	reaper := NewReaper(store, &recordingNotifier{}, nil, time.Hour)
	require.NoError(t, reaper.Sweep(ctx))

	assert.False(t, store.InExpiryIndex("ghost"))
}

func TestSweepSkipsNonPendingButStillDropsIndex(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	payment := seedPayment(t, store, "p1", "73920154", 260100)

	applied, err := store.UpdateStatusGuarded(ctx, payment.ID, domain.StatusPending, domain.StatusProcessing, nil)
	require.NoError(t, err)
	require.True(t, applied)

	notifier := &recordingNotifier{}
	reaper := NewReaper(store, notifier, nil, time.Hour)
	reaper.nowFn = func() time.Time { return payment.ExpiresAt.Add(time.Second) }

	require.NoError(t, reaper.Sweep(ctx))

	got, err := store.Payment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status, "in-flight payments are not expired")
	assert.False(t, store.InExpiryIndex(payment.ID), "index entry removed regardless")
	assert.Equal(t, 0, notifier.count())
}
