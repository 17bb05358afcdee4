package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
)

// MemoryStore is an in-memory implementation of Store used for unit testing
// the reconciliation engine and reaper without a running Redis.
type MemoryStore struct {
	mu        sync.Mutex
	payments  map[string]map[string]string
	pending   map[string]struct{}
	completed map[string]struct{}
	expiry    map[string]int64
	active    map[string]string
	err       error
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:  make(map[string]map[string]string),
		pending:   make(map[string]struct{}),
		completed: make(map[string]struct{}),
		expiry:    make(map[string]int64),
		active:    make(map[string]string),
	}
}

// WithError forces every subsequent call to fail with err. Pass nil to clear.
func (m *MemoryStore) WithError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MemoryStore) Payment(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	fields, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return domain.PaymentFromFields(copied)
}

func (m *MemoryStore) PutPayment(ctx context.Context, p *domain.PaymentRequest) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.payments[p.ID] = p.Fields()
	return nil
}

func (m *MemoryStore) UpdateStatusGuarded(ctx context.Context, id string, from, to domain.Status, extra map[string]string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	fields, ok := m.payments[id]
	if !ok {
		return false, ErrNotFound
	}
	if domain.Status(fields["status"]) != from {
		return false, nil
	}
	fields["status"] = string(to)
	for k, v := range extra {
		fields[k] = v
	}
	return true, nil
}

func (m *MemoryStore) PendingIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) AddPending(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pending[id] = struct{}{}
	return nil
}

func (m *MemoryStore) RemovePending(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.pending, id)
	return nil
}

func (m *MemoryStore) AddCompleted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.completed[id] = struct{}{}
	return nil
}

func (m *MemoryStore) ScheduleExpiry(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.expiry[id] = at.UnixMilli()
	return nil
}

func (m *MemoryStore) DueExpiries(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cutoff := now.UnixMilli()
	var due []string
	for id, at := range m.expiry {
		if at <= cutoff {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	return due, nil
}

func (m *MemoryStore) DropExpiry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.expiry, id)
	return nil
}

func (m *MemoryStore) ActivePayment(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.active[userID], nil
}

func (m *MemoryStore) SetActivePayment(ctx context.Context, userID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.active[userID] = paymentID
	return nil
}

func (m *MemoryStore) ClearActivePayment(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.active, userID)
	return nil
}

func (m *MemoryStore) MemoInUse(ctx context.Context, memo string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for id := range m.pending {
		if fields, ok := m.payments[id]; ok && fields["memo"] == memo {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MemoryStore) Close() error { return nil }

// InExpiryIndex reports whether the id is still scheduled, for assertions in
// tests.
func (m *MemoryStore) InExpiryIndex(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.expiry[id]
	return ok
}

// InPending reports pending-set membership, for assertions in tests.
func (m *MemoryStore) InPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}
