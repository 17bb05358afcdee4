package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
)

const (
	pendingKey   = "payments:pending"
	completedKey = "payments:completed"
	expiryKey    = "payments:expiry"
)

func paymentKey(id string) string { return "payment:" + id }

func activePaymentKey(userID string) string { return "user:" + userID + ":activePayment" }

// RedisOptions configures connectivity to the ledger store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store on a Redis instance using the schema
// payment:{id} hashes, payments:pending / payments:completed sets, a
// payments:expiry sorted set scored by epoch millis, and
// user:{id}:activePayment strings.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Payment(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	fields, err := s.client.HGetAll(ctx, paymentKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return domain.PaymentFromFields(fields)
}

func (s *RedisStore) PutPayment(ctx context.Context, p *domain.PaymentRequest) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, paymentKey(p.ID), fieldsToArgs(p.Fields())...).Err(); err != nil {
		return fmt.Errorf("store payment %s: %w", p.ID, err)
	}
	return nil
}

// UpdateStatusGuarded uses WATCH so the status check and the write happen
// atomically with respect to other ledger writers.
func (s *RedisStore) UpdateStatusGuarded(ctx context.Context, id string, from, to domain.Status, extra map[string]string) (bool, error) {
	key := paymentKey(id)
	applied := false

	txn := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "status").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if domain.Status(current) != from {
			return nil
		}

		fields := map[string]string{"status": string(to)}
		for k, v := range extra {
			fields[k] = v
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldsToArgs(fields)...)
			return nil
		})
		if err != nil {
			return err
		}
		applied = true
		return nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			applied = false
			continue
		}
		if err != nil {
			return false, fmt.Errorf("guarded update of payment %s: %w", id, err)
		}
		return applied, nil
	}
	return false, nil
}

func (s *RedisStore) PendingIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, pendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) AddPending(ctx context.Context, id string) error {
	return s.client.SAdd(ctx, pendingKey, id).Err()
}

func (s *RedisStore) RemovePending(ctx context.Context, id string) error {
	return s.client.SRem(ctx, pendingKey, id).Err()
}

func (s *RedisStore) AddCompleted(ctx context.Context, id string) error {
	return s.client.SAdd(ctx, completedKey, id).Err()
}

func (s *RedisStore) ScheduleExpiry(ctx context.Context, id string, at time.Time) error {
	return s.client.ZAdd(ctx, expiryKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: id,
	}).Err()
}

func (s *RedisStore) DueExpiries(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan expiry index: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) DropExpiry(ctx context.Context, id string) error {
	return s.client.ZRem(ctx, expiryKey, id).Err()
}

func (s *RedisStore) ActivePayment(ctx context.Context, userID string) (string, error) {
	id, err := s.client.Get(ctx, activePaymentKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load active payment for user %s: %w", userID, err)
	}
	return id, nil
}

func (s *RedisStore) SetActivePayment(ctx context.Context, userID, paymentID string) error {
	return s.client.Set(ctx, activePaymentKey(userID), paymentID, 0).Err()
}

func (s *RedisStore) ClearActivePayment(ctx context.Context, userID string) error {
	return s.client.Del(ctx, activePaymentKey(userID)).Err()
}

func (s *RedisStore) MemoInUse(ctx context.Context, memo string) (bool, error) {
	ids, err := s.PendingIDs(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		stored, err := s.client.HGet(ctx, paymentKey(id), "memo").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("check memo for payment %s: %w", id, err)
		}
		if stored == memo {
			return true, nil
		}
	}
	return false, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func fieldsToArgs(fields map[string]string) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
