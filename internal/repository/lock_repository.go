package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type LockRepository interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error)
	ReleaseLock(ctx context.Context, lock *DistributedLock) error
	ExtendLock(ctx context.Context, lock *DistributedLock, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

type DistributedLock struct {
	Key        string
	Value      string
	TTL        time.Duration
	AcquiredAt time.Time
}

type lockRepository struct {
	client *redis.Client
}

func NewLockRepository(client *redis.Client) LockRepository {
	return &lockRepository{
		client: client,
	}
}

const (
	lockPrefix    = "lock:"
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	extendScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("EXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

func (r *lockRepository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	lockKey := lockPrefix + key
	lockValue := uuid.New().String()

	// Try to acquire the lock with SET NX EX
	result, err := r.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !result {
		return nil, apierrors.NewConflict(fmt.Sprintf("otra operacion esta en curso para %s", key))
	}

	return &DistributedLock{
		Key:        lockKey,
		Value:      lockValue,
		TTL:        ttl,
		AcquiredAt: time.Now(),
	}, nil
}

func (r *lockRepository) ReleaseLock(ctx context.Context, lock *DistributedLock) error {
	// Use Lua script to ensure we only delete our own lock
	result, err := r.client.Eval(ctx, releaseScript, []string{lock.Key}, lock.Value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if result.(int64) == 0 {
		return fmt.Errorf("lock not found or already released: %s", lock.Key)
	}

	return nil
}

func (r *lockRepository) ExtendLock(ctx context.Context, lock *DistributedLock, ttl time.Duration) error {
	result, err := r.client.Eval(ctx, extendScript, []string{lock.Key}, lock.Value, int(ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	if result.(int64) == 0 {
		return fmt.Errorf("lock not found or not owned: %s", lock.Key)
	}

	lock.TTL = ttl
	return nil
}

func (r *lockRepository) IsLocked(ctx context.Context, key string) (bool, error) {
	lockKey := lockPrefix + key
	exists, err := r.client.Exists(ctx, lockKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock existence: %w", err)
	}

	return exists > 0, nil
}

// UserLockManager serializes balance-mutating operations per user. Every
// workflow that touches the saldo caches acquires this lock before opening
// its transaction.
type UserLockManager struct {
	lockRepo LockRepository
	ttl      time.Duration
}

func NewUserLockManager(lockRepo LockRepository, ttl time.Duration) *UserLockManager {
	return &UserLockManager{
		lockRepo: lockRepo,
		ttl:      ttl,
	}
}

func (m *UserLockManager) LockUser(ctx context.Context, userID string) (*DistributedLock, error) {
	return m.lockRepo.AcquireLock(ctx, fmt.Sprintf("user:%s:saldo", userID), m.ttl)
}

func (m *UserLockManager) LockAuction(ctx context.Context, auctionID string) (*DistributedLock, error) {
	return m.lockRepo.AcquireLock(ctx, fmt.Sprintf("auction:%s:winner", auctionID), m.ttl)
}

func (m *UserLockManager) Release(ctx context.Context, lock *DistributedLock) error {
	return m.lockRepo.ReleaseLock(ctx, lock)
}
