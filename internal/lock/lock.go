package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	serviceKeyPrefix  = "vesta:service:lock:"
	usernameKeyPrefix = "vesta:username:"
)

// Locker serializes mutations of one service across replicas
type Locker interface {
	AcquireServiceLock(ctx context.Context, serviceID string, ttl time.Duration) (bool, error)
	ReleaseServiceLock(ctx context.Context, serviceID string) error
}

// RedisLocker implements Locker using Redis SET NX EX. It also reserves
// generated usernames so two replicas never hand out the same login.
type RedisLocker struct {
	rdb         *redis.Client
	reservation time.Duration
}

// New returns a locker whose username reservations live for reservation.
func New(rdb *redis.Client, reservation time.Duration) *RedisLocker {
	if reservation <= 0 {
		reservation = 10 * time.Minute
	}
	return &RedisLocker{rdb: rdb, reservation: reservation}
}

// AcquireServiceLock tries to acquire an exclusive lock for serviceID.
// Returns true if acquired, false if already held by another replica.
func (l *RedisLocker) AcquireServiceLock(ctx context.Context, serviceID string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, serviceKeyPrefix+serviceID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX: %w", err)
	}
	return ok, nil
}

// ReleaseServiceLock releases the lock for serviceID
func (l *RedisLocker) ReleaseServiceLock(ctx context.Context, serviceID string) error {
	return l.rdb.Del(ctx, serviceKeyPrefix+serviceID).Err()
}

// ReserveUsername claims username on host for the reservation window.
// False means another caller holds it.
func (l *RedisLocker) ReserveUsername(ctx context.Context, host, username string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, usernameKeyPrefix+host+":"+username, "1", l.reservation).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX: %w", err)
	}
	return ok, nil
}

// MockLocker is an in-memory locker for testing
type MockLocker struct {
	mu        sync.Mutex
	locks     map[string]bool
	usernames map[string]bool
}

func NewMock() *MockLocker {
	return &MockLocker{
		locks:     make(map[string]bool),
		usernames: make(map[string]bool),
	}
}

func (m *MockLocker) AcquireServiceLock(_ context.Context, serviceID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[serviceID] {
		return false, nil
	}
	m.locks[serviceID] = true
	return true, nil
}

func (m *MockLocker) ReleaseServiceLock(_ context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, serviceID)
	return nil
}

func (m *MockLocker) ReserveUsername(_ context.Context, host, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := host + ":" + username
	if m.usernames[k] {
		return false, nil
	}
	m.usernames[k] = true
	return true, nil
}
