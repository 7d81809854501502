// Package runlock keeps two reconciliation runs from writing the same fact
// table at once.
package runlock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

const defaultLockTTL = 30 * time.Minute

// Lock coordinates exclusive runs.
type Lock interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// redisStore is the slice of the redis client the lock needs.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	DeleteIfEqual(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a single key holding an owner token with a TTL, so a crashed
// run frees the lock once the TTL passes.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "redis client required for lock")
	}
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire takes the lock for the TTL. When another run holds it the error is
// RUN_LOCKED and names the holder.
func (l *RedisLock) Acquire(ctx context.Context) error {
	token := ownerToken()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire run lock")
	}
	if ok {
		l.owner = token
		return nil
	}

	details := map[string]any{"key": l.key}
	if holder, err := l.client.Get(ctx, l.key); err == nil {
		details["holder"] = holder
	}
	return pkgerrors.New(pkgerrors.CodeLocked, "run lock held").WithDetails(details)
}

// Release deletes the key if this lock still owns it. A lock that expired and
// was taken by another run is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.client.DeleteIfEqual(ctx, l.key, owner); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release run lock")
	}
	return nil
}

func ownerToken() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString())
}

// Noop is used when no lock backend is configured.
type Noop struct{}

func (Noop) Acquire(context.Context) error { return nil }
func (Noop) Release(context.Context) error { return nil }
