// Package lock provides Redis-backed mutual exclusion for analysis sessions.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another run is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ErrLockLost is returned by WithLock when the lease could not be renewed
// while fn ran, so another run may have taken the session.
var ErrLockLost = errors.New("lock lease lost")

// Common timeout values for lock acquisition.
const (
	// TimeoutImmediate returns immediately if lock cannot be acquired (no wait).
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate run detection.
	TimeoutShort = time.Second
)

// pollInterval is how often a waiting acquirer retries SET NX.
const pollInterval = 50 * time.Millisecond

// releaseScript deletes the lock only if it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// renewScript extends the lease only if the key still carries our token.
const renewScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// SessionLock is a named lock stored as a single key holding a random token.
// The key expires after lease, so a crashed holder cannot block the session
// forever. WithLock renews the lease every third of it while fn runs.
type SessionLock struct {
	rdb      redis.Cmdable
	key      string
	token    string
	lease    time.Duration
	held     bool
	pollGap  time.Duration
	renewGap time.Duration
}

// NewSessionLock creates a lock on key. The lock is not acquired until
// AcquireLock is called.
func NewSessionLock(rdb redis.Cmdable, key string, lease time.Duration) *SessionLock {
	return &SessionLock{
		rdb:     rdb,
		key:     key,
		token:   uuid.NewString(),
		lease:    lease,
		pollGap:  pollInterval,
		renewGap: lease / 3,
	}
}

// AcquireLock attempts to acquire the lock, waiting up to timeout.
// Returns true if the lock was acquired, false if timeout was reached.
// Returns an error if a store call fails.
func (l *SessionLock) AcquireLock(ctx context.Context, timeout time.Duration) (bool, error) {
	if l.held {
		return true, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.lease).Result()
		if err != nil {
			return false, fmt.Errorf("failed to execute SET NX on %q: %w", l.key, err)
		}
		if ok {
			l.held = true
			return true, nil
		}

		if !time.Now().Add(l.pollGap).Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.pollGap):
		}
	}
}

// ReleaseLock releases the lock if this instance still owns it.
// Returns true if the key was deleted, false if the lock was not held or had
// already expired and been taken by someone else.
func (l *SessionLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !l.held {
		return false, nil
	}

	n, err := l.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %q: %w", l.key, err)
	}
	l.held = false
	return n == 1, nil
}

// Renew resets the lease if this instance still owns the key. It returns
// false when the lock is not held or the key now belongs to someone else.
func (l *SessionLock) Renew(ctx context.Context) (bool, error) {
	if !l.held {
		return false, nil
	}
	n, err := l.rdb.Eval(ctx, renewScript, []string{l.key}, l.token, l.lease.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to renew lock %q: %w", l.key, err)
	}
	return n == 1, nil
}

// IsHeld returns true if this lock is currently held by this instance.
func (l *SessionLock) IsHeld() bool {
	return l.held
}

// Key returns the store key of the lock.
func (l *SessionLock) Key() string {
	return l.key
}

// AcquireOrFail attempts to acquire the lock with TimeoutShort.
// Returns ErrLockTimeout if another run is holding the lock.
func (l *SessionLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := l.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another run", ErrLockTimeout, l.key)
	}
	return nil
}

// WithLock executes fn while holding the lock, releasing it even if fn panics.
//
// Example:
//
//	l := lock.NewSessionLock(rdb, ns.LockKey(), time.Hour)
//	err := l.WithLock(ctx, lock.TimeoutShort, func() error {
//	    return runAnalysis()
//	})
//	if errors.Is(err, lock.ErrLockTimeout) {
//	    // another run owns the session
//	}
func (l *SessionLock) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	acquired, err := l.AcquireLock(ctx, timeout)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another run", ErrLockTimeout, l.key)
	}

	stop := make(chan struct{})
	lost := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(stop, lost, done)

	defer func() {
		close(stop)
		<-done
		// Release with a fresh context so a cancelled run still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = l.ReleaseLock(releaseCtx)
	}()

	if err := fn(); err != nil {
		return err
	}
	select {
	case <-lost:
		return fmt.Errorf("%w: lock %q expired or was taken while the run held it", ErrLockLost, l.key)
	default:
		return nil
	}
}

// keepAlive renews the lease until stop is closed. It closes lost and gives
// up once a renewal fails.
func (l *SessionLock) keepAlive(stop <-chan struct{}, lost chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	if l.renewGap <= 0 {
		return
	}

	ticker := time.NewTicker(l.renewGap)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.renewGap)
			ok, err := l.Renew(ctx)
			cancel()
			if err != nil || !ok {
				close(lost)
				return
			}
		}
	}
}

// IsLocked reports whether any run currently holds the lock on key.
func IsLocked(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock %q: %w", key, err)
	}
	return n == 1, nil
}
