// Package reloadlock guards AdapterManager.Reload across replicas sharing
// one config source with a Redis-backed distributed lock, adapted from the
// teacher's LockManager/Lock interfaces (internal/config/update_interfaces.go)
// onto a single purpose: only one replica runs a given reload at a time.
package reloadlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config controls lock behavior.
type Config struct {
	TTL            time.Duration `env:"RELOAD_LOCK_TTL" default:"30s"`
	MaxRetries     int           `env:"RELOAD_LOCK_MAX_RETRIES" default:"3"`
	RetryInterval  time.Duration `env:"RELOAD_LOCK_RETRY_INTERVAL" default:"100ms"`
	AcquireTimeout time.Duration `env:"RELOAD_LOCK_ACQUIRE_TIMEOUT" default:"5s"`
	ReleaseTimeout time.Duration `env:"RELOAD_LOCK_RELEASE_TIMEOUT" default:"2s"`
}

func defaultConfig() *Config {
	return &Config{
		TTL:            30 * time.Second,
		MaxRetries:     3,
		RetryInterval:  100 * time.Millisecond,
		AcquireTimeout: 5 * time.Second,
		ReleaseTimeout: 2 * time.Second,
	}
}

// Lock is a single Redis-backed mutual-exclusion lock identified by key. Its
// value is a random token so Release/Extend never touch a lock some other
// holder re-acquired after this one expired.
type Lock struct {
	redis    *redis.Client
	key      string
	value    string
	ttl      time.Duration
	logger   *slog.Logger
	acquired bool
}

// New creates a lock for key. config may be nil to use defaults.
func New(client *redis.Client, key string, config *Config, logger *slog.Logger) *Lock {
	if config == nil {
		config = defaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Lock{
		redis:  client,
		key:    key,
		value:  generateToken(),
		ttl:    config.TTL,
		logger: logger,
	}
}

func generateToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("reloadlock_%d", time.Now().UnixNano())
	}
	return "reloadlock_" + hex.EncodeToString(b)
}

// Acquire attempts the lock once, with no retries.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.AcquireWithRetry(ctx, 0)
}

// AcquireWithRetry attempts the lock up to maxRetries+1 times, backing off
// between attempts. A false, nil result means another replica holds it.
func (l *Lock) AcquireWithRetry(ctx context.Context, maxRetries int) (bool, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		acquireCtx, cancel := context.WithTimeout(ctx, l.ttl)
		ok, err := l.redis.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
		cancel()

		if err != nil {
			l.logger.Error("reloadlock: acquire failed", "key", l.key, "attempt", attempt+1, "error", err)
			if attempt == maxRetries {
				return false, fmt.Errorf("reloadlock: acquire %q after %d attempts: %w", l.key, maxRetries+1, err)
			}
			time.Sleep(l.retryInterval(attempt))
			continue
		}

		if ok {
			l.acquired = true
			l.logger.Info("reloadlock: acquired", "key", l.key, "ttl", l.ttl)
			return true, nil
		}

		if attempt == maxRetries {
			return false, nil
		}
		time.Sleep(l.retryInterval(attempt))
	}

	return false, nil
}

// releaseScript deletes the key only if it still holds this lock's token,
// so a lock that expired and was re-acquired by another replica is never
// released out from under its new holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Release drops the lock if still held. It is a no-op if Acquire never
// succeeded.
func (l *Lock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	releaseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.redis.Eval(releaseCtx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("reloadlock: release %q: %w", l.key, err)
	}

	if n, _ := result.(int64); n == 1 {
		l.acquired = false
		l.logger.Info("reloadlock: released", "key", l.key)
		return nil
	}

	l.logger.Warn("reloadlock: lock already expired or reacquired elsewhere", "key", l.key)
	return nil
}

// Extend pushes the lock's expiry out to newTTL, provided this holder still
// owns it.
func (l *Lock) Extend(ctx context.Context, newTTL time.Duration) error {
	if !l.acquired {
		return fmt.Errorf("reloadlock: cannot extend a lock that was not acquired")
	}

	extendCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.redis.Eval(extendCtx, extendScript, []string{l.key}, l.value, int(newTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("reloadlock: extend %q: %w", l.key, err)
	}
	if n, _ := result.(int64); n == 1 {
		l.ttl = newTTL
		return nil
	}
	return fmt.Errorf("reloadlock: lock %q already expired or reacquired elsewhere", l.key)
}

// IsAcquired reports whether this holder currently owns the lock.
func (l *Lock) IsAcquired() bool { return l.acquired }

// Key returns the lock's Redis key.
func (l *Lock) Key() string { return l.key }

func (l *Lock) retryInterval(attempt int) time.Duration {
	base := 100 * time.Millisecond
	interval := time.Duration(attempt+1) * base
	jitter := time.Duration(float64(interval) * 0.25 * (2*float64(time.Now().UnixNano()%1000)/1000 - 1))
	return interval + jitter
}

// Manager tracks reload locks by key, so a caller can acquire a lock and
// later release it via the same Manager by key alone. The admin reload
// endpoint uses one fixed key for every reload, named or catalog-wide.
type Manager struct {
	redis  *redis.Client
	config *Config
	logger *slog.Logger
	locks  map[string]*Lock
}

// NewManager creates a lock manager. config may be nil to use defaults.
func NewManager(client *redis.Client, config *Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = defaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{redis: client, config: config, logger: logger, locks: make(map[string]*Lock)}
}

// Acquire creates and acquires a lock for key, remembering it under the
// manager so Release can later be called by key alone.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lock, error) {
	lock := New(m.redis, key, m.config, m.logger)

	ok, err := lock.AcquireWithRetry(ctx, m.config.MaxRetries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reloadlock: %q is held by another replica", key)
	}

	m.locks[key] = lock
	return lock, nil
}

// Release releases the lock previously acquired for key, if any.
func (m *Manager) Release(ctx context.Context, key string) error {
	lock, ok := m.locks[key]
	if !ok {
		return nil
	}
	if err := lock.Release(ctx); err != nil {
		return err
	}
	delete(m.locks, key)
	return nil
}

// ReleaseAll releases every lock this manager holds, used at shutdown.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	var lastErr error
	for key, lock := range m.locks {
		if err := lock.Release(ctx); err != nil {
			m.logger.Error("reloadlock: release failed during shutdown", "key", key, "error", err)
			lastErr = err
		}
	}
	m.locks = make(map[string]*Lock)
	return lastErr
}

// Close is an alias for ReleaseAll, satisfying the teacher's io.Closer-style
// lifecycle convention.
func (m *Manager) Close(ctx context.Context) error { return m.ReleaseAll(ctx) }

// Get returns the lock this manager currently holds for key, if any.
func (m *Manager) Get(key string) (*Lock, bool) {
	lock, ok := m.locks[key]
	return lock, ok
}

// Keys lists the keys this manager currently holds locks for.
func (m *Manager) Keys() []string {
	keys := make([]string, 0, len(m.locks))
	for k := range m.locks {
		keys = append(keys, k)
	}
	return keys
}
