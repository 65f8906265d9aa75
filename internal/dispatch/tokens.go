package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

var ErrAlreadyRunning = errors.New("source already has a run in flight")

// Release gives a run token back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Tokens hands out at most one run token per source at a time.
type Tokens interface {
	Acquire(ctx context.Context, sourceID int64) (Release, error)
	Held(ctx context.Context, sourceID int64) (bool, error)
}

// MemoryTokens is the single-process token set.
type MemoryTokens struct {
	mu   sync.Mutex
	held map[int64]uint64
	seq  uint64
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{held: map[int64]uint64{}}
}

func (m *MemoryTokens) Acquire(_ context.Context, sourceID int64) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[sourceID]; ok {
		return nil, fmt.Errorf("source %d: %w", sourceID, ErrAlreadyRunning)
	}
	m.seq++
	gen := m.seq
	m.held[sourceID] = gen

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		// only the holder that acquired this generation may release it
		if m.held[sourceID] == gen {
			delete(m.held, sourceID)
		}
		return nil
	}, nil
}

func (m *MemoryTokens) Held(_ context.Context, sourceID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[sourceID]
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisTokens shares tokens between engine processes. Each token expires
// after ttl so a crashed holder cannot block its source forever.
type RedisTokens struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTokens(client *redis.Client, ttl time.Duration) *RedisTokens {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisTokens{client: client, prefix: "astremina:run:", ttl: ttl}
}

// DialRedis connects and pings with a short retry, the way the store opens
// its database.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(250*time.Millisecond), 8), ctx)
	err := backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, b)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisTokens) key(sourceID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, sourceID)
}

func (r *RedisTokens) Acquire(ctx context.Context, sourceID int64) (Release, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	owner := hex.EncodeToString(b)
	key := r.key(sourceID)

	ok, err := r.client.SetNX(ctx, key, owner, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run token %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("source %d: %w", sourceID, ErrAlreadyRunning)
	}

	return func(ctx context.Context) error {
		if _, err := releaseScript.Run(ctx, r.client, []string{key}, owner).Result(); err != nil {
			return fmt.Errorf("release run token %s: %w", key, err)
		}
		return nil
	}, nil
}

func (r *RedisTokens) Held(ctx context.Context, sourceID int64) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(sourceID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
