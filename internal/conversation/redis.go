package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "chatidea:session:"
	defaultLockTTL     = 10 * time.Second
	defaultLockWait    = 5 * time.Second
	lockPollInterval   = 25 * time.Millisecond
)

const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
	IdleTimeout time.Duration
	LockTTL     time.Duration
	LockWait    time.Duration
}

// RedisStore shares session stacks between API replicas. Each stack is a
// JSON document that expires after the idle timeout; turns are serialised
// with a per-session lock key.
type RedisStore struct {
	rdb    redisClient
	cfg    RedisConfig
	limits Limits
}

func OpenRedis(ctx context.Context, cfg RedisConfig, limits Limits) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisStore(rdb, cfg, limits), nil
}

func newRedisStore(rdb redisClient, cfg RedisConfig, limits Limits) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return &RedisStore{rdb: rdb, cfg: cfg, limits: limits.withDefaults()}
}

func (r *RedisStore) key(sessionID string) string {
	return r.cfg.Prefix + sessionID
}

func (r *RedisStore) Update(ctx context.Context, sessionID string, fn func(*Stack) error) error {
	key := r.key(sessionID)
	unlock, err := r.lock(ctx, key+":lock")
	if err != nil {
		return err
	}
	defer unlock()

	stack, err := r.load(ctx, key)
	if err != nil {
		return err
	}
	if err := fn(stack); err != nil {
		return err
	}
	raw, err := json.Marshal(stack)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := r.rdb.Set(ctx, key, raw, r.cfg.IdleTimeout).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, key string) (*Stack, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return NewStack(r.limits), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	stack, err := decodeStack(raw)
	if err != nil {
		return nil, err
	}
	stack.setLimits(r.limits)
	return stack, nil
}

func (r *RedisStore) lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.LockWait)
	defer cancel()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		acquired, err := r.rdb.SetNX(waitCtx, key, token, r.cfg.LockTTL).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("lock session: %w", err)
		}
		if acquired {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = r.rdb.Eval(releaseCtx, unlockScript, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrSessionBusy
		case <-ticker.C:
		}
	}
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, r.key(sessionID)).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

// decodeStack keeps integer cells integral so that key values read back
// from Redis bind the same way as freshly queried ones.
func decodeStack(raw []byte) (*Stack, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	stack := &Stack{}
	if err := decoder.Decode(stack); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	for i := range stack.Elements {
		for _, row := range stack.Elements[i].Rows {
			normalizeNumbers(row)
		}
		if origin := stack.Elements[i].Origin; origin != nil {
			normalizeNumbers(origin.Key)
		}
	}
	return stack, nil
}

func normalizeNumbers(values map[string]any) {
	for key, value := range values {
		number, ok := value.(json.Number)
		if !ok {
			continue
		}
		if integer, err := number.Int64(); err == nil {
			values[key] = integer
		} else if float, err := number.Float64(); err == nil {
			values[key] = float
		}
	}
}
