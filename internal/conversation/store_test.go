package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chatidea/chatidea/internal/schema"
)

func TestMemoryStoreDiscardsFailedTurn(t *testing.T) {
	store := NewMemoryStore(Limits{}, time.Minute)
	ctx := context.Background()

	if err := store.Update(ctx, "s1", func(stack *Stack) error {
		stack.Append(NewRows("teacher", numberedRows(7), nil, "found", ActionFind))
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	boom := errors.New("boom")
	err := store.Update(ctx, "s1", func(stack *Stack) error {
		_ = stack.Advance()
		stack.Reset()
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	_ = View(ctx, store, "s1", func(stack *Stack) error {
		top, ok := stack.Top()
		if !ok || top.Show != (Window{0, 5}) {
			t.Fatalf("top = %+v, want untouched first page", top)
		}
		return nil
	})
}

func TestMemoryStoreExpiresIdleSessions(t *testing.T) {
	store := NewMemoryStore(Limits{}, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Update(ctx, "s1", func(stack *Stack) error {
		stack.Append(Element{Kind: KindStart})
		return nil
	})
	now = now.Add(2 * time.Minute)
	_ = View(ctx, store, "s1", func(stack *Stack) error {
		if stack.Len() != 0 {
			t.Fatalf("Len() = %d, want 0 after idle expiry", stack.Len())
		}
		return nil
	})

	now = now.Add(2 * time.Minute)
	if removed := store.Sweep(now); removed != 1 {
		t.Fatalf("Sweep() = %d, want 1", removed)
	}
	if store.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", store.Len())
	}
}

func TestMemoryStoreSerialisesTurns(t *testing.T) {
	store := NewMemoryStore(Limits{MaxLength: 100}, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "s1", func(stack *Stack) error {
				stack.Append(Element{Kind: KindStart})
				return nil
			})
		}()
	}
	wg.Wait()

	_ = View(ctx, store, "s1", func(stack *Stack) error {
		if stack.Len() != 20 {
			t.Fatalf("Len() = %d, want 20", stack.Len())
		}
		return nil
	})
}

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	evals   int
	getErr  error
	lockHog bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockHog {
		return goredis.NewBoolResult(false, nil)
	}
	if _, ok := f.values[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.values[keys[0]] == args[0] {
		delete(f.values, keys[0])
		return goredis.NewCmdResult(int64(1), nil)
	}
	return goredis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return goredis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisStoreRoundTripsStack(t *testing.T) {
	rdb := newFakeRedis()
	store := newRedisStore(rdb, RedisConfig{IdleTimeout: time.Minute}, Limits{})
	ctx := context.Background()

	if err := store.Update(ctx, "s1", func(stack *Stack) error {
		stack.Append(NewRows("teacher", numberedRows(7), nil, "found", ActionFind))
		return stack.Advance()
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rdb.ttls["chatidea:session:s1"] != time.Minute {
		t.Fatalf("ttl = %v, want 1m", rdb.ttls["chatidea:session:s1"])
	}
	if _, locked := rdb.values["chatidea:session:s1:lock"]; locked || rdb.evals != 1 {
		t.Fatalf("lock left behind: locked=%v evals=%d", locked, rdb.evals)
	}

	err := View(ctx, store, "s1", func(stack *Stack) error {
		top, ok := stack.Top()
		if !ok {
			t.Fatalf("Top() missing after reload")
		}
		if top.Show != (Window{5, 7}) {
			t.Fatalf("Show = %+v, want {5 7}", top.Show)
		}
		if id, ok := top.Rows[3]["id"].(int64); !ok || id != 4 {
			t.Fatalf("id = %#v, want int64(4)", top.Rows[3]["id"])
		}
		if stack.Limits().PageSize != DefaultPageSize {
			t.Fatalf("PageSize = %d, want default", stack.Limits().PageSize)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
}

func TestRedisStoreFailedTurnIsNotSaved(t *testing.T) {
	rdb := newFakeRedis()
	store := newRedisStore(rdb, RedisConfig{}, Limits{})
	boom := errors.New("boom")

	err := store.Update(context.Background(), "s1", func(stack *Stack) error {
		stack.Append(Element{Kind: KindStart})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}
	if _, ok := rdb.values["chatidea:session:s1"]; ok {
		t.Fatalf("failed turn was saved")
	}
}

func TestRedisStoreReportsBusySession(t *testing.T) {
	rdb := newFakeRedis()
	rdb.lockHog = true
	store := newRedisStore(rdb, RedisConfig{LockWait: 60 * time.Millisecond}, Limits{})

	err := store.Update(context.Background(), "s1", func(*Stack) error { return nil })
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("Update() error = %v, want ErrSessionBusy", err)
	}
}

func TestRedisStoreWrapsLoadFailure(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	store := newRedisStore(rdb, RedisConfig{}, Limits{})

	err := store.Update(context.Background(), "s1", func(*Stack) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "load session") {
		t.Fatalf("Update() error = %v, want load session failure", err)
	}
}

func TestRedisStoreKeepsSelectionTitlesOfTimestampRows(t *testing.T) {
	rdb := newFakeRedis()
	store := newRedisStore(rdb, RedisConfig{}, Limits{})
	ctx := context.Background()
	summary := func(row map[string]any) string {
		return schema.FormatValue(row["name"]) + " " + schema.FormatValue(row["hired"])
	}
	hired := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := []map[string]any{
		{"id": int64(1), "name": "Ada", "hired": hired},
		{"id": int64(2), "name": "Alan", "hired": hired.Add(90 * time.Minute).In(time.FixedZone("CET", 3600))},
	}

	var titles []string
	if err := store.Update(ctx, "s1", func(stack *Stack) error {
		stack.Append(NewRows("teacher", rows, nil, "found", ActionFind))
		for _, row := range rows {
			titles = append(titles, SelectionTitle(summary(row)))
		}
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	for i, title := range titles {
		err := store.Update(ctx, "s1", func(stack *Stack) error {
			if err := stack.SelectRow(i+1, title, summary); err != nil {
				return err
			}
			return stack.GoBackTo(1)
		})
		if err != nil {
			t.Fatalf("SelectRow(%d, %q) after reload error = %v", i+1, title, err)
		}
	}
}
