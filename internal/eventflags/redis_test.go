package eventflags_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/gachabot/internal/eventflags"
)

// fakeClient is an in-memory hash implementing eventflags.Client.
type fakeClient struct {
	fields map[string]string
	err    error
	reads  int
}

func (f *fakeClient) HGetAll(_ context.Context, _ string) *redis.MapStringStringCmd {
	f.reads++
	out := make(map[string]string, len(f.fields))
	for k, v := range f.fields {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, f.err)
}

func (f *fakeClient) HSet(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	for i := 0; i+1 < len(values); i += 2 {
		f.fields[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), f.err)
}

func (f *fakeClient) HDel(_ context.Context, _ string, fields ...string) *redis.IntCmd {
	for _, k := range fields {
		delete(f.fields, k)
	}
	return redis.NewIntResult(int64(len(fields)), f.err)
}

func (f *fakeClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

// lockedClient guards fakeClient for use from a refresh goroutine.
type lockedClient struct {
	mu sync.Mutex
	fakeClient
}

func (c *lockedClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fakeClient.HGetAll(ctx, key)
}

func (c *lockedClient) set(field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[field] = value
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRedis_FlagsServeSnapshot(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{fields: map[string]string{"luck_multiplier": "2"}}
	r := eventflags.NewRedis(fc, "gacha:flags", time.Hour, discard(), noop.NewTracerProvider())

	f, err := r.Flags(ctx)
	if !errors.Is(err, eventflags.ErrStale) {
		t.Fatalf("Flags() before refresh error = %v, want ErrStale", err)
	}
	if f.LuckMultiplier != 1 || fc.reads != 0 {
		t.Fatalf("Flags() before refresh = %+v after %d reads, want defaults and no reads", f, fc.reads)
	}

	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		f, err := r.Flags(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if f.LuckMultiplier != 2 {
			t.Fatalf("LuckMultiplier = %v, want 2", f.LuckMultiplier)
		}
	}
	if fc.reads != 1 {
		t.Errorf("reads = %d, want 1", fc.reads)
	}

	// Writes refresh the snapshot right away.
	if err := r.StartEvent(ctx, "festival", t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	f, err = r.Flags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fc.reads != 2 || !f.EventActive("festival", t0) {
		t.Errorf("after StartEvent: reads = %d, flags = %+v", fc.reads, f)
	}

	if err := r.EndEvent(ctx, "festival"); err != nil {
		t.Fatal(err)
	}
	if f, _ := r.Flags(ctx); f.EventActive("festival", t0) {
		t.Error("festival still active after EndEvent")
	}
}

func TestRedis_Run(t *testing.T) {
	fc := &lockedClient{fakeClient: fakeClient{fields: map[string]string{}}}
	r := eventflags.NewRedis(fc, "k", 5*time.Millisecond, discard(), noop.NewTracerProvider())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	fc.set("is_live", "true")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if f, err := r.Flags(context.Background()); err == nil && f.Live {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run never picked up is_live")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}

func TestRedis_FallsBackToLastGood(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{fields: map[string]string{"is_live": "true"}}
	r := eventflags.NewRedis(fc, "k", time.Millisecond, discard(), noop.NewTracerProvider())

	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	fc.err = errors.New("connection refused")
	if err := r.Refresh(ctx); err == nil {
		t.Fatal("expected an error")
	}
	time.Sleep(10 * time.Millisecond)

	f, err := r.Flags(ctx)
	if !errors.Is(err, eventflags.ErrStale) {
		t.Fatalf("Flags() error = %v, want ErrStale", err)
	}
	if !f.Live {
		t.Error("fallback flags should be the last good snapshot")
	}
	if err := r.Ping(ctx); err == nil {
		t.Error("Ping() should fail")
	}
}

func TestRedis_SetterValidation(t *testing.T) {
	fc := &fakeClient{fields: map[string]string{}}
	r := eventflags.NewRedis(fc, "k", 0, discard(), noop.NewTracerProvider())
	ctx := context.Background()
	if err := r.SetLuckMultiplier(ctx, 0); !errors.Is(err, eventflags.ErrInvalidFlag) {
		t.Errorf("SetLuckMultiplier(0) error = %v", err)
	}
	if err := r.StartEvent(ctx, "", t0); !errors.Is(err, eventflags.ErrInvalidFlag) {
		t.Errorf("StartEvent(\"\") error = %v", err)
	}
	if err := r.SetLuckMultiplier(ctx, 1.25); err != nil {
		t.Fatal(err)
	}
	if err := r.SetLive(ctx, true); err != nil {
		t.Fatal(err)
	}
	if fc.fields["luck_multiplier"] != "1.25" || fc.fields["is_live"] != "true" {
		t.Errorf("fields = %v", fc.fields)
	}
}

func TestRedis_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	uri, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })

	r := eventflags.NewRedis(rdb, "gacha:flags", time.Minute, discard(), noop.NewTracerProvider())
	if err := r.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.SetLuckMultiplier(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := r.StartEvent(ctx, "festival", t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	f, err := r.Flags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.LuckMultiplier != 3 || !f.EventActive("festival", t0) {
		t.Errorf("Flags() = %+v", f)
	}
}
