package eventflags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/config"
)

const cacheKey = "flags"

// ErrInvalidFlag is returned by setters given an unusable value.
var ErrInvalidFlag = errors.New("invalid flag value")

// Client is the subset of go-redis used by Redis.
type Client interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// DefaultRefresh is the refresh interval used when none is configured.
const DefaultRefresh = 10 * time.Second

// ErrStale is returned together with the last good flags when no refresh
// has succeeded for three intervals.
var ErrStale = errors.New("event flags are stale")

// Redis serves flags from a snapshot of a Redis hash. Run keeps the
// snapshot fresh; Flags never touches the network.
type Redis struct {
	client   Client
	key      string
	interval time.Duration
	cache    *cache.Cache
	logger   *slog.Logger
	tracer   trace.Tracer

	mu   sync.Mutex
	last Flags
}

// NewRedis returns a Redis source over the hash at key, refreshed every
// interval. A non-positive interval means DefaultRefresh.
func NewRedis(client Client, key string, interval time.Duration, logger *slog.Logger, tp trace.TracerProvider) *Redis {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	return &Redis{
		client:   client,
		key:      key,
		interval: interval,
		cache:    cache.New(3*interval, 6*interval),
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/gachabot/internal/eventflags"),
		last:     Defaults(),
	}
}

// Flags implements Source. It returns the cached snapshot, or the last good
// flags with ErrStale once the snapshot has expired.
func (r *Redis) Flags(context.Context) (Flags, error) {
	if v, ok := r.cache.Get(cacheKey); ok {
		return v.(Flags), nil
	}
	return r.lastGood(), ErrStale
}

// Refresh reads the hash and replaces the snapshot. On failure the previous
// snapshot is kept.
func (r *Redis) Refresh(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "Redis.Refresh",
		trace.WithAttributes(attribute.String("key", r.key)),
	)
	defer span.End()

	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("reading flags %s: %w", r.key, err)
	}
	f, err := Parse(fields)
	if err != nil {
		span.RecordError(err)
		return err
	}

	r.mu.Lock()
	r.last = f
	r.mu.Unlock()
	r.cache.SetDefault(cacheKey, f)
	return nil
}

// Run refreshes the snapshot every interval until ctx is done.
func (r *Redis) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "refreshing event flags", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Redis) lastGood() Flags {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// SetLive switches live mode.
func (r *Redis) SetLive(ctx context.Context, live bool) error {
	return r.set(ctx, fieldLive, strconv.FormatBool(live))
}

// SetLuckMultiplier sets the global luck multiplier. It must be positive.
func (r *Redis) SetLuckMultiplier(ctx context.Context, m float64) error {
	if m <= 0 {
		return fmt.Errorf("%s %v: %w", fieldLuck, m, ErrInvalidFlag)
	}
	return r.set(ctx, fieldLuck, strconv.FormatFloat(m, 'f', -1, 64))
}

// StartEvent runs the named event until the given time.
func (r *Redis) StartEvent(ctx context.Context, name string, until time.Time) error {
	if name == "" {
		return fmt.Errorf("empty event name: %w", ErrInvalidFlag)
	}
	return r.set(ctx, eventPrefix+name, until.UTC().Format(time.RFC3339))
}

// EndEvent removes the named event.
func (r *Redis) EndEvent(ctx context.Context, name string) error {
	if err := r.client.HDel(ctx, r.key, eventPrefix+name).Err(); err != nil {
		return fmt.Errorf("ending event %s: %w", name, err)
	}
	r.refreshAfterWrite(ctx)
	r.logger.InfoContext(ctx, "event ended", slog.String("event", name))
	return nil
}

func (r *Redis) set(ctx context.Context, field, value string) error {
	if err := r.client.HSet(ctx, r.key, field, value).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", field, err)
	}
	r.refreshAfterWrite(ctx)
	r.logger.InfoContext(ctx, "event flag set",
		slog.String("field", field),
		slog.String("value", value),
	)
	return nil
}

// refreshAfterWrite makes an admin change visible without waiting for the
// next tick.
func (r *Redis) refreshAfterWrite(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.WarnContext(ctx, "refreshing event flags after write", slog.String("error", err.Error()))
	}
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}
