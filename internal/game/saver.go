package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/telemetry"
)

// saver writes dirty sessions in the background. Each player is queued at
// most once; a write always takes the newest snapshot, so coalesced
// mutations cost a single save.
type saver struct {
	persist func(ctx context.Context, id string) error
	cfg     config.SaverConfig
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
	wake    chan struct{}
}

func newSaver(persist func(ctx context.Context, id string) error, cfg config.SaverConfig, logger *slog.Logger, metrics *telemetry.Metrics) *saver {
	return &saver{
		persist: persist,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

func (q *saver) enqueue(ctx context.Context, id string) {
	q.mu.Lock()
	if _, ok := q.pending[id]; ok {
		q.mu.Unlock()
		return
	}
	q.pending[id] = struct{}{}
	q.order = append(q.order, id)
	q.mu.Unlock()

	q.metrics.SaveQueued(ctx, 1)
	q.signal()
}

func (q *saver) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *saver) next(ctx context.Context) (string, bool) {
	q.mu.Lock()
	if len(q.order) == 0 {
		q.mu.Unlock()
		return "", false
	}
	id := q.order[0]
	q.order = q.order[1:]
	delete(q.pending, id)
	more := len(q.order) > 0
	q.mu.Unlock()

	q.metrics.SaveQueued(ctx, -1)
	if more {
		q.signal()
	}
	return id, true
}

// Len reports the number of queued players.
func (q *saver) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// run starts the workers and blocks until ctx is done.
func (q *saver) run(ctx context.Context) {
	workers := q.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()
}

func (q *saver) work(ctx context.Context) {
	for {
		if id, ok := q.next(ctx); ok {
			q.save(ctx, id)
			continue
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			return
		}
	}
}

// save retries with exponential backoff. When the retries run out the player
// is queued again after MaxBackoff; the in-memory state is never discarded.
func (q *saver) save(ctx context.Context, id string) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = q.cfg.BaseBackoff
	eb.MaxInterval = q.cfg.MaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(q.cfg.MaxRetries)), ctx)

	err := backoff.RetryNotify(func() error {
		return q.persist(ctx, id)
	}, b, func(err error, wait time.Duration) {
		q.metrics.SaveFailed(ctx)
		q.logger.WarnContext(ctx, "player save failed, retrying",
			slog.String("player_id", id),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	q.metrics.SaveFailed(ctx)
	q.logger.WarnContext(ctx, "player save failed, requeueing",
		slog.String("player_id", id),
		slog.Any("error", err),
	)
	time.AfterFunc(q.cfg.MaxBackoff, func() {
		q.enqueue(context.Background(), id)
	})
}
