package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/eventpass/internal/notifications"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/geocoder89/eventpass/internal/queue/redisqueue"
)

type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (redisqueue.Delivery, error)
	Ack(ctx context.Context, d redisqueue.Delivery) error
	Retry(ctx context.Context, d redisqueue.Delivery, runAt time.Time) error
	DeadLetter(ctx context.Context, d redisqueue.Delivery) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Depths(ctx context.Context) (redisqueue.Depths, error)
}

type Config struct {
	WorkerID      string
	Concurrency   int
	PollTimeout   time.Duration // how long one Dequeue blocks
	PromoteEvery  time.Duration // delayed -> ready sweep interval
	JobTimeout    time.Duration // hard limit per job execution
	ShutdownGrace time.Duration
	Backoff       func(attempt int) time.Duration
	ErrorPause    time.Duration // sleep after a queue error
}

type Worker struct {
	cfg      Config
	queue    Queue
	notifier notifications.Notifier
	log      *slog.Logger
	prom     *observability.Prom
	metrics  *observability.JobMetrics
	now      func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, queue Queue, notifier notifications.Notifier, log *slog.Logger, prom *observability.Prom) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.PromoteEvery <= 0 {
		cfg.PromoteEvery = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:      cfg,
		queue:    queue,
		notifier: notifier,
		log:      log.With("worker_id", cfg.WorkerID),
		prom:     prom,
		metrics:  observability.NewJobMetrics(),
		now:      time.Now,
	}
}

func (w *Worker) Metrics() *observability.JobMetrics { return w.metrics }

// Run consumes until ctx is cancelled, then waits up to ShutdownGrace for
// in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	w.log.Info("worker.started", "concurrency", w.cfg.Concurrency)

	// in-flight jobs finish on their own context so shutdown does not cut
	// a send in half
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx, jobCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker.shutdown_requested")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("worker.shutdown_grace_exceeded")
		cancelJobs()
		<-done
	}

	w.log.Info("worker.stopped")
	return nil
}

func (w *Worker) consume(ctx, jobCtx context.Context) {
	for ctx.Err() == nil {
		if _, err := w.processOne(ctx, jobCtx); err != nil {
			w.log.Error("worker.step_failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.ErrorPause):
			}
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PromoteEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.PromoteDue(ctx, w.now()); err != nil && ctx.Err() == nil {
				w.log.Error("worker.promote_failed", "err", err)
			}
			w.reportDepths(ctx)
		}
	}
}

func (w *Worker) reportDepths(ctx context.Context) {
	if w.prom == nil {
		return
	}
	d, err := w.queue.Depths(ctx)
	if err != nil {
		return
	}
	w.prom.QueueDepth.WithLabelValues("ready").Set(float64(d.Ready))
	w.prom.QueueDepth.WithLabelValues("processing").Set(float64(d.Processing))
	w.prom.QueueDepth.WithLabelValues("delayed").Set(float64(d.Delayed))
	w.prom.QueueDepth.WithLabelValues("dead").Set(float64(d.Dead))
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) isReady() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}
