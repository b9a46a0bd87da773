package worker

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/eventpass/internal/jobs"
	"github.com/geocoder89/eventpass/internal/queue/redisqueue"
)

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	return w.processOne(ctx, ctx)
}

func (w *Worker) processOne(ctx, jobCtx context.Context) (bool, error) {
	d, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			return false, nil
		case ctx.Err() != nil:
			return false, nil
		case errors.Is(err, jobs.ErrInvalidJobPayload):
			// already parked on the dead list by the queue
			w.metrics.IncDeadLettered()
			w.log.Error("job.corrupt", "err", err)
			return true, nil
		default:
			return false, err
		}
	}

	w.metrics.IncClaimed()
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := w.now()
	runCtx, cancel := context.WithTimeout(jobCtx, w.cfg.JobTimeout)
	err = w.execute(runCtx, d.Job)
	cancel()
	elapsed := w.now().Sub(start)
	w.metrics.ObserveDuration(elapsed)

	if err != nil {
		result := w.handleFailure(jobCtx, d, err)
		w.observe(d.Job.Type, result, elapsed)
		return true, nil
	}

	if err := w.queue.Ack(jobCtx, d); err != nil {
		return true, err
	}

	w.metrics.IncDone()
	w.observe(d.Job.Type, "done", elapsed)
	w.log.Info("job.done", "job_id", d.Job.ID, "type", d.Job.Type, "attempts", d.Job.Attempts+1)
	return true, nil
}

// handleFailure records the attempt and either schedules a retry or moves
// the job to the dead list. It returns the metrics result label.
func (w *Worker) handleFailure(ctx context.Context, d redisqueue.Delivery, cause error) string {
	w.metrics.IncFailed()

	msg := cause.Error()
	d.Job.Attempts++
	d.Job.LastError = &msg

	if d.Job.Exhausted() || permanent(cause) {
		if err := w.queue.DeadLetter(ctx, d); err != nil {
			w.log.Error("job.dead_letter_failed", "job_id", d.Job.ID, "err", err)
		}
		w.metrics.IncDeadLettered()
		w.log.Error("job.dead", "job_id", d.Job.ID, "type", d.Job.Type, "attempts", d.Job.Attempts, "err", cause)
		return "dead"
	}

	delay := w.cfg.Backoff(d.Job.Attempts - 1)
	if err := w.queue.Retry(ctx, d, w.now().Add(delay)); err != nil {
		w.log.Error("job.retry_failed", "job_id", d.Job.ID, "err", err)
	}
	w.metrics.IncRetried()
	w.log.Warn("job.retry_scheduled",
		"job_id", d.Job.ID,
		"type", d.Job.Type,
		"attempts", d.Job.Attempts,
		"delay", delay.String(),
		"err", cause,
	)
	return "retry"
}

func (w *Worker) observe(t jobs.JobType, result string, d time.Duration) {
	w.prom.ObserveJob(string(t), result, d)
}

// permanent errors will fail the same way on every attempt.
func permanent(err error) bool {
	return errors.Is(err, jobs.ErrInvalidJobPayload) ||
		errors.Is(err, jobs.ErrInvalidJobType) ||
		errors.Is(err, jobs.ErrPayloadTypeMismatch)
}
