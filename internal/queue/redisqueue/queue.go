package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/geocoder89/eventpass/internal/jobs"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "eventpass:jobs"

// Queue is a reliable job queue on plain Redis lists.
//
//	ready      LPUSH by producers, BLMOVE'd right-to-left into processing
//	processing in-flight jobs, removed on Ack/Retry/DeadLetter
//	delayed    ZSET scored by run-at unix millis
//	dead       jobs that ran out of attempts
type Queue struct {
	rdb *redis.Client

	ready      string
	processing string
	delayed    string
	dead       string

	now func() time.Time
}

// Delivery is a claimed job plus the exact bytes it was claimed as,
// which Ack needs to find it in the processing list.
type Delivery struct {
	Job jobs.Job
	raw string
}

type Depths struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

func New(rdb *redis.Client, prefix string) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Queue{
		rdb:        rdb,
		ready:      prefix + ":ready",
		processing: prefix + ":processing",
		delayed:    prefix + ":delayed",
		dead:       prefix + ":dead",
		now:        time.Now,
	}
}

// Enqueue pushes j to the ready list, or parks it in the delayed set when
// its RunAt is in the future.
func (q *Queue) Enqueue(ctx context.Context, j jobs.Job) error {
	if !j.Type.IsValid() {
		return jobs.ErrInvalidJobType
	}
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	if j.RunAt.After(q.now()) {
		return q.rdb.ZAdd(ctx, q.delayed, redis.Z{Score: score(j.RunAt), Member: b}).Err()
	}
	return q.rdb.LPush(ctx, q.ready, b).Err()
}

// Dequeue blocks for up to timeout waiting for a ready job. It returns
// jobs.ErrJobNotFound when nothing arrived. A job that cannot be decoded is
// moved straight to the dead list.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Delivery{}, jobs.ErrJobNotFound
		}
		return Delivery{}, err
	}

	var j jobs.Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		_, _ = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processing, 1, raw)
			pipe.LPush(ctx, q.dead, raw)
			return nil
		})
		return Delivery{}, fmt.Errorf("%w: %v", jobs.ErrInvalidJobPayload, err)
	}

	j.Status = jobs.JobProcessing
	return Delivery{Job: j, raw: raw}, nil
}

func (q *Queue) Ack(ctx context.Context, d Delivery) error {
	return q.rdb.LRem(ctx, q.processing, 1, d.raw).Err()
}

// Retry releases d and schedules its (already updated) job for runAt.
func (q *Queue) Retry(ctx context.Context, d Delivery, runAt time.Time) error {
	j := d.Job
	j.Status = jobs.JobPending
	j.RunAt = runAt.UTC()
	j.UpdatedAt = q.now().UTC()

	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.raw)
		pipe.ZAdd(ctx, q.delayed, redis.Z{Score: score(runAt), Member: b})
		return nil
	})
	return err
}

func (q *Queue) DeadLetter(ctx context.Context, d Delivery) error {
	j := d.Job
	j.Status = jobs.JobDead
	j.UpdatedAt = q.now().UTC()

	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.raw)
		pipe.LPush(ctx, q.dead, b)
		return nil
	})
	return err
}

// PromoteDue moves delayed jobs whose run-at has passed onto the ready
// list. Only the caller whose ZREM succeeds pushes a member, so concurrent
// promoters never duplicate a job.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.rdb.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(score(now), 'f', 0, 64),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, member := range due {
		removed, err := q.rdb.ZRem(ctx, q.delayed, member).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.ready, member).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// RecoverProcessing pushes everything left in the processing list back to
// ready. Only safe while no other worker is consuming.
func (q *Queue) RecoverProcessing(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.processing, q.ready, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *Queue) Depths(ctx context.Context) (Depths, error) {
	pipe := q.rdb.Pipeline()
	ready := pipe.LLen(ctx, q.ready)
	processing := pipe.LLen(ctx, q.processing)
	delayed := pipe.ZCard(ctx, q.delayed)
	dead := pipe.LLen(ctx, q.dead)

	if _, err := pipe.Exec(ctx); err != nil {
		return Depths{}, err
	}
	return Depths{
		Ready:      ready.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

// ListDead returns up to limit dead jobs, newest first.
func (q *Queue) ListDead(ctx context.Context, limit int) ([]jobs.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	raws, err := q.rdb.LRange(ctx, q.dead, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]jobs.Job, 0, len(raws))
	for _, raw := range raws {
		var j jobs.Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// RequeueDead resets a dead job's attempts and puts it back on ready.
func (q *Queue) RequeueDead(ctx context.Context, id string) (jobs.Job, error) {
	raws, err := q.rdb.LRange(ctx, q.dead, 0, -1).Result()
	if err != nil {
		return jobs.Job{}, err
	}

	for _, raw := range raws {
		var j jobs.Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil || j.ID != id {
			continue
		}

		removed, err := q.rdb.LRem(ctx, q.dead, 1, raw).Result()
		if err != nil {
			return jobs.Job{}, err
		}
		if removed == 0 {
			return jobs.Job{}, jobs.ErrJobNotFound
		}

		now := q.now().UTC()
		j.Status = jobs.JobPending
		j.Attempts = 0
		j.LastError = nil
		j.RunAt = now
		j.UpdatedAt = now

		if err := q.Enqueue(ctx, j); err != nil {
			return jobs.Job{}, err
		}
		return j, nil
	}

	return jobs.Job{}, jobs.ErrJobNotFound
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
