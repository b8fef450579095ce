package jobs

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teemates/realtime/db"
	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/logger"
	"github.com/teemates/realtime/metrics"
)

// Queue coordinates enqueue and dequeue against the store and wakes
// worker pools when new work arrives.
type Queue struct {
	store       *Store
	log         *zap.SugaredLogger
	maxAttempts int

	mu          sync.Mutex
	subscribers map[string][]chan struct{} // queue name -> wakeup channels
}

// NewQueue creates a queue backed by the given store. maxAttempts is
// the configured attempt budget applied to jobs that don't set their
// own via WithMaxAttempts; values below 1 keep the built-in default.
func NewQueue(store *Store, maxAttempts int) *Queue {
	return &Queue{
		store:       store,
		log:         logger.Logger.Named("jobs"),
		maxAttempts: maxAttempts,
		subscribers: make(map[string][]chan struct{}),
	}
}

// Enqueue persists a job. When the job carries an identity key and a
// queued or running job in the same queue already holds that key, the
// enqueue is a silent no-op and the existing job is returned.
func (q *Queue) Enqueue(job *Job) (*Job, error) {
	if q.maxAttempts >= 1 && !job.maxAttemptsSet {
		job.MaxAttempts = q.maxAttempts
	}

	if job.Key != "" {
		existing, err := q.store.FindActiveJobByKey(job.Queue, job.Key)
		if err != nil {
			return nil, errors.Wrap(err, "dedup lookup failed")
		}
		if existing != nil {
			metrics.JobsDeduplicated.WithLabelValues(job.Queue).Inc()
			q.log.Debugw("duplicate job suppressed",
				"queue", job.Queue, "name", job.Name, "key", job.Key, "existing_id", existing.ID)
			return existing, nil
		}
	}

	if err := q.store.CreateJob(job); err != nil {
		// Two concurrent enqueues can both miss the lookup; the partial
		// unique index on (queue, dedup_key) catches the loser.
		if job.Key != "" && db.IsUniqueViolation(err) {
			existing, ferr := q.store.FindActiveJobByKey(job.Queue, job.Key)
			if ferr == nil && existing != nil {
				metrics.JobsDeduplicated.WithLabelValues(job.Queue).Inc()
				return existing, nil
			}
		}
		return nil, err
	}
	metrics.JobsEnqueued.WithLabelValues(job.Queue).Inc()
	q.log.Debugw("job enqueued",
		"queue", job.Queue, "name", job.Name, "id", job.ID, "run_at", job.RunAt)

	q.notify(job.Queue)
	return job, nil
}

// DequeueDue claims up to limit due jobs from a queue, marking each as
// running before returning it. Claiming is serialized so two worker
// pools never pick up the same job.
func (q *Queue) DequeueDue(queue string, limit int) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	due, err := q.store.DueJobs(queue, time.Now(), limit)
	if err != nil {
		return nil, err
	}

	claimed := make([]*Job, 0, len(due))
	for _, job := range due {
		job.Start()
		if err := q.store.UpdateJob(job); err != nil {
			q.log.Warnw("failed to claim job", "id", job.ID, "error", err)
			continue
		}
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// Update persists a job's state after processing
func (q *Queue) Update(job *Job) error {
	if err := q.store.UpdateJob(job); err != nil {
		return err
	}
	// Retried jobs become due later; wake the pool so a short backoff
	// is not stretched to the next poll tick.
	if job.Status == StatusQueued {
		q.notify(job.Queue)
	}
	return nil
}

// Subscribe returns a channel that receives a signal whenever work is
// added to the named queue. The channel is buffered; signals coalesce.
func (q *Queue) Subscribe(queue string) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan struct{}, 1)
	q.subscribers[queue] = append(q.subscribers[queue], ch)
	return ch
}

func (q *Queue) notify(queue string) {
	q.mu.Lock()
	subs := q.subscribers[queue]
	q.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
