package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/logger"
	"github.com/teemates/realtime/metrics"
)

const (
	dequeueBatchSize = 10
	minPollBackoff   = 1 * time.Second
	maxPollBackoff   = 30 * time.Second
	stopTimeout      = 30 * time.Second
)

// PoolConfig controls a set of per-queue worker pools
type PoolConfig struct {
	// Workers maps queue name to worker count. Queues absent from the
	// map get one worker.
	Workers      map[string]int
	PollInterval time.Duration
	BackoffBase  time.Duration
	// NotifyRate throttles the notifications queue. Zero disables
	// throttling.
	NotifyRate float64
}

// Pool runs workers for every named queue
type Pool struct {
	queue    *Queue
	registry *Registry
	cfg      PoolConfig
	log      *zap.SugaredLogger
	limiter  *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool set. Workers start on Start.
func NewPool(queue *Queue, registry *Registry, cfg PoolConfig) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	p := &Pool{
		queue:    queue,
		registry: registry,
		cfg:      cfg,
		log:      logger.Logger.Named("workers"),
	}
	if cfg.NotifyRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.NotifyRate), 1)
	}
	return p
}

// Start launches the workers for every known queue
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for _, queue := range Queues() {
		count := p.cfg.Workers[queue]
		if count < 1 {
			count = 1
		}
		for i := 0; i < count; i++ {
			p.wg.Add(1)
			go p.run(ctx, queue, i)
		}
		p.log.Infow("workers started", "queue", queue, "count", count)
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish,
// up to a timeout.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Infow("all workers stopped")
	case <-time.After(stopTimeout):
		p.log.Warnw("timed out waiting for workers to stop")
	}
}

// run is a single worker loop. It drains due jobs, then sleeps until
// the poll tick or a wakeup signal. Consecutive drain errors back the
// loop off exponentially so a broken store is not hammered.
func (p *Pool) run(ctx context.Context, queue string, id int) {
	defer p.wg.Done()

	wake := p.queue.Subscribe(queue)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		if err := p.drain(ctx, queue); err != nil {
			consecutiveErrors++
			backoff := minPollBackoff << (consecutiveErrors - 1)
			if backoff > maxPollBackoff {
				backoff = maxPollBackoff
			}
			p.log.Errorw("worker drain failed",
				"queue", queue, "worker", id, "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		consecutiveErrors = 0

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// drain processes due jobs until the queue is momentarily empty
func (p *Pool) drain(ctx context.Context, queue string) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		jobs, err := p.queue.DequeueDue(queue, dequeueBatchSize)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		for _, job := range jobs {
			if queue == QueueNotifications && p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					// Shutting down mid-batch; release the claim.
					job.Status = StatusQueued
					job.Attempts--
					_ = p.queue.Update(job)
					return nil
				}
			}
			p.process(ctx, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, job *Job) {
	start := time.Now()
	err := p.execute(ctx, job)

	if err == nil {
		job.Complete()
		metrics.JobsProcessed.WithLabelValues(job.Queue, "completed").Inc()
		p.log.Debugw("job completed",
			"queue", job.Queue, "name", job.Name, "id", job.ID,
			"duration", time.Since(start))
	} else if job.RecordFailure(err, p.cfg.BackoffBase) {
		metrics.JobsProcessed.WithLabelValues(job.Queue, "retried").Inc()
		p.log.Warnw("job failed, will retry",
			"queue", job.Queue, "name", job.Name, "id", job.ID,
			"attempt", job.Attempts, "run_at", job.RunAt, "error", err)
	} else {
		metrics.JobsProcessed.WithLabelValues(job.Queue, "failed").Inc()
		p.log.Errorw("job failed permanently",
			"queue", job.Queue, "name", job.Name, "id", job.ID,
			"attempts", job.Attempts, "error", err)
	}

	if uerr := p.queue.Update(job); uerr != nil {
		p.log.Errorw("failed to persist job state", "id", job.ID, "error", uerr)
	}
}

// execute dispatches to the handler, converting panics into errors so
// one bad job cannot take a worker down.
func (p *Pool) execute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panic: %v", r)
		}
	}()

	handler := p.registry.Lookup(job.Name)
	if handler == nil {
		return errors.Newf("no handler registered for task %q", job.Name)
	}
	return handler.Execute(ctx, job)
}
