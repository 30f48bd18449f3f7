package drain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/internal/syncqueue"
	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/metrics"
)

// StopReason says why a drain invocation ended.
type StopReason string

const (
	StopQueueIdle    StopReason = "queue_idle"
	StopBreakerOpen  StopReason = "breaker_open"
	StopIterationCap StopReason = "iteration_cap"
	StopCancelled    StopReason = "cancelled"
)

// ErrDrainBusy means another process holds the drain lock; the call was a
// no-op.
var ErrDrainBusy = errors.New("drain already running elsewhere")

// Options tune one drain invocation. Zero values fall back to config.
type Options struct {
	BatchSize       int
	Concurrency     int
	MaxIterations   int
	BreakerFailures int
	Delay           time.Duration
	Turbo           bool
}

// Result summarizes a drain invocation.
type Result struct {
	Processed    int        `json:"processed"`
	Succeeded    int        `json:"succeeded"`
	Requeued     int        `json:"requeued"`
	DeadLettered int        `json:"dead_lettered"`
	Iterations   int        `json:"iterations"`
	StopReason   StopReason `json:"stop_reason"`
}

type jobQueue interface {
	Claim(ctx context.Context, processorID string) (*models.SyncJob, error)
	Complete(ctx context.Context, job *models.SyncJob, processorID string) (bool, error)
	Fail(ctx context.Context, job *models.SyncJob, processorID string, cause error) (syncqueue.FailureOutcome, error)
	Heartbeat(ctx context.Context, jobID uuid.UUID, processorID string) error
}

type jobExecutor interface {
	Execute(ctx context.Context, job *models.SyncJob) error
}

// Controller steps and drains the sync queue under a distributed lock.
type Controller struct {
	cfg         config.DrainConfig
	queue       jobQueue
	executor    jobExecutor
	lock        Lock
	metrics     *metrics.SyncMetrics
	logger      *logger.Logger
	processorID string
}

// NewController wires the drain controller.
func NewController(cfg config.DrainConfig, queue jobQueue, executor jobExecutor, lock Lock, m *metrics.SyncMetrics, logg *logger.Logger, processorID string) (*Controller, error) {
	if queue == nil {
		return nil, errors.New("queue service is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if lock == nil {
		return nil, errors.New("lock is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if processorID == "" {
		processorID = "worker-0"
	}
	return &Controller{
		cfg:         cfg,
		queue:       queue,
		executor:    executor,
		lock:        lock,
		metrics:     m,
		logger:      logg,
		processorID: processorID,
	}, nil
}

// Step claims and processes exactly one job. Returns (nil, nil) when the queue
// is idle.
func (c *Controller) Step(ctx context.Context) (*models.SyncJob, error) {
	job, err := c.queue.Claim(ctx, c.processorID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	c.processJob(ctx, job)
	return job, nil
}

// Drain processes jobs until the queue is idle, the breaker opens, or the
// iteration cap is hit. Only one drain runs at a time across all processes;
// a busy lock returns ErrDrainBusy without touching the queue.
func (c *Controller) Drain(ctx context.Context, opts Options) (*Result, error) {
	acquired, err := c.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		c.logger.Info(ctx, "drain skipped, lock held elsewhere")
		return nil, ErrDrainBusy
	}
	defer func() {
		if relErr := c.lock.Release(ctx); relErr != nil {
			c.logger.Error(ctx, "release drain lock", relErr)
		}
	}()

	effective := c.effectiveOptions(opts)
	result := &Result{}
	consecutiveFailures := 0

	for result.Iterations < effective.MaxIterations {
		select {
		case <-ctx.Done():
			result.StopReason = StopCancelled
			c.finish(ctx, result)
			return result, ctx.Err()
		default:
		}

		result.Iterations++
		processedThisIteration := 0

		// Claims happen in waves of Concurrency so the breaker is consulted
		// between waves, never mid-flight.
		for processedThisIteration < effective.BatchSize {
			waveSize := effective.Concurrency
			if remaining := effective.BatchSize - processedThisIteration; waveSize > remaining {
				waveSize = remaining
			}

			jobs := make([]*models.SyncJob, 0, waveSize)
			for len(jobs) < waveSize {
				job, err := c.queue.Claim(ctx, c.processorID)
				if err != nil {
					return result, err
				}
				if job == nil {
					break
				}
				jobs = append(jobs, job)
			}
			if len(jobs) == 0 {
				break
			}

			processedThisIteration += len(jobs)
			result.Processed += len(jobs)

			for _, outcome := range c.processWave(ctx, jobs) {
				if outcome.ok {
					result.Succeeded++
					consecutiveFailures = 0
					continue
				}
				consecutiveFailures++
				if outcome.failure == syncqueue.FailureDeadLettered {
					result.DeadLettered++
				} else {
					result.Requeued++
				}
				if consecutiveFailures >= effective.BreakerFailures {
					result.StopReason = StopBreakerOpen
					c.finish(ctx, result)
					return result, nil
				}
			}

			if len(jobs) < waveSize {
				break
			}
		}

		if processedThisIteration == 0 {
			result.StopReason = StopQueueIdle
			c.finish(ctx, result)
			return result, nil
		}

		if effective.Delay > 0 {
			if err := sleep(ctx, effective.Delay); err != nil {
				result.StopReason = StopCancelled
				c.finish(ctx, result)
				return result, err
			}
		}
	}

	// Hitting the cap with work remaining is distinct from an idle queue so
	// callers know to invoke drain again.
	result.StopReason = StopIterationCap
	c.finish(ctx, result)
	return result, nil
}

type jobOutcome struct {
	ok      bool
	failure syncqueue.FailureOutcome
}

// processWave runs one wave of jobs, in parallel when the wave has more than
// one. Outcomes come back in claim order so breaker accounting stays
// deterministic.
func (c *Controller) processWave(ctx context.Context, jobs []*models.SyncJob) []jobOutcome {
	outcomes := make([]jobOutcome, len(jobs))
	if len(jobs) == 1 {
		outcomes[0] = c.processJob(ctx, jobs[0])
		return outcomes
	}

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job *models.SyncJob) {
			defer wg.Done()
			outcomes[i] = c.processJob(ctx, job)
		}(i, job)
	}
	wg.Wait()
	return outcomes
}

// processJob executes the job with a live heartbeat and settles it with the
// queue.
func (c *Controller) processJob(ctx context.Context, job *models.SyncJob) jobOutcome {
	jobCtx := c.logger.WithFields(ctx, map[string]any{
		"job_id":      job.ID.String(),
		"record_id":   job.RecordID.String(),
		"marketplace": job.Marketplace.String(),
		"action":      job.Action.String(),
	})

	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	go c.heartbeatLoop(heartbeatCtx, job)

	err := c.executor.Execute(jobCtx, job)
	stopHeartbeat()

	if err != nil {
		failure, failErr := c.queue.Fail(jobCtx, job, c.processorID, err)
		if failErr != nil {
			c.logger.Error(jobCtx, "settle failed job", failErr)
		}
		return jobOutcome{failure: failure}
	}

	if _, err := c.queue.Complete(jobCtx, job, c.processorID); err != nil {
		c.logger.Error(jobCtx, "settle completed job", err)
		return jobOutcome{}
	}
	c.logger.Info(jobCtx, "sync job completed")
	return jobOutcome{ok: true}
}

func (c *Controller) heartbeatLoop(ctx context.Context, job *models.SyncJob) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.Heartbeat(ctx, job.ID, c.processorID); err != nil {
				c.logger.Warn(c.logger.WithJobID(ctx, job.ID.String()), "heartbeat lost")
				return
			}
		}
	}
}

func (c *Controller) effectiveOptions(opts Options) Options {
	base := c.cfg
	if opts.Turbo {
		base = base.Turbo()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = base.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = base.Concurrency
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = base.MaxIterations
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = base.BreakerFailures
	}
	if opts.Delay <= 0 {
		opts.Delay = base.Delay
	}
	return opts
}

func (c *Controller) finish(ctx context.Context, result *Result) {
	c.metrics.IncDrainRun(string(result.StopReason))
	ctx = c.logger.WithFields(ctx, map[string]any{
		"processed":   result.Processed,
		"succeeded":   result.Succeeded,
		"requeued":    result.Requeued,
		"dead_letter": result.DeadLettered,
		"iterations":  result.Iterations,
		"stop_reason": string(result.StopReason),
	})
	c.logger.Info(ctx, "drain finished")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
