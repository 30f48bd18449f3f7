package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/metrics"
)

const jitterWindow = 250 * time.Millisecond

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// FailureOutcome describes what the queue did with a failed job.
type FailureOutcome string

const (
	FailureRequeued     FailureOutcome = "requeued"
	FailureDeadLettered FailureOutcome = "dead_lettered"
	FailureClaimLost    FailureOutcome = "claim_lost"
)

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	Queued                int64 `json:"queued"`
	Processing            int64 `json:"processing"`
	Done                  int64 `json:"done"`
	Error                 int64 `json:"error"`
	Cancelled             int64 `json:"cancelled"`
	UnresolvedDeadLetters int64 `json:"unresolved_dead_letters"`
}

type dbClient interface {
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type jobRepository interface {
	Insert(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)
	FindLive(ctx context.Context, recordID uuid.UUID, marketplace enums.Marketplace) (*models.SyncJob, error)
	ClaimNext(tx *gorm.DB, processorID string, heartbeatTimeout time.Duration) (*models.SyncJob, bool, error)
	Heartbeat(ctx context.Context, jobID uuid.UUID, processorID string) (bool, error)
	MarkDone(ctx context.Context, jobID uuid.UUID, processorID string) (bool, error)
	Requeue(ctx context.Context, jobID uuid.UUID, processorID string, errType enums.SyncErrorType, message string, retryAfter time.Time) (bool, error)
	MarkTerminalTx(tx *gorm.DB, jobID uuid.UUID, errType enums.SyncErrorType, message string) error
	Cancel(ctx context.Context, jobID uuid.UUID) (bool, error)
	UpdateAction(ctx context.Context, jobID uuid.UUID, action enums.SyncAction) (bool, error)
	CountsByStatus(ctx context.Context) (map[enums.SyncJobStatus]int64, error)
	List(ctx context.Context, status enums.SyncJobStatus, limit int) ([]models.SyncJob, error)
}

type deadLetterRepository interface {
	InsertTx(tx *gorm.DB, entry models.DeadLetterEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeadLetterEntry, error)
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]models.DeadLetterEntry, error)
	Resolve(ctx context.Context, id uuid.UUID, note string) (bool, error)
}

type recordLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error)
}

// ServiceParams wires the queue service dependencies.
type ServiceParams struct {
	Config      config.QueueConfig
	Logger      *logger.Logger
	DB          dbClient
	Jobs        jobRepository
	DeadLetters deadLetterRepository
	Records     recordLoader
	Metrics     *metrics.SyncMetrics
}

// Service is the sync queue: coalescing enqueue, locked claims, heartbeats,
// retry scheduling, and the dead-letter archive.
type Service struct {
	cfg         config.QueueConfig
	logg        *logger.Logger
	db          dbClient
	jobs        jobRepository
	deadLetters deadLetterRepository
	records     recordLoader
	metrics     *metrics.SyncMetrics
}

// NewService validates and builds the queue service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	if params.DeadLetters == nil {
		return nil, errors.New("dead-letter repository is required")
	}
	if params.Records == nil {
		return nil, errors.New("record loader is required")
	}

	cfg := params.Config
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 15 * time.Minute
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 2 * time.Minute
	}

	return &Service{
		cfg:         cfg,
		logg:        params.Logger,
		db:          params.DB,
		jobs:        params.Jobs,
		deadLetters: params.DeadLetters,
		records:     params.Records,
		metrics:     params.Metrics,
	}, nil
}

// Enqueue adds a job for (record, marketplace), coalescing with any live job:
// a queued job absorbs the new intent by taking its action, a processing job
// is returned untouched.
func (s *Service) Enqueue(ctx context.Context, recordID uuid.UUID, marketplace enums.Marketplace, action enums.SyncAction) (*models.SyncJob, error) {
	if !marketplace.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace is invalid")
	}
	if !action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sync action is invalid")
	}

	existing, err := s.jobs.FindLive(ctx, recordID, marketplace)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find live job")
	}
	if existing != nil {
		if existing.Status == enums.SyncJobQueued && existing.Action != action {
			if ok, err := s.jobs.UpdateAction(ctx, existing.ID, action); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "coalesce job action")
			} else if ok {
				existing.Action = action
			}
		}
		return existing, nil
	}

	job := &models.SyncJob{
		ID:          uuid.New(),
		RecordID:    recordID,
		Marketplace: marketplace,
		Action:      action,
		Status:      enums.SyncJobQueued,
		MaxRetries:  s.cfg.MaxRetries,
	}
	created, err := s.jobs.Insert(ctx, job)
	if err != nil {
		// A concurrent enqueue may have won the partial unique index race.
		if live, findErr := s.jobs.FindLive(ctx, recordID, marketplace); findErr == nil && live != nil {
			return live, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert sync job")
	}

	s.logg.Info(s.logg.WithJobID(ctx, created.ID.String()), "sync job enqueued")
	return created, nil
}

// Claim atomically takes the next eligible job for the worker, or returns nil
// when the queue is idle. A stale-heartbeat reclaim burns one retry, so a job
// that keeps killing its workers is archived here instead of being handed out
// forever.
func (s *Service) Claim(ctx context.Context, processorID string) (*models.SyncJob, error) {
	for {
		var claimed *models.SyncJob
		var reclaimed bool
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			job, stale, err := s.jobs.ClaimNext(tx, processorID, s.cfg.HeartbeatTimeout)
			if err != nil {
				return err
			}
			claimed = job
			reclaimed = stale
			return nil
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim sync job")
		}
		if claimed == nil {
			return nil, nil
		}
		if !reclaimed || !claimed.Exhausted() {
			return claimed, nil
		}

		if err := s.deadLetter(ctx, claimed, enums.SyncErrorTransient, staleClaimMessage); err != nil {
			return nil, err
		}
		s.logg.Warn(s.logg.WithJobID(ctx, claimed.ID.String()), "reclaimed job out of retries, dead-lettered")
		s.metrics.IncJobOutcome(claimed.Marketplace.String(), "dead_lettered")
		s.metrics.IncDeadLetter(claimed.Marketplace.String())
	}
}

// Heartbeat refreshes the worker's claim.
func (s *Service) Heartbeat(ctx context.Context, jobID uuid.UUID, processorID string) error {
	ok, err := s.jobs.Heartbeat(ctx, jobID, processorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "heartbeat sync job")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job claim lost")
	}
	return nil
}

// Complete marks the job done. A lost claim (cancelled or reclaimed) is not an
// error; the completion is simply discarded.
func (s *Service) Complete(ctx context.Context, job *models.SyncJob, processorID string) (bool, error) {
	ok, err := s.jobs.MarkDone(ctx, job.ID, processorID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete sync job")
	}
	if !ok {
		s.logg.Warn(s.logg.WithJobID(ctx, job.ID.String()), "completion discarded, claim lost")
		return false, nil
	}
	s.metrics.IncJobOutcome(job.Marketplace.String(), "done")
	return true, nil
}

// Fail classifies the failure and either reschedules the job or archives it to
// the dead-letter table.
func (s *Service) Fail(ctx context.Context, job *models.SyncJob, processorID string, cause error) (FailureOutcome, error) {
	errType := enums.SyncErrorPermanent
	if pkgerrors.IsRetryable(cause) {
		errType = enums.SyncErrorTransient
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"job_id":      job.ID.String(),
		"record_id":   job.RecordID.String(),
		"marketplace": job.Marketplace.String(),
		"error_type":  string(errType),
	})

	if errType == enums.SyncErrorTransient && job.RetryCount < job.MaxRetries {
		retryAfter := time.Now().UTC().Add(s.retryDelay(job.RetryCount))
		ok, err := s.jobs.Requeue(ctx, job.ID, processorID, errType, message, retryAfter)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue sync job")
		}
		if !ok {
			return FailureClaimLost, nil
		}
		s.logg.Warn(ctx, "sync job requeued after transient failure")
		s.metrics.IncJobOutcome(job.Marketplace.String(), "requeued")
		return FailureRequeued, nil
	}

	if err := s.deadLetter(ctx, job, errType, message); err != nil {
		return "", err
	}
	s.logg.Error(ctx, "sync job dead-lettered", cause)
	s.metrics.IncJobOutcome(job.Marketplace.String(), "dead_lettered")
	s.metrics.IncDeadLetter(job.Marketplace.String())
	return FailureDeadLettered, nil
}

// Cancel transitions a live job to cancelled.
func (s *Service) Cancel(ctx context.Context, jobID uuid.UUID) error {
	ok, err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel sync job")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job is not cancellable")
	}
	s.logg.Info(s.logg.WithJobID(ctx, jobID.String()), "sync job cancelled")
	return nil
}

// GetJob loads one job.
func (s *Service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.SyncJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sync job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sync job")
	}
	return job, nil
}

// ListJobs returns jobs filtered by status.
func (s *Service) ListJobs(ctx context.Context, status enums.SyncJobStatus, limit int) ([]models.SyncJob, error) {
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status is invalid")
	}
	rows, err := s.jobs.List(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sync jobs")
	}
	return rows, nil
}

// Stats snapshots queue depths and publishes them as gauges.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.jobs.CountsByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count sync jobs")
	}
	unresolved, err := s.deadLetters.List(ctx, true, 1000)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count dead letters")
	}

	stats := &Stats{
		Queued:                counts[enums.SyncJobQueued],
		Processing:            counts[enums.SyncJobProcessing],
		Done:                  counts[enums.SyncJobDone],
		Error:                 counts[enums.SyncJobError],
		Cancelled:             counts[enums.SyncJobCancelled],
		UnresolvedDeadLetters: int64(len(unresolved)),
	}
	for status, depth := range counts {
		s.metrics.SetQueueDepth(status.String(), depth)
	}
	return stats, nil
}

// ListDeadLetters returns archive entries.
func (s *Service) ListDeadLetters(ctx context.Context, unresolvedOnly bool, limit int) ([]models.DeadLetterEntry, error) {
	rows, err := s.deadLetters.List(ctx, unresolvedOnly, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters")
	}
	return rows, nil
}

// RetryDeadLetter re-enqueues the archived job and resolves the entry.
func (s *Service) RetryDeadLetter(ctx context.Context, entryID uuid.UUID) (*models.SyncJob, error) {
	entry, err := s.deadLetters.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead-letter entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dead-letter entry")
	}
	if entry.Resolved() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "dead-letter entry already resolved")
	}

	job, err := s.Enqueue(ctx, entry.RecordID, entry.Marketplace, entry.Action)
	if err != nil {
		return nil, err
	}
	if _, err := s.deadLetters.Resolve(ctx, entryID, "retried"); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve dead-letter entry")
	}
	return job, nil
}

// DismissDeadLetter resolves the entry without retrying.
func (s *Service) DismissDeadLetter(ctx context.Context, entryID uuid.UUID, note string) error {
	ok, err := s.deadLetters.Resolve(ctx, entryID, note)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "dismiss dead-letter entry")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "dead-letter entry already resolved")
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, job *models.SyncJob, errType enums.SyncErrorType, message string) error {
	var snapshot json.RawMessage
	if record, err := s.records.FindByID(ctx, job.RecordID); err == nil && record != nil {
		if data, marshalErr := json.Marshal(record); marshalErr == nil {
			snapshot = data
		}
	}

	entry := models.DeadLetterEntry{
		ID:             uuid.New(),
		JobID:          job.ID,
		RecordID:       job.RecordID,
		Marketplace:    job.Marketplace,
		Action:         job.Action,
		ErrorType:      errType,
		RetryCount:     job.RetryCount,
		RecordSnapshot: snapshot,
		FailedAt:       time.Now().UTC(),
	}
	if message != "" {
		entry.ErrorMessage = &message
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.deadLetters.InsertTx(tx, entry); err != nil {
			return err
		}
		return s.jobs.MarkTerminalTx(tx, job.ID, errType, message)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "dead-letter sync job")
	}
	return nil
}

// retryDelay doubles the base per prior attempt, capped, with a little jitter
// to spread synchronized retries.
func (s *Service) retryDelay(retryCount int) time.Duration {
	delay := s.cfg.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= s.cfg.BackoffMax {
			delay = s.cfg.BackoffMax
			break
		}
	}
	return withJitter(delay)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
