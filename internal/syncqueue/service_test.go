package syncqueue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type stubDB struct{}

func (stubDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type claimResult struct {
	job       *models.SyncJob
	reclaimed bool
}

type stubJobs struct {
	liveJob       *models.SyncJob
	inserted      *models.SyncJob
	insertErr     error
	claims        []claimResult
	updatedAction *enums.SyncAction
	requeued      bool
	requeueOK     bool
	requeueAfter  time.Time
	terminal      bool
	terminalType  enums.SyncErrorType
	doneOK        bool
	cancelOK      bool
	counts        map[enums.SyncJobStatus]int64
}

func (s *stubJobs) Insert(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.inserted = job
	return job, nil
}

func (s *stubJobs) FindByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubJobs) FindLive(ctx context.Context, recordID uuid.UUID, marketplace enums.Marketplace) (*models.SyncJob, error) {
	return s.liveJob, nil
}

func (s *stubJobs) ClaimNext(tx *gorm.DB, processorID string, heartbeatTimeout time.Duration) (*models.SyncJob, bool, error) {
	if len(s.claims) == 0 {
		return nil, false, nil
	}
	next := s.claims[0]
	s.claims = s.claims[1:]
	return next.job, next.reclaimed, nil
}

func (s *stubJobs) Heartbeat(ctx context.Context, jobID uuid.UUID, processorID string) (bool, error) {
	return true, nil
}

func (s *stubJobs) MarkDone(ctx context.Context, jobID uuid.UUID, processorID string) (bool, error) {
	return s.doneOK, nil
}

func (s *stubJobs) Requeue(ctx context.Context, jobID uuid.UUID, processorID string, errType enums.SyncErrorType, message string, retryAfter time.Time) (bool, error) {
	s.requeued = true
	s.requeueAfter = retryAfter
	return s.requeueOK, nil
}

func (s *stubJobs) MarkTerminalTx(tx *gorm.DB, jobID uuid.UUID, errType enums.SyncErrorType, message string) error {
	s.terminal = true
	s.terminalType = errType
	return nil
}

func (s *stubJobs) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return s.cancelOK, nil
}

func (s *stubJobs) UpdateAction(ctx context.Context, jobID uuid.UUID, action enums.SyncAction) (bool, error) {
	s.updatedAction = &action
	return true, nil
}

func (s *stubJobs) CountsByStatus(ctx context.Context) (map[enums.SyncJobStatus]int64, error) {
	return s.counts, nil
}

func (s *stubJobs) List(ctx context.Context, status enums.SyncJobStatus, limit int) ([]models.SyncJob, error) {
	return nil, nil
}

type stubDeadLetters struct {
	inserted *models.DeadLetterEntry
	entry    *models.DeadLetterEntry
	resolved bool
	note     string
}

func (s *stubDeadLetters) InsertTx(tx *gorm.DB, entry models.DeadLetterEntry) error {
	s.inserted = &entry
	return nil
}

func (s *stubDeadLetters) FindByID(ctx context.Context, id uuid.UUID) (*models.DeadLetterEntry, error) {
	if s.entry == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.entry, nil
}

func (s *stubDeadLetters) List(ctx context.Context, unresolvedOnly bool, limit int) ([]models.DeadLetterEntry, error) {
	return nil, nil
}

func (s *stubDeadLetters) Resolve(ctx context.Context, id uuid.UUID, note string) (bool, error) {
	s.resolved = true
	s.note = note
	return true, nil
}

type stubRecords struct {
	record *models.InventoryRecord
}

func (s *stubRecords) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error) {
	if s.record == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.record, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, jobs *stubJobs, dlq *stubDeadLetters) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config: config.QueueConfig{
			MaxRetries:       3,
			BackoffBase:      30 * time.Second,
			BackoffMax:       15 * time.Minute,
			HeartbeatTimeout: 2 * time.Minute,
		},
		Logger:      testLogger(),
		DB:          stubDB{},
		Jobs:        jobs,
		DeadLetters: dlq,
		Records:     &stubRecords{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func processingJob(retryCount int) *models.SyncJob {
	return &models.SyncJob{
		ID:          uuid.New(),
		RecordID:    uuid.New(),
		Marketplace: enums.MarketplaceSquare,
		Action:      enums.SyncActionPush,
		Status:      enums.SyncJobProcessing,
		RetryCount:  retryCount,
		MaxRetries:  3,
	}
}

func TestEnqueueCreatesJobWhenNoneLive(t *testing.T) {
	jobs := &stubJobs{}
	svc := newTestService(t, jobs, &stubDeadLetters{})

	recordID := uuid.New()
	job, err := svc.Enqueue(context.Background(), recordID, enums.MarketplaceSquare, enums.SyncActionPush)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if jobs.inserted == nil {
		t.Fatal("expected job insert")
	}
	if job.RecordID != recordID || job.Status != enums.SyncJobQueued {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.MaxRetries != 3 {
		t.Fatalf("expected max retries from config, got %d", job.MaxRetries)
	}
}

func TestEnqueueCoalescesQueuedJobAndTakesNewAction(t *testing.T) {
	live := &models.SyncJob{
		ID:          uuid.New(),
		Status:      enums.SyncJobQueued,
		Action:      enums.SyncActionPush,
		Marketplace: enums.MarketplaceSquare,
	}
	jobs := &stubJobs{liveJob: live}
	svc := newTestService(t, jobs, &stubDeadLetters{})

	job, err := svc.Enqueue(context.Background(), uuid.New(), enums.MarketplaceSquare, enums.SyncActionRemove)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if jobs.inserted != nil {
		t.Fatal("expected no new insert for live job")
	}
	if job.ID != live.ID {
		t.Fatal("expected the existing job returned")
	}
	if jobs.updatedAction == nil || *jobs.updatedAction != enums.SyncActionRemove {
		t.Fatalf("expected coalesced action update, got %v", jobs.updatedAction)
	}
}

func TestEnqueueLeavesProcessingJobUntouched(t *testing.T) {
	live := &models.SyncJob{
		ID:     uuid.New(),
		Status: enums.SyncJobProcessing,
		Action: enums.SyncActionPush,
	}
	jobs := &stubJobs{liveJob: live}
	svc := newTestService(t, jobs, &stubDeadLetters{})

	job, err := svc.Enqueue(context.Background(), uuid.New(), enums.MarketplaceSquare, enums.SyncActionZero)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if jobs.updatedAction != nil {
		t.Fatal("processing job action must not change")
	}
	if job.Action != enums.SyncActionPush {
		t.Fatalf("expected original action, got %s", job.Action)
	}
}

func TestEnqueueRejectsInvalidInputs(t *testing.T) {
	svc := newTestService(t, &stubJobs{}, &stubDeadLetters{})

	if _, err := svc.Enqueue(context.Background(), uuid.New(), "amazon", enums.SyncActionPush); err == nil {
		t.Fatal("expected invalid marketplace error")
	}
	_, err := svc.Enqueue(context.Background(), uuid.New(), enums.MarketplaceSquare, "replicate")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFailTransientRequeuesWithBackoff(t *testing.T) {
	jobs := &stubJobs{requeueOK: true}
	svc := newTestService(t, jobs, &stubDeadLetters{})

	cause := pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")
	outcome, err := svc.Fail(context.Background(), processingJob(0), "worker-1", cause)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if outcome != FailureRequeued {
		t.Fatalf("expected requeue, got %s", outcome)
	}
	if !jobs.requeued {
		t.Fatal("expected requeue call")
	}
	if jobs.requeueAfter.Before(time.Now().Add(25 * time.Second)) {
		t.Fatalf("expected backoff of at least the base delay, got %v", jobs.requeueAfter)
	}
	if jobs.terminal {
		t.Fatal("transient failure with budget left must not dead-letter")
	}
}

func TestFailTransientExhaustedDeadLetters(t *testing.T) {
	jobs := &stubJobs{}
	dlq := &stubDeadLetters{}
	svc := newTestService(t, jobs, dlq)

	job := processingJob(3)
	cause := pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")
	outcome, err := svc.Fail(context.Background(), job, "worker-1", cause)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if outcome != FailureDeadLettered {
		t.Fatalf("expected dead-letter, got %s", outcome)
	}
	if dlq.inserted == nil {
		t.Fatal("expected dead-letter insert")
	}
	if dlq.inserted.ErrorType != enums.SyncErrorTransient {
		t.Fatalf("expected transient error type, got %s", dlq.inserted.ErrorType)
	}
	if !jobs.terminal {
		t.Fatal("expected job marked terminal")
	}
}

func TestFailPermanentDeadLettersImmediately(t *testing.T) {
	jobs := &stubJobs{}
	dlq := &stubDeadLetters{}
	svc := newTestService(t, jobs, dlq)

	cause := pkgerrors.New(pkgerrors.CodeNotFound, "listing gone")
	outcome, err := svc.Fail(context.Background(), processingJob(0), "worker-1", cause)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if outcome != FailureDeadLettered {
		t.Fatalf("expected dead-letter, got %s", outcome)
	}
	if jobs.requeued {
		t.Fatal("permanent failure must not requeue")
	}
	if dlq.inserted.ErrorType != enums.SyncErrorPermanent {
		t.Fatalf("expected permanent error type, got %s", dlq.inserted.ErrorType)
	}
}

func TestFailUntypedErrorTreatedAsTransient(t *testing.T) {
	jobs := &stubJobs{requeueOK: true}
	svc := newTestService(t, jobs, &stubDeadLetters{})

	outcome, err := svc.Fail(context.Background(), processingJob(0), "worker-1", errors.New("connection reset"))
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if outcome != FailureRequeued {
		t.Fatalf("expected untyped error to requeue, got %s", outcome)
	}
}

func TestClaimReturnsReclaimedJobWithBudgetLeft(t *testing.T) {
	job := processingJob(1)
	jobs := &stubJobs{claims: []claimResult{{job: job, reclaimed: true}}}
	dlq := &stubDeadLetters{}
	svc := newTestService(t, jobs, dlq)

	claimed, err := svc.Claim(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected the reclaimed job back, got %+v", claimed)
	}
	if dlq.inserted != nil {
		t.Fatal("job with retries left must not dead-letter")
	}
}

func TestClaimDeadLettersExhaustedReclaimedJob(t *testing.T) {
	// Reclaiming burned the last retry: the job must be archived, not handed
	// back out for another doomed attempt.
	job := processingJob(3)
	jobs := &stubJobs{claims: []claimResult{{job: job, reclaimed: true}}}
	dlq := &stubDeadLetters{}
	svc := newTestService(t, jobs, dlq)

	claimed, err := svc.Claim(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected idle result after dead-lettering, got %+v", claimed)
	}
	if dlq.inserted == nil {
		t.Fatal("expected dead-letter insert")
	}
	if dlq.inserted.ErrorType != enums.SyncErrorTransient {
		t.Fatalf("expected transient error type, got %s", dlq.inserted.ErrorType)
	}
	if !jobs.terminal {
		t.Fatal("expected job marked terminal")
	}
}

func TestClaimKeepsExhaustedQueuedJobForFinalAttempt(t *testing.T) {
	// A job requeued at its last retry still gets that attempt; only a stale
	// reclaim spends the budget at claim time.
	job := processingJob(3)
	jobs := &stubJobs{claims: []claimResult{{job: job}}}
	dlq := &stubDeadLetters{}
	svc := newTestService(t, jobs, dlq)

	claimed, err := svc.Claim(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected the job back, got %+v", claimed)
	}
	if dlq.inserted != nil {
		t.Fatal("fresh claim must not dead-letter")
	}
}

func TestCompleteDiscardsLostClaim(t *testing.T) {
	jobs := &stubJobs{doneOK: false}
	svc := newTestService(t, jobs, &stubDeadLetters{})

	ok, err := svc.Complete(context.Background(), processingJob(0), "worker-1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if ok {
		t.Fatal("expected lost claim to discard completion")
	}
}

func TestRetryDeadLetterEnqueuesAndResolves(t *testing.T) {
	entry := &models.DeadLetterEntry{
		ID:          uuid.New(),
		JobID:       uuid.New(),
		RecordID:    uuid.New(),
		Marketplace: enums.MarketplaceEbay,
		Action:      enums.SyncActionPush,
		ErrorType:   enums.SyncErrorTransient,
	}
	jobs := &stubJobs{}
	dlq := &stubDeadLetters{entry: entry}
	svc := newTestService(t, jobs, dlq)

	job, err := svc.RetryDeadLetter(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("RetryDeadLetter: %v", err)
	}
	if job.RecordID != entry.RecordID || job.Marketplace != entry.Marketplace {
		t.Fatalf("unexpected retried job: %+v", job)
	}
	if !dlq.resolved || dlq.note != "retried" {
		t.Fatal("expected entry resolved with retry note")
	}
}

func TestRetryDeadLetterRejectsResolvedEntry(t *testing.T) {
	now := time.Now()
	entry := &models.DeadLetterEntry{ID: uuid.New(), ResolvedAt: &now}
	svc := newTestService(t, &stubJobs{}, &stubDeadLetters{entry: entry})

	_, err := svc.RetryDeadLetter(context.Background(), entry.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	svc := newTestService(t, &stubJobs{}, &stubDeadLetters{})

	first := svc.retryDelay(0)
	if first < 30*time.Second || first > 31*time.Second {
		t.Fatalf("expected ~base delay, got %v", first)
	}

	capped := svc.retryDelay(20)
	if capped < 15*time.Minute || capped > 15*time.Minute+time.Second {
		t.Fatalf("expected capped delay, got %v", capped)
	}
}
