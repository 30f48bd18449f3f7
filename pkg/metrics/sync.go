package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records counters and timings for the sync pipeline.
type SyncMetrics struct {
	jobDuration *prometheus.HistogramVec
	jobOutcome  *prometheus.CounterVec
	queueDepth  *prometheus.GaugeVec
	deadLetters *prometheus.CounterVec
	drainRuns   *prometheus.CounterVec
}

// NewSyncMetrics registers the sync pipeline metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_job_duration_seconds",
		Help:    "Duration of individual sync job executions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"marketplace", "action"})
	jobOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_job_outcomes",
		Help: "Sync job completions by outcome.",
	}, []string{"marketplace", "outcome"})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_queue_depth",
		Help: "Jobs currently in the queue by status.",
	}, []string{"status"})
	deadLetters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_dead_letters",
		Help: "Jobs moved to the dead-letter archive.",
	}, []string{"marketplace"})
	drainRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_drain_runs",
		Help: "Drain invocations by stop reason.",
	}, []string{"reason"})
	reg.MustRegister(jobDuration, jobOutcome, queueDepth, deadLetters, drainRuns)
	return &SyncMetrics{
		jobDuration: jobDuration,
		jobOutcome:  jobOutcome,
		queueDepth:  queueDepth,
		deadLetters: deadLetters,
		drainRuns:   drainRuns,
	}
}

// ObserveJobDuration records how long one job execution took.
func (s *SyncMetrics) ObserveJobDuration(marketplace, action string, duration time.Duration) {
	if s == nil || s.jobDuration == nil {
		return
	}
	s.jobDuration.WithLabelValues(normalizeLabel(marketplace), normalizeLabel(action)).Observe(duration.Seconds())
}

// IncJobOutcome increments the outcome counter for a completed job.
func (s *SyncMetrics) IncJobOutcome(marketplace, outcome string) {
	if s == nil || s.jobOutcome == nil {
		return
	}
	s.jobOutcome.WithLabelValues(normalizeLabel(marketplace), normalizeLabel(outcome)).Inc()
}

// SetQueueDepth records the current number of jobs in the given status.
func (s *SyncMetrics) SetQueueDepth(status string, depth int64) {
	if s == nil || s.queueDepth == nil {
		return
	}
	s.queueDepth.WithLabelValues(normalizeLabel(status)).Set(float64(depth))
}

// IncDeadLetter counts a job archived to the dead-letter table.
func (s *SyncMetrics) IncDeadLetter(marketplace string) {
	if s == nil || s.deadLetters == nil {
		return
	}
	s.deadLetters.WithLabelValues(normalizeLabel(marketplace)).Inc()
}

// IncDrainRun counts a drain invocation by the reason it stopped.
func (s *SyncMetrics) IncDrainRun(reason string) {
	if s == nil || s.drainRuns == nil {
		return
	}
	s.drainRuns.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
