package enums

import "fmt"

// SyncJobStatus maps to the sync_job_status enum in Postgres.
type SyncJobStatus string

const (
	SyncJobQueued     SyncJobStatus = "queued"
	SyncJobProcessing SyncJobStatus = "processing"
	SyncJobDone       SyncJobStatus = "done"
	SyncJobError      SyncJobStatus = "error"
	SyncJobCancelled  SyncJobStatus = "cancelled"
)

var validSyncJobStatuses = []SyncJobStatus{
	SyncJobQueued,
	SyncJobProcessing,
	SyncJobDone,
	SyncJobError,
	SyncJobCancelled,
}

// LiveSyncJobStatuses are the statuses counted against the one-job-per-record
// invariant.
var LiveSyncJobStatuses = []SyncJobStatus{SyncJobQueued, SyncJobProcessing}

// String implements fmt.Stringer.
func (s SyncJobStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SyncJobStatus.
func (s SyncJobStatus) IsValid() bool {
	for _, candidate := range validSyncJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the job lifecycle.
func (s SyncJobStatus) IsTerminal() bool {
	return s == SyncJobDone || s == SyncJobCancelled
}

// ParseSyncJobStatus converts raw input into a SyncJobStatus.
func ParseSyncJobStatus(value string) (SyncJobStatus, error) {
	for _, candidate := range validSyncJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync job status %q", value)
}
