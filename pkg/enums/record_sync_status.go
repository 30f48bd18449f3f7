package enums

import "fmt"

// RecordSyncStatus tracks one inventory record's standing on one marketplace.
type RecordSyncStatus string

const (
	RecordSyncUnsynced RecordSyncStatus = "unsynced"
	RecordSyncPending  RecordSyncStatus = "pending"
	RecordSyncSynced   RecordSyncStatus = "synced"
	RecordSyncError    RecordSyncStatus = "error"
)

var validRecordSyncStatuses = []RecordSyncStatus{
	RecordSyncUnsynced,
	RecordSyncPending,
	RecordSyncSynced,
	RecordSyncError,
}

// String implements fmt.Stringer.
func (s RecordSyncStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RecordSyncStatus.
func (s RecordSyncStatus) IsValid() bool {
	for _, candidate := range validRecordSyncStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRecordSyncStatus converts raw input into a RecordSyncStatus.
func ParseRecordSyncStatus(value string) (RecordSyncStatus, error) {
	for _, candidate := range validRecordSyncStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid record sync status %q", value)
}
