package enums

// SyncErrorType classifies a failed marketplace call for retry decisions.
// Transient failures re-queue with backoff; permanent failures dead-letter
// immediately so operators can filter without burning retries.
type SyncErrorType string

const (
	SyncErrorTransient SyncErrorType = "transient"
	SyncErrorPermanent SyncErrorType = "permanent"
)

var validSyncErrorTypes = []SyncErrorType{
	SyncErrorTransient,
	SyncErrorPermanent,
}

// IsValid reports whether the value is a known SyncErrorType.
func (e SyncErrorType) IsValid() bool {
	for _, candidate := range validSyncErrorTypes {
		if candidate == e {
			return true
		}
	}
	return false
}
