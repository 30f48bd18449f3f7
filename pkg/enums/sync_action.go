package enums

import "fmt"

// SyncAction is the marketplace mutation a sync job performs. Every action is
// absolute (set to N, set to zero, remove) so re-execution is safe.
type SyncAction string

const (
	SyncActionPush   SyncAction = "push"
	SyncActionZero   SyncAction = "zero"
	SyncActionRemove SyncAction = "remove"
)

var validSyncActions = []SyncAction{
	SyncActionPush,
	SyncActionZero,
	SyncActionRemove,
}

// String implements fmt.Stringer.
func (a SyncAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known SyncAction.
func (a SyncAction) IsValid() bool {
	for _, candidate := range validSyncActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseSyncAction converts raw input into a SyncAction.
func ParseSyncAction(value string) (SyncAction, error) {
	for _, candidate := range validSyncActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync action %q", value)
}
