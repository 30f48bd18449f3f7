package enums

// ReconcileAction classifies what a reconciliation pass did (or would do, in a
// dry run) for one record.
type ReconcileAction string

const (
	ReconcileConfirmedSold     ReconcileAction = "confirmed_sold"
	ReconcileQuantityCorrected ReconcileAction = "quantity_corrected"
	ReconcileClearedRefs       ReconcileAction = "cleared_refs"
	ReconcileError             ReconcileAction = "error"
)

var validReconcileActions = []ReconcileAction{
	ReconcileConfirmedSold,
	ReconcileQuantityCorrected,
	ReconcileClearedRefs,
	ReconcileError,
}

// IsValid reports whether the value is a known ReconcileAction.
func (a ReconcileAction) IsValid() bool {
	for _, candidate := range validReconcileActions {
		if candidate == a {
			return true
		}
	}
	return false
}
