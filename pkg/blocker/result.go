package blocker

// Reason classifies why an engine operation did not fully succeed. Expected
// failure branches are values, not errors, so they never escape as panics
// into the background monitor.
type Reason string

const (
	// ReasonPermissionDenied means the privilege check failed or the OS
	// rejected the write. Declared intent is still persisted.
	ReasonPermissionDenied Reason = "permission-denied"

	// ReasonValidation means the supplied domain was rejected before any
	// file mutation.
	ReasonValidation Reason = "validation"

	// ReasonWriteFailed covers I/O failures other than permission.
	ReasonWriteFailed Reason = "write-failed"

	// ReasonUnknownCategory means the category name is not in the catalog.
	ReasonUnknownCategory Reason = "unknown-category"
)

// Result is the outcome of an engine operation.
type Result struct {
	OK     bool
	Reason Reason
	Detail string
}

func succeed() Result {
	return Result{OK: true}
}

func fail(reason Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}
