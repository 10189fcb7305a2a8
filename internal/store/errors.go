package store

import "errors"

var (
	// ErrDuplicateRecord means a processed-email record already exists for
	// the message id. Callers treat it as a no-op.
	ErrDuplicateRecord = errors.New("record already exists for message id")

	// ErrStageInUse blocks deletion of a stage that tracking records still
	// reference.
	ErrStageInUse = errors.New("stage is referenced by tracking records")

	// ErrStageNotVisible means the stage belongs to a different user.
	ErrStageNotVisible = errors.New("stage not visible to user")

	// ErrReorderFailed means at least one reorder assignment did not apply;
	// the whole transaction was rolled back.
	ErrReorderFailed = errors.New("stage reorder failed, no orders changed")

	ErrNotFound = errors.New("not found")
)
