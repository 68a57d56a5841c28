package domain

import "errors"

var (
	// ErrValidation indicates malformed input; no state was changed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates that the requested message does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrConflict indicates a compare-and-swap lost the race: the stored status no longer
	// matches the expected one.
	ErrConflict = errors.New("status changed concurrently")
	// ErrInvalidState indicates the operation cannot apply to the message's current status,
	// e.g. playing a message nobody approved.
	ErrInvalidState = errors.New("operation not allowed in current status")
	// ErrAlreadyExists indicates a message with the same id was already ingested.
	ErrAlreadyExists = errors.New("message already exists")
	// ErrStore indicates the underlying persistence is unavailable. Retryable.
	ErrStore = errors.New("store unavailable")
)
