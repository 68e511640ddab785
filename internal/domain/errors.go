package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for offline queue operations
var (
	// ErrStorageUnavailable indicates the durable store failed to open or a call failed
	ErrStorageUnavailable = errors.New("offline storage is unavailable")

	// ErrRemoteRejected indicates the remote API answered with a non-success status
	ErrRemoteRejected = errors.New("remote API rejected the request")

	// ErrUnknownModule indicates an operation references a module with no endpoint
	ErrUnknownModule = errors.New("no endpoint configured for module")

	// ErrMissingID indicates an update or delete payload carries no "id"
	ErrMissingID = errors.New("payload has no id")

	// ErrInvalidKind indicates an unrecognised operation kind
	ErrInvalidKind = errors.New("invalid operation kind")

	// ErrOffline indicates the remote API is unreachable
	ErrOffline = errors.New("remote API is unreachable")
)

// RemoteError carries the HTTP status of a rejected request.
type RemoteError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote API returned %d %s: %s", e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("remote API returned %d %s", e.Status, e.StatusText)
}

// Is makes errors.Is(err, ErrRemoteRejected) true for any RemoteError.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteRejected
}

// StorageError wraps a failure of the durable store engine.
type StorageError struct {
	Op        string
	Partition Partition
	Err       error
}

func (e *StorageError) Error() string {
	if e.Partition != "" {
		return fmt.Sprintf("storage %s on %s: %v", e.Op, e.Partition, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorageUnavailable) true for any StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// IsPermanent reports whether an operation failure must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownModule) ||
		errors.Is(err, ErrMissingID) ||
		errors.Is(err, ErrInvalidKind)
}
