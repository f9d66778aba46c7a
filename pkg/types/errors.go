package types

import (
	"errors"
	"fmt"
)

// Store lifecycle and table errors.
var (
	ErrStoreDetached    = errors.New("store is detached")
	ErrAlreadyAttached  = errors.New("store is already attached")
	ErrScopeClosed      = errors.New("scope is closed")
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidData      = errors.New("invalid entity data")
	ErrPreferencesExist = errors.New("user preferences already exist")
)

// Error kinds surfaced by the core. Each one is matched with errors.Is; the
// concrete error returned to callers is usually an *OpError carrying the kind
// and the underlying cause.
var (
	ErrPersistence             = errors.New("persistence error")
	ErrIntegrityCheckFailed    = errors.New("integrity check failed")
	ErrInvalidBackupFormat     = errors.New("invalid backup format")
	ErrBackupFailed            = errors.New("backup failed")
	ErrRestoreFailed           = errors.New("restore failed")
	ErrTransport               = errors.New("transport error")
	ErrSinkUnavailable         = errors.New("health sink unavailable")
	ErrSinkAuthorizationDenied = errors.New("health sink authorization denied")
)

// OpError records the operation that failed, the kind of failure and the
// underlying cause. errors.Is matches both Kind and anything in Err's chain.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

// NewOpError wraps err under kind for operation op. A nil err yields an
// OpError whose only cause is the kind itself.
func NewOpError(op string, kind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
