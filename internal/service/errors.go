package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStorage            = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrEmergencyLockdown  = errors.New("emergency lockdown active")
	ErrIPBlocked          = errors.New("ip address blocked")
	ErrReauthRequired     = errors.New("re-authentication required")
	ErrPasswordReused     = errors.New("password was used recently")
	ErrDetectorFailed     = errors.New("anomaly detector unavailable")
)

// ValidationError lists every violated rule of a rejected input.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// StorageError wraps a backing-store failure. errors.Is(err, ErrStorage) matches it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// NotificationError is produced by notification delivery and is only ever logged.
type NotificationError struct {
	Channel  string
	Attempts int
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify via %s failed after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
