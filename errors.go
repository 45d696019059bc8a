package offlinecache

import (
	"errors"
	"fmt"
)

var (
	// ErrSetupBatch is returned when an asset could not be stored during install.
	ErrSetupBatch = errors.New("setup batch failed")
	// ErrInstallInProgress is returned when install or activate is called during install.
	ErrInstallInProgress = errors.New("install in progress")
	// ErrNotInstalled is returned when activating before a successful install.
	ErrNotInstalled = errors.New("not installed")
	// ErrNotHandled is returned by Intercept for requests the worker does not take part in.
	// The request should proceed to the network unmodified.
	ErrNotHandled = errors.New("request not handled")
	// ErrOffline is returned when the network failed and nothing was stored for the request.
	ErrOffline = errors.New("offline and not stored")
)

// SetupError describes a failed install.
type SetupError struct {
	// Asset that failed, empty if storing the batch failed.
	Asset string
	Err   error
}

func (e *SetupError) Error() string {
	if e.Asset == "" {
		return fmt.Sprintf("%s: %v", ErrSetupBatch, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSetupBatch, e.Asset, e.Err)
}

func (e *SetupError) Unwrap() []error {
	return []error{ErrSetupBatch, e.Err}
}
