package thumbnail

import "errors"

var (
	// ErrStorage wraps failures writing a variant.
	ErrStorage = errors.New("storage write failed")
	// ErrSourceUnavailable wraps failures reading the uploaded original.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRegistryFull is returned by Accept and Retry when no job slot is free.
	ErrRegistryFull = errors.New("thumbnail job registry full")
	// ErrShuttingDown is returned once Shutdown has started; it is also the
	// cancellation cause seen by jobs that shutdown interrupts.
	ErrShuttingDown = errors.New("thumbnail orchestrator shutting down")
	// ErrJobActive is returned when the image already has a running job.
	ErrJobActive = errors.New("thumbnail job already running for image")

	errJobCancelled = errors.New("job cancelled")
)
