package engine

import "errors"

var (
	// ErrInvalidRoot means the local root is missing or not a directory.
	ErrInvalidRoot = errors.New("invalid local root")

	// ErrTransfer marks a failed upload of a single file. The file is
	// retried on the next pass.
	ErrTransfer = errors.New("transfer failed")

	// ErrReconcile marks a remote entry that could not be listed or deleted.
	ErrReconcile = errors.New("reconcile failed")

	// ErrLivenessLost means the remote session is gone. The scheduler halts
	// and does not reconnect.
	ErrLivenessLost = errors.New("liveness lost")

	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrHalted is returned by Start after a liveness failure.
	ErrHalted = errors.New("scheduler halted")
)
