package domain

import "errors"

// Controller-level rejections surfaced to enable/disable callers.
var (
	ErrContextUnavailable = errors.New("execution context unavailable")
	ErrPermissionDenied   = errors.New("permission denied for persistent execution")
	ErrInvalidState       = errors.New("persistent work cannot be started now")
	ErrNotRunning         = errors.New("execution context was not running")

	// ErrStopRefused accompanies ErrNotRunning when a live context rejected the stop.
	ErrStopRefused = errors.New("execution context refused to stop")
)

// Collaborator and background-loop errors. These are logged, never surfaced.
var (
	// ErrUnavailable means a host capability returned no data.
	ErrUnavailable      = errors.New("host capability unavailable")
	ErrProbeTierFailure = errors.New("liveness tier failed")
	ErrUnresolvable     = errors.New("no entry point for target")
	ErrLaunchFailed     = errors.New("launch failed")
)
