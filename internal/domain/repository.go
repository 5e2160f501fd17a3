package domain

import "context"

// ExecutionContext is the host facility that keeps the watchdog loop alive.
// Implementations: in-process session (daemon) and detached daemon process (CLI).
type ExecutionContext interface {
	// Start brings the context up. Starting a running context is a no-op.
	Start() error

	// Stop asks the context to end. wasRunning is false if nothing was running.
	Stop() (wasRunning bool, err error)
}

// Teardown describes how an execution context ended.
type Teardown interface {
	// Intentional is true when the context was stopped on request, false when it was killed.
	// Read at decision time; the value may flip after the teardown was reported.
	Intentional() bool

	// SessionID identifies the session that ended.
	SessionID() string
}

// TeardownListener is notified when an execution context ends.
type TeardownListener interface {
	OnTeardown(t Teardown)
}

// ProcessEnumerator exposes the host's view of running applications.
// Methods return ErrUnavailable when the host hides the requested data.
type ProcessEnumerator interface {
	// ListRunningIdentities returns the identities of all visible processes.
	ListRunningIdentities(ctx context.Context) ([]TargetIdentity, error)

	// CurrentForegroundIdentity returns the identity owning the foreground task.
	CurrentForegroundIdentity(ctx context.Context) (TargetIdentity, error)

	// IsExplicitlyStopped reports the host "stopped by user" flag for identity.
	IsExplicitlyStopped(ctx context.Context, identity TargetIdentity) (bool, error)
}

// Launcher starts the target application.
type Launcher interface {
	// ResolveEntryPoint returns how to start identity, or nil if the host cannot tell.
	ResolveEntryPoint(ctx context.Context, identity TargetIdentity) (*EntryPoint, error)

	// Launch issues the relaunch request.
	Launch(ctx context.Context, intent RelaunchIntent) error
}

// NotificationSink receives relaunch events. Delivery is best effort.
type NotificationSink interface {
	Emit(ctx context.Context, event RelaunchEvent) error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Interrupt sends SIGINT (graceful disable).
	Interrupt(pid int) error

	// Terminate sends SIGTERM.
	Terminate(pid int) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// StateStore persists daemon sessions, stopped flags and relaunch history.
// Implementation: SQLCipher encrypted SQLite database.
type StateStore interface {
	// RegisterSession records a newly started daemon session.
	RegisterSession(rec SessionRecord) error

	// EndSession closes a session with a reason.
	EndSession(id, reason string) error

	// ActiveSession returns the most recent open session, or nil.
	ActiveSession() (*SessionRecord, error)

	// MarkStopped sets the "explicitly stopped" flag for identity.
	MarkStopped(identity TargetIdentity) error

	// ClearStopped removes the flag.
	ClearStopped(identity TargetIdentity) error

	// IsStopped reads the flag.
	IsStopped(identity TargetIdentity) (bool, error)

	// RecordRelaunch appends a relaunch attempt to the history.
	RecordRelaunch(rec RelaunchRecord) error

	// RecentRelaunches returns the newest records first.
	RecentRelaunches(limit int) ([]RelaunchRecord, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// InstanceLock guarantees a single daemon per data directory.
type InstanceLock interface {
	// TryLock acquires the lock without blocking.
	TryLock() (bool, error)

	// Unlock releases the lock.
	Unlock() error

	// Path returns the lock file path.
	Path() string
}

// Gate exposes the watchdog's enabled flag to background work.
// Read at the point of use, never cached.
type Gate interface {
	IsEnabled() bool
}

// RelaunchRecorder persists relaunch attempts.
type RelaunchRecorder interface {
	RecordRelaunch(rec RelaunchRecord) error
}
