// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strings"
	"time"
)

// WatchdogState is the logical on/off switch of the watchdog.
type WatchdogState int32

const (
	StateDisabled WatchdogState = iota
	StateEnabled
)

func (s WatchdogState) String() string {
	if s == StateEnabled {
		return "enabled"
	}
	return "disabled"
}

// TargetIdentity identifies the monitored application (process name or bundle id).
// Resolved once per session and never mutated.
type TargetIdentity string

// String returns the identity as a plain string.
func (t TargetIdentity) String() string {
	return string(t)
}

// Matches reports whether a host-reported name refers to this identity.
// Host process names may be truncated or carry a path, so both the full
// value and its last path element are compared case-insensitively.
func (t TargetIdentity) Matches(name string) bool {
	if t == "" || name == "" {
		return false
	}
	if strings.EqualFold(name, string(t)) {
		return true
	}
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return strings.EqualFold(name[i+1:], string(t))
	}
	return false
}

// EntryPointKind tells the launcher how to interpret EntryPoint.Ref.
type EntryPointKind string

const (
	// EntryExecutable is an absolute path to a binary.
	EntryExecutable EntryPointKind = "executable"
	// EntryConvention is a name derived from the identity when nothing could be resolved.
	EntryConvention EntryPointKind = "convention"
)

// MainEntrySuffix is appended to the identity for the convention fallback.
const MainEntrySuffix = ".MainActivity"

// EntryPoint references how to resume the target.
type EntryPoint struct {
	Kind EntryPointKind
	Ref  string
	Args []string
}

// ConventionEntryPoint returns the well-known default entry point for an identity.
func ConventionEntryPoint(identity TargetIdentity) *EntryPoint {
	if identity == "" {
		return nil
	}
	return &EntryPoint{
		Kind: EntryConvention,
		Ref:  string(identity) + MainEntrySuffix,
	}
}

// LaunchFlags modify how a relaunch is presented.
type LaunchFlags uint8

const (
	FlagNewTask LaunchFlags = 1 << iota
	FlagClearTop
	FlagNoAnimation
)

// Has reports whether all bits of f are set.
func (l LaunchFlags) Has(f LaunchFlags) bool {
	return l&f == f
}

// String renders the flags as a comma-separated list.
func (l LaunchFlags) String() string {
	var parts []string
	if l.Has(FlagNewTask) {
		parts = append(parts, "new-task")
	}
	if l.Has(FlagClearTop) {
		parts = append(parts, "clear-top")
	}
	if l.Has(FlagNoAnimation) {
		parts = append(parts, "no-animation")
	}
	return strings.Join(parts, ",")
}

// SeamlessResume is the flag set used for every relaunch.
const SeamlessResume = FlagNewTask | FlagClearTop | FlagNoAnimation

// RelaunchIntent describes one relaunch attempt. Built fresh per attempt.
type RelaunchIntent struct {
	Identity   TargetIdentity
	EntryPoint EntryPoint
	Flags      LaunchFlags
}

// RelaunchOutcome is the result of a relaunch attempt.
type RelaunchOutcome string

const (
	OutcomeRelaunched   RelaunchOutcome = "relaunched"
	OutcomeSkipped      RelaunchOutcome = "skipped"
	OutcomeUnresolvable RelaunchOutcome = "unresolvable"
	OutcomeLaunchFailed RelaunchOutcome = "launch_failed"
)

// EventRelaunch is the only event name the watchdog emits.
const EventRelaunch = "relaunch"

// RelaunchEvent is delivered to observers after a successful relaunch.
type RelaunchEvent struct {
	Name      string          `json:"event"`
	Payload   map[string]bool `json:"payload"`
	Target    TargetIdentity  `json:"target"`
	SessionID string          `json:"session_id,omitempty"`
	At        time.Time       `json:"at"`
}

// NewRelaunchEvent builds the {relaunch: true} event.
func NewRelaunchEvent(target TargetIdentity, sessionID string, at time.Time) RelaunchEvent {
	return RelaunchEvent{
		Name:      EventRelaunch,
		Payload:   map[string]bool{"relaunch": true},
		Target:    target,
		SessionID: sessionID,
		At:        at,
	}
}

// SessionRecord is the persisted view of a running watchdog daemon.
type SessionRecord struct {
	ID        string
	PID       int
	Target    TargetIdentity
	StartedAt time.Time
	EndedAt   time.Time // zero while running
	EndReason string
}

// Active reports whether the session has not been closed.
func (s SessionRecord) Active() bool {
	return s.EndedAt.IsZero()
}

// RelaunchRecord is one persisted relaunch attempt.
type RelaunchRecord struct {
	SessionID string
	Target    TargetIdentity
	Outcome   RelaunchOutcome
	Detail    string
	At        time.Time
}
