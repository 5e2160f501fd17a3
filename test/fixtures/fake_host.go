// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// StoppedFlags is the part of the state store the fake host reads and clears.
type StoppedFlags interface {
	IsStopped(identity domain.TargetIdentity) (bool, error)
	ClearStopped(identity domain.TargetIdentity) error
}

// FakeHost simulates a desktop host: a process table, a foreground window
// and an application launcher. Launching an identity makes it running.
type FakeHost struct {
	mu sync.Mutex

	running     map[domain.TargetIdentity]bool
	foreground  domain.TargetIdentity
	listDown    bool
	fgDown      bool
	installed   map[domain.TargetIdentity]string
	launchErr   error
	launches    []domain.RelaunchIntent
	stoppedFlag StoppedFlags
}

// NewFakeHost creates an empty host. flags may be nil.
func NewFakeHost(flags StoppedFlags) *FakeHost {
	return &FakeHost{
		running:     make(map[domain.TargetIdentity]bool),
		installed:   make(map[domain.TargetIdentity]string),
		stoppedFlag: flags,
	}
}

// Install registers an executable for identity so it can be resolved.
func (h *FakeHost) Install(identity domain.TargetIdentity, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.installed[identity] = path
}

// Start puts identity in the process table.
func (h *FakeHost) Start(identity domain.TargetIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running[identity] = true
}

// Kill removes identity from the process table.
func (h *FakeHost) Kill(identity domain.TargetIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.running, identity)
	if h.foreground == identity {
		h.foreground = ""
	}
}

// IsRunning reports whether identity is in the process table.
func (h *FakeHost) IsRunning(identity domain.TargetIdentity) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running[identity]
}

// SetForeground focuses identity.
func (h *FakeHost) SetForeground(identity domain.TargetIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.foreground = identity
}

// SetProcessListAvailable toggles the process-list API.
func (h *FakeHost) SetProcessListAvailable(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listDown = !ok
}

// SetForegroundAvailable toggles the foreground API.
func (h *FakeHost) SetForegroundAvailable(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fgDown = !ok
}

// ForegroundAvailable matches liveness.Availability.
func (h *FakeHost) ForegroundAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.fgDown
}

// FailLaunches makes every launch return err. nil restores success.
func (h *FakeHost) FailLaunches(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.launchErr = err
}

// Launches returns the intents launched so far.
func (h *FakeHost) Launches() []domain.RelaunchIntent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.RelaunchIntent(nil), h.launches...)
}

// LaunchCount returns the number of successful launches.
func (h *FakeHost) LaunchCount() int {
	return len(h.Launches())
}

// --- domain.ProcessEnumerator ---

func (h *FakeHost) ListRunningIdentities(ctx context.Context) ([]domain.TargetIdentity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listDown {
		return nil, domain.ErrUnavailable
	}
	ids := make([]domain.TargetIdentity, 0, len(h.running))
	for id := range h.running {
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *FakeHost) CurrentForegroundIdentity(ctx context.Context) (domain.TargetIdentity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fgDown || h.foreground == "" {
		return "", domain.ErrUnavailable
	}
	return h.foreground, nil
}

func (h *FakeHost) IsExplicitlyStopped(ctx context.Context, identity domain.TargetIdentity) (bool, error) {
	if h.stoppedFlag == nil {
		return false, domain.ErrUnavailable
	}
	return h.stoppedFlag.IsStopped(identity)
}

// --- domain.Launcher ---

func (h *FakeHost) ResolveEntryPoint(ctx context.Context, identity domain.TargetIdentity) (*domain.EntryPoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path, ok := h.installed[identity]
	if !ok {
		return nil, nil
	}
	return &domain.EntryPoint{Kind: domain.EntryExecutable, Ref: path}, nil
}

func (h *FakeHost) Launch(ctx context.Context, intent domain.RelaunchIntent) error {
	h.mu.Lock()
	if h.launchErr != nil {
		err := h.launchErr
		h.mu.Unlock()
		return err
	}
	h.launches = append(h.launches, intent)
	h.running[intent.Identity] = true
	h.mu.Unlock()

	if h.stoppedFlag != nil {
		_ = h.stoppedFlag.ClearStopped(intent.Identity)
	}
	return nil
}

var (
	_ domain.ProcessEnumerator = (*FakeHost)(nil)
	_ domain.Launcher          = (*FakeHost)(nil)
)
