package liveness

import (
	"context"
	"errors"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// ProcessListTier matches the identity against every visible process.
// It is the most precise tier, but hosts may hide other users' processes.
type ProcessListTier struct {
	enum domain.ProcessEnumerator
}

// NewProcessListTier creates the process-list tier.
func NewProcessListTier(enum domain.ProcessEnumerator) *ProcessListTier {
	return &ProcessListTier{enum: enum}
}

func (t *ProcessListTier) Name() string { return "process_list" }

func (t *ProcessListTier) Available() bool { return t.enum != nil }

// Check returns Alive if the identity is listed, NotAlive if the list is
// complete but lacks it, and NoSignal if the list is unavailable or empty.
func (t *ProcessListTier) Check(ctx context.Context, identity domain.TargetIdentity) (Verdict, error) {
	running, err := t.enum.ListRunningIdentities(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			return NoSignal, nil
		}
		return NoSignal, err
	}

	// An empty list means the host redacted it, since we are running ourselves.
	if len(running) == 0 {
		return NoSignal, nil
	}

	for _, name := range running {
		if identity.Matches(string(name)) {
			return Alive, nil
		}
	}
	return NotAlive, nil
}

var _ Tier = (*ProcessListTier)(nil)
