package liveness

import (
	"context"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// StoppedFlagTier reads the host's "explicitly stopped" flag.
// Weakest signal: absence of the flag counts as alive.
type StoppedFlagTier struct {
	enum domain.ProcessEnumerator
}

// NewStoppedFlagTier creates the stopped-flag tier.
func NewStoppedFlagTier(enum domain.ProcessEnumerator) *StoppedFlagTier {
	return &StoppedFlagTier{enum: enum}
}

func (t *StoppedFlagTier) Name() string { return "stopped_flag" }

func (t *StoppedFlagTier) Available() bool { return t.enum != nil }

func (t *StoppedFlagTier) Check(ctx context.Context, identity domain.TargetIdentity) (Verdict, error) {
	stopped, err := t.enum.IsExplicitlyStopped(ctx, identity)
	if err != nil {
		return NoSignal, err
	}
	if stopped {
		return NotAlive, nil
	}
	return Alive, nil
}

var _ Tier = (*StoppedFlagTier)(nil)
