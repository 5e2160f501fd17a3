package liveness

import (
	"context"
	"errors"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// ForegroundTier checks whether the target owns the foreground task.
// Another application in front means not alive; only an unknown or empty
// foreground defers to the next tier.
type ForegroundTier struct {
	enum      domain.ProcessEnumerator
	available Availability
}

// NewForegroundTier creates the foreground tier. A nil availability means always available.
func NewForegroundTier(enum domain.ProcessEnumerator, available Availability) *ForegroundTier {
	if available == nil {
		available = always
	}
	return &ForegroundTier{enum: enum, available: available}
}

func (t *ForegroundTier) Name() string { return "foreground" }

func (t *ForegroundTier) Available() bool {
	return t.enum != nil && t.available()
}

func (t *ForegroundTier) Check(ctx context.Context, identity domain.TargetIdentity) (Verdict, error) {
	fg, err := t.enum.CurrentForegroundIdentity(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			return NoSignal, nil
		}
		return NoSignal, err
	}
	if fg == "" {
		return NoSignal, nil
	}
	if identity.Matches(string(fg)) {
		return Alive, nil
	}
	return NotAlive, nil
}

var _ Tier = (*ForegroundTier)(nil)
