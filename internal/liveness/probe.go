package liveness

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// Observer is notified of every tier result. Used for metrics.
type Observer func(tier string, verdict Verdict, err error)

// Probe answers "is the target alive?" by walking tiers in order.
// The first tier with a verdict wins. Tier failures never escape.
type Probe struct {
	tiers    []Tier
	logger   *zap.Logger
	observer Observer
}

// NewProbe creates a probe over an ordered tier list.
func NewProbe(logger *zap.Logger, tiers ...Tier) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{tiers: tiers, logger: logger}
}

// NewHostProbe builds the standard three-tier probe:
// process list, then foreground task, then stopped flag.
func NewHostProbe(enum domain.ProcessEnumerator, foregroundAvailable Availability, logger *zap.Logger) *Probe {
	return NewProbe(logger,
		NewProcessListTier(enum),
		NewForegroundTier(enum, foregroundAvailable),
		NewStoppedFlagTier(enum),
	)
}

// SetObserver registers a callback for tier results.
func (p *Probe) SetObserver(o Observer) {
	p.observer = o
}

// Tiers returns the tier names in evaluation order.
func (p *Probe) Tiers() []string {
	names := make([]string, 0, len(p.tiers))
	for _, t := range p.tiers {
		names = append(names, t.Name())
	}
	return names
}

// IsTargetAlive returns true if a tier says alive, false if a tier says not
// alive or no tier had a signal.
func (p *Probe) IsTargetAlive(ctx context.Context, identity domain.TargetIdentity) bool {
	for _, tier := range p.tiers {
		if !tier.Available() {
			continue
		}

		verdict, err := p.check(ctx, tier, identity)
		if p.observer != nil {
			p.observer(tier.Name(), verdict, err)
		}
		if err != nil {
			p.logger.Warn("liveness tier failed",
				zap.String("tier", tier.Name()),
				zap.String("target", identity.String()),
				zap.Error(err))
			continue
		}

		switch verdict {
		case Alive:
			p.logger.Debug("target alive",
				zap.String("tier", tier.Name()),
				zap.String("target", identity.String()))
			return true
		case NotAlive:
			p.logger.Info("target not alive",
				zap.String("tier", tier.Name()),
				zap.String("target", identity.String()))
			return false
		}
	}

	p.logger.Debug("no tier produced a signal, treating target as not alive",
		zap.String("target", identity.String()))
	return false
}

// check runs one tier, turning errors and panics into ErrProbeTierFailure.
func (p *Probe) check(ctx context.Context, tier Tier, identity domain.TargetIdentity) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict = NoSignal
			err = fmt.Errorf("%w: %s: panic: %v", domain.ErrProbeTierFailure, tier.Name(), r)
		}
	}()

	verdict, err = tier.Check(ctx, identity)
	if err != nil {
		return NoSignal, fmt.Errorf("%w: %s: %w", domain.ErrProbeTierFailure, tier.Name(), err)
	}
	return verdict, nil
}
