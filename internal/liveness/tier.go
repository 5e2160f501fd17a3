// Package liveness implements the Strategy pattern for target liveness detection.
// Each tier asks the host a different question; the probe walks them in order.
package liveness

import (
	"context"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// Verdict is what a single tier concluded.
type Verdict int

const (
	// NoSignal means the tier could not tell; the probe moves on.
	NoSignal Verdict = iota
	Alive
	NotAlive
)

func (v Verdict) String() string {
	switch v {
	case Alive:
		return "alive"
	case NotAlive:
		return "not_alive"
	default:
		return "no_signal"
	}
}

// Tier is one detection strategy.
type Tier interface {
	// Name returns a short identifier for logs and metrics.
	Name() string

	// Available reports whether the current host supports this tier.
	Available() bool

	// Check inspects the host. Errors are treated as NoSignal by the probe.
	Check(ctx context.Context, identity domain.TargetIdentity) (Verdict, error)
}

// Availability lets a tier ask the host whether it can run.
type Availability func() bool

func always() bool { return true }
