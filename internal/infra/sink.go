package infra

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// EventSink implements domain.NotificationSink. Every event is logged; if a
// hook command is configured it runs with the event JSON on stdin.
type EventSink struct {
	hook      string
	cmdRunner CommandRunner
	logger    *zap.Logger
}

// NewEventSink creates a sink. An empty hook only logs.
func NewEventSink(hook string, logger *zap.Logger) *EventSink {
	return NewEventSinkWithDeps(hook, &RealCommandRunner{}, logger)
}

// NewEventSinkWithDeps creates a sink with an injectable command runner (for testing)
func NewEventSinkWithDeps(hook string, cmdRunner CommandRunner, logger *zap.Logger) *EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSink{hook: hook, cmdRunner: cmdRunner, logger: logger}
}

// Emit delivers ev.
func (s *EventSink) Emit(ctx context.Context, ev domain.RelaunchEvent) error {
	s.logger.Info("event",
		zap.String("event", ev.Name),
		zap.String("target", ev.Target.String()),
		zap.String("session", ev.SessionID),
		zap.Any("payload", ev.Payload))

	if s.hook == "" {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.cmdRunner.RunWithInput(ctx, data, "/bin/sh", "-c", s.hook); err != nil {
		return fmt.Errorf("hook %q failed: %w", s.hook, err)
	}
	return nil
}

// Ensure EventSink implements domain.NotificationSink.
var _ domain.NotificationSink = (*EventSink)(nil)
