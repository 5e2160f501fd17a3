package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// Environment passed to relaunched targets.
const (
	EnvRelaunchFlags = "RELAUNCH_FLAGS"
	EnvRelaunched    = "RELAUNCHED"
)

// StoppedFlagClearer resets the stop flag once the target is back.
type StoppedFlagClearer interface {
	ClearStopped(identity domain.TargetIdentity) error
}

// ProcessStarter starts cmd without waiting and returns its pid.
type ProcessStarter func(cmd *exec.Cmd) (int, error)

// LauncherConfig overrides entry point resolution.
type LauncherConfig struct {
	EntryPoint string   // Absolute path to the target binary
	Args       []string // Arguments for EntryPoint
}

// CommandLauncher implements domain.Launcher by executing the target.
type CommandLauncher struct {
	config      LauncherConfig
	flags       StoppedFlagClearer
	fileChecker FileChecker
	start       ProcessStarter
	goos        string
	logger      *zap.Logger
}

// NewCommandLauncher creates a launcher for the running OS.
func NewCommandLauncher(config LauncherConfig, flags StoppedFlagClearer, logger *zap.Logger) *CommandLauncher {
	return &CommandLauncher{
		config:      config,
		flags:       flags,
		fileChecker: &RealFileChecker{},
		start:       startReleased,
		goos:        runtime.GOOS,
		logger:      logger,
	}
}

// NewCommandLauncherWithDeps creates a launcher with injectable dependencies (for testing)
func NewCommandLauncherWithDeps(
	config LauncherConfig,
	flags StoppedFlagClearer,
	fileChecker FileChecker,
	start ProcessStarter,
	goos string,
	logger *zap.Logger,
) *CommandLauncher {
	return &CommandLauncher{
		config:      config,
		flags:       flags,
		fileChecker: fileChecker,
		start:       start,
		goos:        goos,
		logger:      logger,
	}
}

func startReleased(cmd *exec.Cmd) (int, error) {
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// ResolveEntryPoint returns the configured binary, or the identity found on PATH.
// It returns nil when neither exists so the caller can fall back to convention.
func (l *CommandLauncher) ResolveEntryPoint(ctx context.Context, identity domain.TargetIdentity) (*domain.EntryPoint, error) {
	if l.config.EntryPoint != "" {
		if !l.fileChecker.Exists(l.config.EntryPoint) {
			return nil, fmt.Errorf("%w: configured entry point %s missing", domain.ErrUnresolvable, l.config.EntryPoint)
		}
		return &domain.EntryPoint{
			Kind: domain.EntryExecutable,
			Ref:  l.config.EntryPoint,
			Args: l.config.Args,
		}, nil
	}

	path, err := l.fileChecker.LookPath(identity.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s not on PATH", domain.ErrUnresolvable, identity)
	}
	return &domain.EntryPoint{
		Kind: domain.EntryExecutable,
		Ref:  path,
		Args: l.config.Args,
	}, nil
}

// Launch starts the target described by intent.
func (l *CommandLauncher) Launch(ctx context.Context, intent domain.RelaunchIntent) error {
	cmd, err := l.command(intent)
	if err != nil {
		return err
	}

	cmd.Env = append(os.Environ(),
		EnvRelaunchFlags+"="+intent.Flags.String(),
		EnvRelaunched+"=1",
	)
	if intent.Flags.Has(domain.FlagNewTask) {
		// Own session so the target outlives the watchdog.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	pid, err := l.start(cmd)
	if err != nil {
		return err
	}

	l.logInfo("target launched",
		zap.String("target", intent.Identity.String()),
		zap.String("command", cmd.Path),
		zap.Int("pid", pid))

	if l.flags != nil {
		if err := l.flags.ClearStopped(intent.Identity); err != nil {
			l.logWarn("failed to clear stopped flag", zap.Error(err))
		}
	}
	return nil
}

// command maps the entry point to an executable. Convention entry points
// go through the desktop launcher of the host.
func (l *CommandLauncher) command(intent domain.RelaunchIntent) (*exec.Cmd, error) {
	ep := intent.EntryPoint
	switch ep.Kind {
	case domain.EntryExecutable:
		return exec.Command(ep.Ref, ep.Args...), nil

	case domain.EntryConvention:
		id := intent.Identity.String()
		switch l.goos {
		case "darwin":
			args := []string{"-a", id}
			if len(ep.Args) > 0 {
				args = append(append(args, "--args"), ep.Args...)
			}
			return exec.Command("open", args...), nil
		case "linux":
			return exec.Command("gtk-launch", append([]string{id}, ep.Args...)...), nil
		}
		return nil, fmt.Errorf("%w: no desktop launcher on %s for %s", domain.ErrUnresolvable, l.goos, ep.Ref)

	default:
		return nil, fmt.Errorf("%w: unknown entry point kind %q", domain.ErrUnresolvable, ep.Kind)
	}
}

func (l *CommandLauncher) logInfo(msg string, fields ...zap.Field) {
	if l.logger != nil {
		l.logger.Info(msg, fields...)
	}
}

func (l *CommandLauncher) logWarn(msg string, fields ...zap.Field) {
	if l.logger != nil {
		l.logger.Warn(msg, fields...)
	}
}

// Ensure CommandLauncher implements domain.Launcher.
var _ domain.Launcher = (*CommandLauncher)(nil)
