package infra

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// StoppedFlags reads the "explicitly stopped" flag.
type StoppedFlags interface {
	IsStopped(identity domain.TargetIdentity) (bool, error)
}

// ProcessLister returns the names of running processes.
type ProcessLister func(ctx context.Context) ([]string, error)

// HostEnumerator implements domain.ProcessEnumerator for desktop hosts.
// Process names come from gopsutil, the foreground application from the
// window system, and the stopped flag from the state store.
type HostEnumerator struct {
	list        ProcessLister
	stopped     StoppedFlags
	cmdRunner   CommandRunner
	fileChecker FileChecker
	goos        string
	getenv      func(string) string
	logger      *zap.Logger
}

// NewHostEnumerator creates an enumerator for the running OS.
func NewHostEnumerator(stopped StoppedFlags, logger *zap.Logger) *HostEnumerator {
	return &HostEnumerator{
		list:        listProcessNames,
		stopped:     stopped,
		cmdRunner:   &RealCommandRunner{},
		fileChecker: &RealFileChecker{},
		goos:        runtime.GOOS,
		getenv:      os.Getenv,
		logger:      logger,
	}
}

// NewHostEnumeratorWithDeps creates an enumerator with injectable dependencies (for testing)
func NewHostEnumeratorWithDeps(
	list ProcessLister,
	stopped StoppedFlags,
	cmdRunner CommandRunner,
	fileChecker FileChecker,
	goos string,
	getenv func(string) string,
	logger *zap.Logger,
) *HostEnumerator {
	return &HostEnumerator{
		list:        list,
		stopped:     stopped,
		cmdRunner:   cmdRunner,
		fileChecker: fileChecker,
		goos:        goos,
		getenv:      getenv,
		logger:      logger,
	}
}

// listProcessNames enumerates processes with gopsutil. Processes that exit
// mid-scan or hide their name are skipped.
func listProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue // Process may have exited
		}
		names = append(names, name)
	}
	return names, nil
}

// ListRunningIdentities returns the names of visible processes.
func (h *HostEnumerator) ListRunningIdentities(ctx context.Context) ([]domain.TargetIdentity, error) {
	names, err := h.list(ctx)
	if err != nil {
		h.logDebug("process list unavailable", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}

	ids := make([]domain.TargetIdentity, 0, len(names))
	for _, n := range names {
		ids = append(ids, domain.TargetIdentity(n))
	}
	return ids, nil
}

// ForegroundSupported reports whether this host can name the foreground application.
func (h *HostEnumerator) ForegroundSupported() bool {
	switch h.goos {
	case "darwin":
		_, err := h.fileChecker.LookPath("osascript")
		return err == nil
	case "linux":
		if h.getenv("DISPLAY") == "" {
			return false
		}
		_, err := h.fileChecker.LookPath("xdotool")
		return err == nil
	default:
		return false
	}
}

// CurrentForegroundIdentity returns the process name owning the focused window.
func (h *HostEnumerator) CurrentForegroundIdentity(ctx context.Context) (domain.TargetIdentity, error) {
	switch h.goos {
	case "darwin":
		script := `tell application "System Events" to get name of first application process whose frontmost is true`
		out, err := h.cmdRunner.Output(ctx, "osascript", "-e", script)
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
		}
		return trimIdentity(out)

	case "linux":
		out, err := h.cmdRunner.Output(ctx, "xdotool", "getactivewindow", "getwindowpid")
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
		if err != nil {
			return "", fmt.Errorf("%w: bad window pid %q", domain.ErrUnavailable, out)
		}
		return h.nameOfPID(ctx, pid)

	default:
		return "", fmt.Errorf("%w: no foreground query on %s", domain.ErrUnavailable, h.goos)
	}
}

func (h *HostEnumerator) nameOfPID(ctx context.Context, pid int) (domain.TargetIdentity, error) {
	out, err := h.cmdRunner.Output(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "comm=")
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return trimIdentity(out)
}

func trimIdentity(out []byte) (domain.TargetIdentity, error) {
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", domain.ErrUnavailable
	}
	return domain.TargetIdentity(name), nil
}

// IsExplicitlyStopped reads the user's stop flag from the store.
func (h *HostEnumerator) IsExplicitlyStopped(ctx context.Context, identity domain.TargetIdentity) (bool, error) {
	if h.stopped == nil {
		return false, domain.ErrUnavailable
	}
	return h.stopped.IsStopped(identity)
}

func (h *HostEnumerator) logDebug(msg string, fields ...zap.Field) {
	if h.logger != nil {
		h.logger.Debug(msg, fields...)
	}
}

// Ensure HostEnumerator implements domain.ProcessEnumerator.
var _ domain.ProcessEnumerator = (*HostEnumerator)(nil)
