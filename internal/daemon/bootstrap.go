package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// RunCommand is the hidden CLI command that hosts the watchdog loop.
const RunCommand = "run"

// StartDaemon spawns the watchdog daemon from our own executable.
// The daemon is detached from the parent process (runs independently).
func StartDaemon(configPath string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}
	return StartDaemonWithPath(executable, configPath)
}

// StartDaemonWithPath spawns `<binaryPath> run --config <configPath>`.
func StartDaemonWithPath(binaryPath, configPath string) (int, error) {
	args := []string{RunCommand}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return spawnDetached(binaryPath, args...)
}

// spawnDetached starts a process in its own session with no stdio.
func spawnDetached(binary string, args ...string) (int, error) {
	cmd := exec.Command(binary, args...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Don't keep a handle on the child; it outlives us.
	_ = cmd.Process.Release()
	return pid, nil
}
