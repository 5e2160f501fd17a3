package infra

import (
	"bytes"
	"context"
	"os"
	"os/exec"
)

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunWithInput feeds input on stdin and waits for the command.
	RunWithInput(ctx context.Context, input []byte, name string, args ...string) error
}

// RealCommandRunner executes real system commands
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Output executes a command and returns its stdout
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// RunWithInput executes a command with input on stdin
func (r *RealCommandRunner) RunWithInput(ctx context.Context, input []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	return cmd.Run()
}

// FileChecker abstracts file system checks for testing
type FileChecker interface {
	Exists(path string) bool
	LookPath(file string) (string, error)
}

// RealFileChecker checks real filesystem
type RealFileChecker struct{}

// Exists checks if a file/directory exists
func (r *RealFileChecker) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LookPath searches PATH for an executable
func (r *RealFileChecker) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}
