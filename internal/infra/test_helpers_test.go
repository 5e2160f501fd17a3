package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// commandCall records one CommandRunner invocation.
type commandCall struct {
	name  string
	args  []string
	input []byte
}

func (c commandCall) line() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

// mockCommandRunner answers commands from a table keyed by the full command line.
type mockCommandRunner struct {
	mu      sync.Mutex
	outputs map[string][]byte
	errs    map[string]error
	calls   []commandCall
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

func (m *mockCommandRunner) record(input []byte, name string, args []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := commandCall{name: name, args: args, input: input}
	m.calls = append(m.calls, c)
	return c.line()
}

func (m *mockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	return m.errs[m.record(nil, name, args)]
}

func (m *mockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := m.record(nil, name, args)
	if err := m.errs[line]; err != nil {
		return nil, err
	}
	out, ok := m.outputs[line]
	if !ok {
		return nil, fmt.Errorf("unexpected command: %s", line)
	}
	return out, nil
}

func (m *mockCommandRunner) RunWithInput(ctx context.Context, input []byte, name string, args ...string) error {
	return m.errs[m.record(input, name, args)]
}

func (m *mockCommandRunner) Calls() []commandCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]commandCall(nil), m.calls...)
}

// mockFileChecker is a fake filesystem and PATH.
type mockFileChecker struct {
	files map[string]bool
	path  map[string]string
}

func newMockFileChecker() *mockFileChecker {
	return &mockFileChecker{
		files: make(map[string]bool),
		path:  make(map[string]string),
	}
}

func (m *mockFileChecker) Exists(path string) bool {
	return m.files[path]
}

func (m *mockFileChecker) LookPath(file string) (string, error) {
	if p, ok := m.path[file]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

// mockStoppedFlags is an in-memory stopped flag store.
type mockStoppedFlags struct {
	stopped  map[domain.TargetIdentity]bool
	err      error
	clearErr error
	cleared  []domain.TargetIdentity
}

func newMockStoppedFlags() *mockStoppedFlags {
	return &mockStoppedFlags{stopped: make(map[domain.TargetIdentity]bool)}
}

func (m *mockStoppedFlags) IsStopped(identity domain.TargetIdentity) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.stopped[identity], nil
}

func (m *mockStoppedFlags) ClearStopped(identity domain.TargetIdentity) error {
	m.cleared = append(m.cleared, identity)
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.stopped, identity)
	return nil
}
