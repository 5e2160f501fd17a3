// Package infra implements host collaborators: processes, launcher, storage, and service plumbing.
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps state under the invoking user's home directory.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps state under /var/lib (root).
	ExecModeSystem ExecMode = "system"
)

const appName = "relaunchd"

// Paths holds the on-disk locations for the current execution mode.
type Paths struct {
	Mode       ExecMode
	DataDir    string // Encryption key and state database
	LockPath   string // Single-instance lock held by the daemon
	LogFile    string
	ConfigFile string
	IsRoot     bool
}

// DetectPaths determines locations based on effective UID.
func DetectPaths() *Paths {
	if os.Geteuid() == 0 {
		return pathsFor(ExecModeSystem, "/var/lib/"+appName, "/etc/"+appName, true)
	}
	home := GetRealUserHome()
	dir := filepath.Join(home, "."+appName)
	return pathsFor(ExecModeUser, dir, dir, false)
}

// PathsForDataDir roots every location in dataDir. Used for --data-dir and tests.
func PathsForDataDir(dataDir string) *Paths {
	return pathsFor(ExecModeUser, dataDir, dataDir, os.Geteuid() == 0)
}

func pathsFor(mode ExecMode, dataDir, configDir string, root bool) *Paths {
	return &Paths{
		Mode:       mode,
		DataDir:    dataDir,
		LockPath:   filepath.Join(dataDir, appName+".lock"),
		LogFile:    filepath.Join(dataDir, "logs", appName+".log"),
		ConfigFile: filepath.Join(configDir, appName+".yaml"),
		IsRoot:     root,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
