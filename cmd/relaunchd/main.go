// Package main is the CLI entry point for relaunchd.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/relaunchd/internal/config"
	"github.com/eliteGoblin/focusd/relaunchd/internal/daemon"
	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
	"github.com/eliteGoblin/focusd/relaunchd/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relaunchd",
	Short: "Process-liveness watchdog - relaunches an application when it dies",
	Long: `relaunchd watches one application. Every heartbeat it asks the host
whether the application is alive, and relaunches it when it is not. If the
watchdog itself is killed it relaunches the application once on the way out.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the watchdog (starts the daemon)",
	Long: `Writes the configuration and starts the watchdog daemon in the background.
Enabling an already running watchdog is a no-op.`,
	RunE: runEnable,
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the watchdog (stops the daemon)",
	Long:  `Stops the daemon. An intentional stop never relaunches the application.`,
	RunE:  runDisable,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watchdog status",
	RunE:  runStatus,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent relaunch attempts",
	RunE:  runEvents,
}

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Set or clear the host's stopped flag for the application",
}

var targetStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Record that the application was stopped",
	Long: `Sets the "explicitly stopped" flag. When neither the process list nor the
foreground window says otherwise, the watchdog treats a stopped application
as not alive and relaunches it. A successful relaunch clears the flag.`,
	RunE: runTargetStop,
}

var targetResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear the stopped flag",
	RunE:  runTargetResume,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec by enable
var runCmd = &cobra.Command{
	Use:    daemon.RunCommand,
	Hidden: true,
	RunE:   runDaemon,
}

var (
	configPath  string
	dataDir     string
	verbose     bool
	jsonOutput  bool
	eventsLimit int

	targetFlag      string
	intervalFlag    time.Duration
	settleFlag      time.Duration
	entryPointFlag  string
	hookFlag        string
	metricsAddrFlag string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default depends on execution mode)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "State directory (default depends on execution mode)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	enableCmd.Flags().StringVar(&targetFlag, "target", "", "Application identity to watch")
	enableCmd.Flags().DurationVar(&intervalFlag, "interval", 0, "Heartbeat interval")
	enableCmd.Flags().DurationVar(&settleFlag, "settle-delay", 0, "Delay before relaunching after the daemon is killed")
	enableCmd.Flags().StringVar(&entryPointFlag, "entry-point", "", "Binary to launch instead of resolving the target")
	enableCmd.Flags().StringVar(&hookFlag, "hook", "", "Command run with each relaunch event as JSON on stdin")
	enableCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "Address for /metrics, /live and /ready")

	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Number of events to show")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	targetCmd.AddCommand(targetStopCmd)
	targetCmd.AddCommand(targetResumeCmd)

	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
}

// resolvePaths applies --data-dir over the execution mode defaults.
func resolvePaths() *infra.Paths {
	if dataDir != "" {
		return infra.PathsForDataDir(dataDir)
	}
	return infra.DetectPaths()
}

// loadConfig reads the config and settles the data directory. A data_dir in
// the file wins over the mode default but not over --data-dir.
func loadConfig() (config.Config, *infra.Paths, string, error) {
	paths := resolvePaths()
	path := configPath
	if path == "" {
		path = paths.ConfigFile
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, "", err
	}
	if dataDir == "" && cfg.DataDir != "" {
		paths = infra.PathsForDataDir(cfg.DataDir)
	}
	cfg.DataDir = paths.DataDir
	if cfg.LogFile == "" {
		cfg.LogFile = paths.LogFile
	}
	return cfg, paths, path, nil
}

func newCLILogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newDetachedController binds a controller to the background daemon.
func newDetachedController(paths *infra.Paths, cfgPath string, store *infra.StateStore, logger *zap.Logger) (*daemon.Controller, *daemon.DetachedContext, error) {
	lock, err := infra.NewInstanceLock(paths.LockPath)
	if err != nil {
		return nil, nil, err
	}

	detached := daemon.NewDetachedContext(
		daemon.DefaultDetachedConfig(),
		store,
		infra.NewProcessManager(),
		lock,
		func() (int, error) { return daemon.StartDaemon(cfgPath) },
		logger,
	)

	controller := daemon.NewController(logger)
	controller.SetExecutionContext(detached)
	return controller, detached, nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	logger := newCLILogger()
	defer func() { _ = logger.Sync() }()

	cfg, paths, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Target = targetFlag
	}
	if flags.Changed("interval") {
		cfg.Interval = intervalFlag
	}
	if flags.Changed("settle-delay") {
		cfg.SettleDelay = settleFlag
	}
	if flags.Changed("entry-point") {
		cfg.EntryPoint = entryPointFlag
	}
	if flags.Changed("hook") {
		cfg.Hook = hookFlag
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddrFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}

	store, err := infra.OpenStateStore(paths.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	controller, detached, err := newDetachedController(paths, cfgPath, store, logger)
	if err != nil {
		return err
	}

	if err := controller.Enable(); err != nil {
		switch {
		case errors.Is(err, domain.ErrPermissionDenied):
			return fmt.Errorf("permission denied, try again with sudo: %w", err)
		default:
			return fmt.Errorf("failed to enable watchdog: %w", err)
		}
	}

	fmt.Println("\n=== relaunchd Enabled ===")
	fmt.Printf("Mode: %s\n", paths.Mode)
	fmt.Printf("Target: %s\n", cfg.Target)
	fmt.Printf("Interval: %s\n", cfg.Interval)
	fmt.Printf("Config: %s\n", cfgPath)
	if rec, err := detached.Status(); err == nil && rec != nil {
		fmt.Printf("Daemon PID: %d\n", rec.PID)
	}
	fmt.Println("=========================")
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	logger := newCLILogger()
	defer func() { _ = logger.Sync() }()

	_, paths, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := infra.OpenStateStore(paths.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	controller, _, err := newDetachedController(paths, cfgPath, store, logger)
	if err != nil {
		return err
	}

	err = controller.Disable()
	logger.Debug("disable", zap.Error(err))
	msg, err := disableResult(err)
	fmt.Println(msg)
	return err
}

// disableResult maps Controller.Disable onto the CLI message and exit error.
// A daemon that refused the stop is still reported as a failure.
func disableResult(err error) (string, error) {
	switch {
	case err == nil:
		return "Watchdog disabled.", nil
	case errors.Is(err, domain.ErrStopRefused):
		return "Watchdog disabled, but the daemon refused to stop.",
			fmt.Errorf("daemon still running (try again with sudo): %w", err)
	case errors.Is(err, domain.ErrNotRunning):
		return "Watchdog was not running.", nil
	default:
		return "Watchdog disable failed.", err
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := newCLILogger()
	defer func() { _ = logger.Sync() }()

	cfg, paths, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("\n=== relaunchd Status ===")

	store, err := infra.OpenStateStore(paths.DataDir)
	if err != nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'relaunchd enable --target <app>' to start watching.")
		return nil
	}
	defer store.Close()

	_, detached, err := newDetachedController(paths, cfgPath, store, logger)
	if err != nil {
		return err
	}

	rec, err := detached.Status()
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("Status: DISABLED")
	} else {
		fmt.Println("Status: ENABLED")
		fmt.Printf("Daemon PID: %d\n", rec.PID)
		fmt.Printf("Session: %s (up %s)\n", rec.ID, time.Since(rec.StartedAt).Round(time.Second))
	}

	fmt.Printf("\nExecution mode: %s\n", paths.Mode)
	fmt.Printf("Config: %s\n", cfgPath)
	fmt.Printf("Data dir: %s\n", paths.DataDir)
	if cfg.Target != "" {
		fmt.Printf("Target: %s\n", cfg.Target)
		fmt.Printf("Interval: %s\n", cfg.Interval)
		if stopped, err := store.IsStopped(domain.TargetIdentity(cfg.Target)); err == nil && stopped {
			fmt.Println("Stopped flag: set")
		}
	}

	if recent, err := store.RecentRelaunches(1); err == nil && len(recent) > 0 {
		last := recent[0]
		fmt.Printf("Last relaunch: %s (%s ago)\n", last.Outcome, time.Since(last.At).Round(time.Second))
	}

	fmt.Println("========================")
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	_, paths, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := infra.OpenStateStore(paths.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.RecentRelaunches(eventsLimit)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No relaunch attempts recorded.")
		return nil
	}

	for _, r := range records {
		line := fmt.Sprintf("%s  %-13s %s", r.At.Format(time.RFC3339), r.Outcome, r.Target)
		if r.Detail != "" {
			line += "  " + r.Detail
		}
		fmt.Println(line)
	}
	return nil
}

func runTargetStop(cmd *cobra.Command, args []string) error {
	return setStopped(true)
}

func runTargetResume(cmd *cobra.Command, args []string) error {
	return setStopped(false)
}

func setStopped(stopped bool) error {
	cfg, paths, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Target == "" {
		return errors.New("no target configured, run 'relaunchd enable --target <app>' first")
	}

	store, err := infra.OpenStateStore(paths.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	target := domain.TargetIdentity(cfg.Target)
	if stopped {
		if err := store.MarkStopped(target); err != nil {
			return err
		}
		fmt.Printf("%s flagged as stopped.\n", target)
		return nil
	}

	if err := store.ClearStopped(target); err != nil {
		return err
	}
	fmt.Printf("%s stopped flag cleared.\n", target)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("relaunchd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
