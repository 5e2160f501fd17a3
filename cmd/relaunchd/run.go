package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/daemon"
	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
	"github.com/eliteGoblin/focusd/relaunchd/internal/infra"
	"github.com/eliteGoblin/focusd/relaunchd/internal/liveness"
	"github.com/eliteGoblin/focusd/relaunchd/internal/metrics"
	"github.com/eliteGoblin/focusd/relaunchd/internal/usecase"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, paths, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := infra.DefaultLogConfig(cfg.LogFile)
	logCfg.Debug = verbose
	logger, closeLog, err := infra.NewDaemonLogger(logCfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// One daemon per data directory.
	lock, err := infra.NewInstanceLock(paths.LockPath)
	if err != nil {
		return err
	}
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("another daemon holds the lock, exiting", zap.String("lock", lock.Path()))
		return nil
	}
	defer func() { _ = lock.Unlock() }()

	store, err := infra.OpenStateStore(paths.DataDir)
	if err != nil {
		logger.Error("failed to open state store", zap.Error(err))
		return err
	}
	defer store.Close()

	target := domain.TargetIdentity(cfg.Target)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	enum := infra.NewHostEnumerator(store, logger)
	probe := liveness.NewHostProbe(enum, enum.ForegroundSupported, logger)
	probe.SetObserver(m.ObserveTier)

	launcher := infra.NewCommandLauncher(infra.LauncherConfig{
		EntryPoint: cfg.EntryPoint,
		Args:       cfg.LaunchArgs,
	}, store, logger)
	sink := infra.NewEventSink(cfg.Hook, logger)

	controller := daemon.NewController(logger).WithMetrics(m)

	recovery := usecase.NewRecoveryCoordinator(
		usecase.RecoveryConfig{Target: target, SettleDelay: cfg.SettleDelay},
		controller,
		launcher,
		sink,
		logger,
	).WithHistory(store).WithMetrics(m)
	defer recovery.Close()

	session := daemon.NewSession(
		daemon.HeartbeatConfig{Interval: cfg.Interval},
		target,
		controller,
		probe,
		recovery,
		logger,
	).WithTeardownListener(recovery).WithSessionLog(store).WithMetrics(m)
	controller.SetExecutionContext(session)

	if cfg.MetricsAddr != "" {
		health := infra.NewHealthServer(cfg.MetricsAddr, reg, session.Running, controller.IsEnabled, logger)
		if err := health.Start(); err != nil {
			logger.Warn("health server disabled", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(ctx)
			}()
		}
	}

	logger.Info("relaunchd starting",
		zap.String("version", Version),
		zap.String("target", target.String()),
		zap.Duration("interval", cfg.Interval),
		zap.Strings("tiers", probe.Tiers()),
		zap.String("mode", paths.Mode.String()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	runner := daemon.NewRunner(controller, session, recovery, infra.NewSystemdNotifier(logger), logger)
	return runner.Run(context.Background(), sigChan)
}
