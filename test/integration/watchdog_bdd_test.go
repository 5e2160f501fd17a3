//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/daemon"
	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
	"github.com/eliteGoblin/focusd/relaunchd/internal/infra"
	"github.com/eliteGoblin/focusd/relaunchd/internal/liveness"
	"github.com/eliteGoblin/focusd/relaunchd/internal/metrics"
	"github.com/eliteGoblin/focusd/relaunchd/internal/usecase"
	"github.com/eliteGoblin/focusd/relaunchd/test/fixtures"
)

const (
	target      = domain.TargetIdentity("firefox")
	interval    = 30 * time.Second
	settleDelay = 3 * time.Second
)

// eventLog collects delivered events.
type eventLog struct {
	mu     sync.Mutex
	events []domain.RelaunchEvent
}

func (l *eventLog) Emit(ctx context.Context, ev domain.RelaunchEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) All() []domain.RelaunchEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.RelaunchEvent(nil), l.events...)
}

func counter(reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	Expect(err).NotTo(HaveOccurred())
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

var _ = Describe("Watchdog", func() {
	var (
		tmpDir     string
		clk        *clock.Mock
		reg        *prometheus.Registry
		store      *infra.StateStore
		host       *fixtures.FakeHost
		events     *eventLog
		controller *daemon.Controller
		session    *daemon.Session
		recovery   *usecase.RecoveryCoordinator
	)

	reschedules := func() float64 {
		return counter(reg, "relaunchd_heartbeat_reschedules_total")
	}

	// tick advances one interval and waits for the scheduler to re-arm.
	tick := func() {
		before := reschedules()
		clk.Add(interval)
		Eventually(reschedules).Should(BeNumerically(">", before))
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "relaunchd-integration-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenStateStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		clk = clock.NewMock()
		reg = prometheus.NewRegistry()
		m := metrics.New(reg)

		host = fixtures.NewFakeHost(store)
		host.Install(target, "/usr/bin/firefox")
		host.Start(target)
		events = &eventLog{}

		probe := liveness.NewHostProbe(host, host.ForegroundAvailable, logger)
		probe.SetObserver(m.ObserveTier)

		controller = daemon.NewController(logger).WithMetrics(m)
		recovery = usecase.NewRecoveryCoordinator(
			usecase.RecoveryConfig{Target: target, SettleDelay: settleDelay},
			controller, host, events, logger,
		).WithClock(clk).WithHistory(store).WithMetrics(m)

		session = daemon.NewSession(daemon.HeartbeatConfig{Interval: interval}, target, controller, probe, recovery, logger).
			WithClock(clk).
			WithTeardownListener(recovery).
			WithSessionLog(store).
			WithMetrics(m)
		controller.SetExecutionContext(session)

		Expect(controller.Enable()).To(Succeed())
	})

	AfterEach(func() {
		_ = controller.Disable()
		recovery.Close()
		Expect(store.Close()).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	Describe("Enable", func() {
		It("should record an open session for this process", func() {
			rec, err := store.ActiveSession()
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).NotTo(BeNil())
			Expect(rec.ID).To(Equal(session.ID()))
			Expect(rec.PID).To(Equal(os.Getpid()))
			Expect(rec.Target).To(Equal(target))
		})

		It("should keep a single session when enabled twice", func() {
			id := session.ID()
			Expect(controller.Enable()).To(Succeed())
			Expect(session.ID()).To(Equal(id))
		})
	})

	Describe("Heartbeat", func() {
		Context("when the target keeps running", func() {
			It("should never relaunch", func() {
				for i := 0; i < 3; i++ {
					tick()
				}
				Expect(host.LaunchCount()).To(Equal(0))
				Expect(events.All()).To(BeEmpty())
			})
		})

		Context("when the target dies", func() {
			It("should relaunch it once on the next tick with seamless flags", func() {
				host.Kill(target)
				tick()

				Expect(host.LaunchCount()).To(Equal(1))
				intent := host.Launches()[0]
				Expect(intent.Identity).To(Equal(target))
				Expect(intent.EntryPoint.Ref).To(Equal("/usr/bin/firefox"))
				Expect(intent.Flags).To(Equal(domain.SeamlessResume))

				// Relaunched target is alive again.
				tick()
				Expect(host.LaunchCount()).To(Equal(1))
			})

			It("should emit one relaunch event tagged with the session", func() {
				host.Kill(target)
				tick()

				Eventually(events.All).Should(HaveLen(1))
				ev := events.All()[0]
				Expect(ev.Name).To(Equal(domain.EventRelaunch))
				Expect(ev.Payload).To(Equal(map[string]bool{"relaunch": true}))
				Expect(ev.SessionID).To(Equal(session.ID()))
			})

			It("should record the attempt in the state store", func() {
				host.Kill(target)
				tick()

				records, err := store.RecentRelaunches(10)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(records[0].Outcome).To(Equal(domain.OutcomeRelaunched))
				Expect(records[0].SessionID).To(Equal(session.ID()))
			})
		})

		Context("when the launch fails", func() {
			It("should record the failure without emitting an event", func() {
				host.FailLaunches(errors.New("exec format error"))
				host.Kill(target)
				tick()

				records, err := store.RecentRelaunches(10)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(records[0].Outcome).To(Equal(domain.OutcomeLaunchFailed))
				Expect(events.All()).To(BeEmpty())

				// Next tick tries again.
				host.FailLaunches(nil)
				tick()
				Expect(host.LaunchCount()).To(Equal(1))
			})
		})
	})

	Describe("Liveness fallback", func() {
		BeforeEach(func() {
			host.SetProcessListAvailable(false)
		})

		Context("when the target owns the foreground", func() {
			It("should treat it as alive", func() {
				host.SetForeground(target)
				tick()
				Expect(host.LaunchCount()).To(Equal(0))
			})
		})

		Context("when another application owns the foreground", func() {
			It("should relaunch without consulting the stopped flag", func() {
				host.Kill(target)
				host.SetForeground("thunderbird")
				tick()
				Expect(host.LaunchCount()).To(Equal(1))
			})
		})

		Context("when only the stopped flag is available", func() {
			BeforeEach(func() {
				host.SetForegroundAvailable(false)
			})

			It("should treat an unflagged target as alive", func() {
				tick()
				Expect(host.LaunchCount()).To(Equal(0))
			})

			It("should relaunch a flagged target and clear the flag", func() {
				Expect(store.MarkStopped(target)).To(Succeed())
				tick()

				Expect(host.LaunchCount()).To(Equal(1))
				stopped, err := store.IsStopped(target)
				Expect(err).NotTo(HaveOccurred())
				Expect(stopped).To(BeFalse())
			})
		})
	})

	Describe("Disable", func() {
		It("should end the session and never relaunch afterwards", func() {
			Expect(controller.Disable()).To(Succeed())

			rec, err := store.ActiveSession()
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).To(BeNil())

			host.Kill(target)
			clk.Add(interval)
			clk.Add(settleDelay)
			recovery.Wait()
			Consistently(host.LaunchCount, 50*time.Millisecond).Should(Equal(0))
		})

		It("should report NotRunning when disabled twice", func() {
			Expect(controller.Disable()).To(Succeed())
			Expect(controller.Disable()).To(MatchError(domain.ErrNotRunning))
		})
	})

	Describe("Abnormal teardown", func() {
		It("should relaunch once after the settle delay", func() {
			host.Kill(target)
			Expect(session.Abort(daemon.EndReasonKilled)).To(BeTrue())

			clk.Add(settleDelay - time.Second)
			Consistently(host.LaunchCount, 20*time.Millisecond).Should(Equal(0))

			clk.Add(time.Second)
			recovery.Wait()
			Expect(host.LaunchCount()).To(Equal(1))

			records, err := store.RecentRelaunches(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})

		It("should skip the relaunch when disabled during the settle delay", func() {
			host.Kill(target)
			session.Abort(daemon.EndReasonKilled)

			Expect(controller.Disable()).To(MatchError(domain.ErrNotRunning))
			clk.Add(settleDelay)
			recovery.Wait()
			Expect(host.LaunchCount()).To(Equal(0))
		})
	})
})
