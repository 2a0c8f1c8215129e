// Package jobs runs periodic maintenance against the identity store.
package jobs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/identity-kv/internal/core/ports"
)

// Cleaner is the subset of the admin service the scheduler drives.
type Cleaner interface {
	CleanupExpiredTokens(ctx context.Context) (*ports.CleanupReport, error)
}

// Metrics counts cleanup runs and the records they removed.
type Metrics struct {
	Runs    *prometheus.CounterVec
	Removed *prometheus.CounterVec
}

// NewMetrics registers the cleanup counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "token_cleanup_runs_total",
			Help:      "Expired token cleanup runs by outcome",
		}, []string{"outcome"}),
		Removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "token_cleanup_removed_total",
			Help:      "Expired tokens removed by cleanup, by kind",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Removed)
	}
	return m
}

type Scheduler struct {
	cron     *cron.Cron
	cleaner  Cleaner
	schedule string
	timeout  time.Duration
	metrics  *Metrics
	logger   *logrus.Logger
}

func NewScheduler(cleaner Cleaner, schedule string, timeout time.Duration, metrics *Metrics, logger *logrus.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cleaner:  cleaner,
		schedule: schedule,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runCleanup); err != nil {
		return err
	}
	s.cron.Start()
	if s.logger != nil {
		s.logger.WithField("schedule", s.schedule).Info("token cleanup scheduled")
	}
	return nil
}

// Stop prevents new runs and returns a context that is done once the running
// job, if any, has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce performs one cleanup sweep. Partial results are still counted when
// one of the sweeps fails.
func (s *Scheduler) RunOnce(ctx context.Context) *ports.CleanupReport {
	start := time.Now()
	report, err := s.cleaner.CleanupExpiredTokens(ctx)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.Runs.WithLabelValues(outcome).Inc()
		if report != nil {
			s.metrics.Removed.WithLabelValues("refresh").Add(float64(report.RefreshTokens))
			s.metrics.Removed.WithLabelValues("ephemeral").Add(float64(report.EphemeralTokens))
		}
	}

	if s.logger != nil {
		entry := s.logger.WithField("duration", time.Since(start).String())
		if report != nil {
			entry = entry.WithFields(logrus.Fields{"refresh_tokens": report.RefreshTokens, "ephemeral_tokens": report.EphemeralTokens})
		}
		if err != nil {
			entry.WithError(err).Error("token cleanup failed")
		} else {
			entry.Info("token cleanup finished")
		}
	}
	return report
}
