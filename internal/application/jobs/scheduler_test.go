package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/identity-kv/internal/application/jobs"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/test/mocks"
)

func TestRunOnce_CountsRemovedTokens(t *testing.T) {
	admin := &mocks.AdminServiceMock{}
	admin.CleanupExpiredTokensFn = func(ctx context.Context) (*ports.CleanupReport, error) {
		return &ports.CleanupReport{RefreshTokens: 4, EphemeralTokens: 1}, nil
	}
	metrics := jobs.NewMetrics(prometheus.NewRegistry())
	s := jobs.NewScheduler(admin, "@every 1h", time.Second, metrics, nil)

	report := s.RunOnce(context.Background())
	require.NotNil(t, report)
	assert.Equal(t, 4, report.RefreshTokens)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.Removed.WithLabelValues("refresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Removed.WithLabelValues("ephemeral")))
}

func TestRunOnce_PartialFailure(t *testing.T) {
	admin := &mocks.AdminServiceMock{}
	admin.CleanupExpiredTokensFn = func(ctx context.Context) (*ports.CleanupReport, error) {
		return &ports.CleanupReport{EphemeralTokens: 2}, errors.New("scan refresh tokens: timeout")
	}
	metrics := jobs.NewMetrics(prometheus.NewRegistry())
	s := jobs.NewScheduler(admin, "@every 1h", time.Second, metrics, nil)

	s.RunOnce(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Removed.WithLabelValues("ephemeral")))
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := jobs.NewScheduler(&mocks.AdminServiceMock{}, "every tuesday", time.Second, nil, nil)
	require.Error(t, s.Start())
}

func TestStart_RunsOnSchedule(t *testing.T) {
	var runs atomic.Int32
	admin := &mocks.AdminServiceMock{}
	admin.CleanupExpiredTokensFn = func(ctx context.Context) (*ports.CleanupReport, error) {
		_, hasDeadline := ctx.Deadline()
		if hasDeadline {
			runs.Add(1)
		}
		return &ports.CleanupReport{}, nil
	}
	s := jobs.NewScheduler(admin, "* * * * * *", time.Second, nil, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
