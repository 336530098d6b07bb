package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

type fakeExports struct {
	maxAge  time.Duration
	removed int
	err     error
}

func (f *fakeExports) CleanupExports(_ context.Context, maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return f.removed, f.err
}

type fakeWarmer struct{ calls int }

func (f *fakeWarmer) Warm(context.Context) { f.calls++ }

type countingLogger struct{ errors int }

func (l *countingLogger) Debug(string, ...interface{}) {}
func (l *countingLogger) Info(string, ...interface{})  {}
func (l *countingLogger) Warn(string, ...interface{})  {}
func (l *countingLogger) Error(string, ...interface{}) { l.errors++ }
func (l *countingLogger) Fatal(string, ...interface{}) {}

func TestNew(t *testing.T) {
	deps := Deps{Exports: &fakeExports{}, Dashboards: &fakeWarmer{}, Logger: &countingLogger{}}

	s, err := New(core.CronConfig{ExportCleanup: "0 3 * * *", StatsWarmup: "*/10 * * * *"}, deps)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s, err = New(core.CronConfig{StatsWarmup: "*/10 * * * *"}, deps)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())

	_, err = New(core.CronConfig{ExportCleanup: "every day"}, deps)
	assert.Error(t, err)
}

func TestScheduler_Tasks(t *testing.T) {
	exports := &fakeExports{removed: 3}
	warmer := &fakeWarmer{}
	logger := &countingLogger{}
	s, err := New(core.CronConfig{}, Deps{Exports: exports, Dashboards: warmer, Logger: logger})
	require.NoError(t, err)

	s.CleanupExports(24 * time.Hour)
	assert.Equal(t, 24*time.Hour, exports.maxAge)
	assert.Zero(t, logger.errors)

	exports.err = errors.New("disk full")
	s.CleanupExports(time.Hour)
	assert.Equal(t, 1, logger.errors)

	s.WarmDashboards()
	assert.Equal(t, 1, warmer.calls)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
