package jobsvc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

type countingLogger struct {
	errors int32
}

func (l *countingLogger) Debug(string, ...interface{}) {}
func (l *countingLogger) Info(string, ...interface{})  {}
func (l *countingLogger) Warn(string, ...interface{})  {}
func (l *countingLogger) Error(string, ...interface{}) { atomic.AddInt32(&l.errors, 1) }
func (l *countingLogger) Fatal(string, ...interface{}) {}

func TestDispatcher_RunsQueuedJobsBeforeShutdown(t *testing.T) {
	logger := &countingLogger{}
	d := NewDispatcher(2, logger)

	var ran int32
	for i := 0; i < 10; i++ {
		d.Dispatch(core.JobFunc{JobName: "count", Fn: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}})
	}
	d.Dispatch(core.JobFunc{JobName: "fail", Fn: func(ctx context.Context) error { return errors.New("boom") }})
	d.Dispatch(core.JobFunc{JobName: "panic", Fn: func(ctx context.Context) error { panic("oops") }})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	assert.EqualValues(t, 10, atomic.LoadInt32(&ran))
	assert.EqualValues(t, 2, atomic.LoadInt32(&logger.errors))

	// dropped after shutdown
	d.Dispatch(core.JobFunc{JobName: "late", Fn: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}})
	assert.EqualValues(t, 10, atomic.LoadInt32(&ran))
}

func TestSyncDispatcher(t *testing.T) {
	logger := &countingLogger{}
	d := NewSyncDispatcher(logger)

	var ran bool
	d.Dispatch(core.JobFunc{JobName: "lms-account", Fn: func(ctx context.Context) error {
		ran = true
		return nil
	}})
	assert.True(t, ran)
	assert.Equal(t, []string{"lms-account"}, d.Ran)
	assert.Zero(t, logger.errors)
}
