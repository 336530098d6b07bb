// Package jobsvc runs background jobs outside the request cycle.
package jobsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/academia/core"
)

const jobTimeout = 2 * time.Minute

type Dispatcher struct {
	queue  chan core.Job
	logger core.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ core.JobDispatcher = (*Dispatcher)(nil)

// NewDispatcher starts workers goroutines consuming a buffered queue.
func NewDispatcher(workers int, logger core.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		queue:  make(chan core.Job, workers*16),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) Dispatch(job core.Job) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn(fmt.Sprintf("job %q dropped: dispatcher is shut down", job.Name()))
		return
	}
	d.queue <- job
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.queue {
		run(job, d.logger)
	}
}

func run(job core.Job, logger core.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("job %q panicked: %v", job.Name(), r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error(fmt.Sprintf("job %q failed: %v", job.Name(), err), err)
		return
	}
	logger.Info(fmt.Sprintf("job %q done in %s", job.Name(), time.Since(start)))
}

// Shutdown stops accepting jobs and waits for the queued ones to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncDispatcher runs jobs right away, in the caller's goroutine.
type SyncDispatcher struct {
	logger core.Logger

	mu  sync.Mutex
	Ran []string
}

var _ core.JobDispatcher = (*SyncDispatcher)(nil)

func NewSyncDispatcher(logger core.Logger) *SyncDispatcher {
	return &SyncDispatcher{logger: logger}
}

func (d *SyncDispatcher) Dispatch(job core.Job) {
	run(job, d.logger)
	d.mu.Lock()
	d.Ran = append(d.Ran, job.Name())
	d.mu.Unlock()
}
