// Package scheduler runs the periodic maintenance tasks.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/academia/core"
)

type (
	ExportCleaner interface {
		CleanupExports(ctx context.Context, maxAge time.Duration) (int, error)
	}

	DashboardWarmer interface {
		Warm(ctx context.Context)
	}

	Deps struct {
		Exports    ExportCleaner
		Dashboards DashboardWarmer
		Logger     core.Logger
	}
)

type Scheduler struct {
	cron *cron.Cron
	deps Deps
}

// New registers the tasks; it fails on invalid cron specs.
func New(conf core.CronConfig, deps Deps) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger{deps.Logger}))),
		deps: deps,
	}
	if conf.ExportCleanup != "" {
		maxAge := conf.ExportMaxAge
		if _, err := s.cron.AddFunc(conf.ExportCleanup, func() { s.CleanupExports(maxAge) }); err != nil {
			return nil, errors.Wrapf(err, "scheduling export cleanup %q", conf.ExportCleanup)
		}
	}
	if conf.StatsWarmup != "" {
		if _, err := s.cron.AddFunc(conf.StatsWarmup, s.WarmDashboards); err != nil {
			return nil, errors.Wrapf(err, "scheduling stats warm-up %q", conf.StatsWarmup)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running tasks, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) CleanupExports(maxAge time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := s.deps.Exports.CleanupExports(ctx, maxAge)
	if err != nil {
		s.deps.Logger.Error(fmt.Sprintf("cleaning up exports: %v", err), err)
		return
	}
	if removed > 0 {
		s.deps.Logger.Info(fmt.Sprintf("removed %d expired exports", removed))
	}
}

func (s *Scheduler) WarmDashboards() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.deps.Dashboards.Warm(ctx)
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("cron: %s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v %v", msg, err, keysAndValues), err)
}
