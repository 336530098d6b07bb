package core

import "context"

type (
	// Job is a unit of background work.
	Job interface {
		Name() string
		Run(ctx context.Context) error
	}

	// JobDispatcher runs jobs outside the request cycle. Failures are logged, never returned.
	JobDispatcher interface {
		Dispatch(job Job)
	}
)

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string                  { return j.JobName }
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }
