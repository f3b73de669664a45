package jobexec

import (
	"context"

	job "github.com/goliatone/go-job"
)

// Task adapts a Bus to the interface go-job's runtime expects of a
// registrable task (GetID/GetHandler/GetHandlerConfig/GetConfig/GetPath/
// GetEngine/Execute), mirroring export generation's GenerateTask so the bus
// dispatch path and the export generation path share one runtime.
type Task struct {
	bus            *Bus
	id             string
	path           string
	config         job.Config
	handlerOptions job.HandlerOptions
}

// NewTask wraps bus as a registrable go-job task.
func NewTask(b *Bus, handlerOptions job.HandlerOptions) *Task {
	return &Task{
		bus:            b,
		id:             b.taskID,
		path:           b.taskPath,
		config:         b.execCfg,
		handlerOptions: handlerOptions,
	}
}

func (t *Task) GetID() string { return t.id }

func (t *Task) GetHandler() func() error {
	return func() error {
		return nil
	}
}

func (t *Task) GetHandlerConfig() job.HandlerOptions { return t.handlerOptions }

func (t *Task) GetConfig() job.Config { return t.config }

func (t *Task) GetPath() string { return t.path }

func (t *Task) GetEngine() job.Engine { return nil }

// Execute is invoked by the go-job runtime on every delivery attempt.
func (t *Task) Execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return t.bus.Deliver(ctx, msg)
}
