package taskexec

import (
	"context"

	"service-dispatch/internal/logx"
)

// SubmitFunc hands the task to the async queue; nil means the task has no
// queued form.
type SubmitFunc func(ctx context.Context) error

// RunFunc executes the task directly.
type RunFunc func(ctx context.Context) error

type counter interface {
	Inc()
}

// Config controls the executor's degradation policy. Explicit struct instead
// of ambient globals so every binary states its own policy at construction.
type Config struct {
	// EnableAsyncQueue gates the first tier (queue submission).
	EnableAsyncQueue bool
	// FallbackToSync gates the last-resort inline tier.
	FallbackToSync bool
}

// Executor runs dispatch work with tiered degradation: submit to the async
// task queue, else hand to a bounded background worker pool, else run inline.
// Each tier is more synchronous than the last; dispatch work must not be
// dropped just because the queue is down.
type Executor struct {
	cfg       Config
	pool      *Pool
	logger    logx.Logger
	fallbacks counter
}

// NewExecutor - creates a new Executor around an already started pool.
func NewExecutor(cfg Config, pool *Pool, logger logx.Logger, fallbacks counter) *Executor {
	return &Executor{cfg: cfg, pool: pool, logger: logger, fallbacks: fallbacks}
}

// RunSafe executes the named task through the first tier that takes it.
// Returns true once the work is queued, scheduled, or has run successfully.
// False means every tier refused or the inline run failed; the caller must
// not assume the work happened.
func (e *Executor) RunSafe(ctx context.Context, name string, submit SubmitFunc, run RunFunc) bool {
	if e.cfg.EnableAsyncQueue && submit != nil {
		err := submit(ctx)
		if err == nil {
			return true
		}
		e.logger.Warn("task queue submission failed, degrading",
			logx.String("task", name),
			logx.Any("err", err),
		)
		if e.fallbacks != nil {
			e.fallbacks.Inc()
		}
	}

	if e.pool != nil && e.pool.TrySubmit(name, run) {
		return true
	}

	if !e.cfg.FallbackToSync {
		e.logger.Error("task dropped: pool rejected and sync fallback disabled",
			logx.String("task", name),
		)
		return false
	}

	if err := run(ctx); err != nil {
		e.logger.Error("task failed in synchronous fallback",
			logx.String("task", name),
			logx.Any("err", err),
		)
		return false
	}
	return true
}
