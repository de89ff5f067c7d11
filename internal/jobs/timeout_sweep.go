package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/ports/dispatchtx"
	"service-dispatch/internal/taskexec"
	"service-dispatch/internal/taskqueue"
)

// sweepBatchSize caps how many expired assignments one sweep picks up.
const sweepBatchSize = 100

// TimeoutSweep periodically scans for assignments nobody accepted in time
// and pushes a timeout check for each through the task pipeline. The check
// itself re-verifies age under lock, so a sweep racing an acceptance is safe.
type TimeoutSweep struct {
	repo     dispatchtx.Runner
	executor *taskexec.Executor
	submit   func(ctx context.Context, env taskqueue.Envelope) error
	check    func(ctx context.Context, deliveryID int64) error
	timeout  time.Duration
	interval time.Duration
	cron     *cron.Cron
	logger   logx.Logger
}

// NewTimeoutSweep creates the sweep job. submit may be nil when the queue is
// not configured; check is the inline fallback.
func NewTimeoutSweep(
	repo dispatchtx.Runner,
	executor *taskexec.Executor,
	submit func(ctx context.Context, env taskqueue.Envelope) error,
	check func(ctx context.Context, deliveryID int64) error,
	timeout, interval time.Duration,
	logger logx.Logger,
) *TimeoutSweep {
	if logger == nil {
		logger = logx.Nop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &TimeoutSweep{
		repo:     repo,
		executor: executor,
		submit:   submit,
		check:    check,
		timeout:  timeout,
		interval: interval,
		cron:     cron.New(),
		logger:   logger.With(logx.String("component", "timeout_sweep")),
	}
}

// Start schedules the sweep and begins running it.
func (j *TimeoutSweep) Start() error {
	spec := fmt.Sprintf("@every %s", j.interval)
	if _, err := j.cron.AddFunc(spec, j.runOnce); err != nil {
		return fmt.Errorf("schedule timeout sweep: %w", err)
	}
	j.cron.Start()
	j.logger.Info("timeout sweep started", logx.Duration("interval", j.interval))
	return nil
}

// Stop stops the sweep and waits for an in-flight run to finish.
func (j *TimeoutSweep) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("timeout sweep stopped")
}

func (j *TimeoutSweep) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.timeout)
	var expired []domain.Delivery
	err := j.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		var err error
		expired, err = tx.ListExpiredAssignments(ctx, cutoff, sweepBatchSize)
		return err
	})
	if err != nil {
		j.logger.Error("timeout sweep query failed", logx.Any("err", err))
		return
	}
	if len(expired) == 0 {
		return
	}

	j.logger.Info("timeout sweep found expired assignments", logx.Int("count", len(expired)))
	for _, d := range expired {
		deliveryID := d.ID
		env := taskqueue.NewTimeoutCheckTask(deliveryID)
		var submit taskexec.SubmitFunc
		if j.submit != nil {
			submit = func(ctx context.Context) error { return j.submit(ctx, env) }
		}
		run := func(ctx context.Context) error { return j.check(ctx, deliveryID) }

		if j.executor == nil {
			if err := run(ctx); err != nil {
				j.logger.Error("timeout check failed", logx.Int64("delivery_id", deliveryID), logx.Any("err", err))
			}
			continue
		}
		if !j.executor.RunSafe(ctx, "timeout_check", submit, run) {
			j.logger.Error("timeout check dropped", logx.Int64("delivery_id", deliveryID))
		}
	}
}
