package dispatch

import (
	"context"
	"time"

	"service-dispatch/internal/logx"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/ports/dispatchtx"
	"service-dispatch/internal/taskexec"
	"service-dispatch/internal/taskqueue"
)

// Policy groups the dispatch tuning knobs.
type Policy struct {
	// MaxRetries bounds automatic assignment retries before the order is
	// escalated to manual assignment.
	MaxRetries int
	// RetryBaseDelay is multiplied by (attempt+1) for linear backoff.
	RetryBaseDelay time.Duration
	// AssignmentTimeout is how long a driver may sit on an assignment
	// without accepting before it is taken away.
	AssignmentTimeout time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.RetryBaseDelay <= 0 {
		p.RetryBaseDelay = 30 * time.Second
	}
	if p.AssignmentTimeout <= 0 {
		p.AssignmentTimeout = 5 * time.Minute
	}
	return p
}

// SubmitTask hands a task envelope to the async queue. Nil when the queue is
// not configured.
type SubmitTask func(ctx context.Context, env taskqueue.Envelope) error

// Service implements driver assignment and the delivery lifecycle. All state
// changes run inside a single transaction; notifications and retries are
// scheduled only after the transaction commits.
type Service struct {
	repo     dispatchtx.Runner
	matcher  matcherPort
	executor *taskexec.Executor
	notifier notify.Notifier
	submit   SubmitTask
	policy   Policy
	logger   logx.Logger
	counters Counters
	now      func() time.Time
}

// NewService - constructor for Service.
func NewService(
	repo dispatchtx.Runner,
	matcher matcherPort,
	executor *taskexec.Executor,
	notifier notify.Notifier,
	submit SubmitTask,
	policy Policy,
	logger logx.Logger,
	counters Counters,
) *Service {
	if notifier == nil {
		notifier = notify.Nop()
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{
		repo:     repo,
		matcher:  matcher,
		executor: executor,
		notifier: notifier,
		submit:   submit,
		policy:   policy.withDefaults(),
		logger:   logger,
		counters: counters,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// emit sends one event through the executor so the notification can never
// block or fail the calling request. Dropped events only bump a counter.
func (s *Service) emit(events ...notify.Event) {
	for _, e := range events {
		e := e
		run := func(ctx context.Context) error {
			return s.notifier.Notify(ctx, e)
		}
		if s.executor == nil {
			if err := run(context.Background()); err != nil {
				inc(s.counters.DroppedNotifications)
				s.logger.Warn("notification dropped",
					logx.String("event", e.TypeName),
					logx.Any("err", err),
				)
			}
			continue
		}
		if !s.executor.RunSafe(context.Background(), "notify:"+e.TypeName, nil, run) {
			inc(s.counters.DroppedNotifications)
			s.logger.Warn("notification dropped", logx.String("event", e.TypeName))
		}
	}
}

// retryDelay returns the backoff before the given attempt is retried.
func (s *Service) retryDelay(attempt int) time.Duration {
	return s.policy.RetryBaseDelay * time.Duration(attempt+1)
}

// scheduleRetry re-runs assignment for the order after a linear backoff.
// The retry goes through the queue when one is configured so a restarted
// worker still picks it up; otherwise it runs through the executor tiers.
func (s *Service) scheduleRetry(orderID string, attempt int) {
	next := attempt + 1
	delay := s.retryDelay(attempt)
	inc(s.counters.Retries)
	s.logger.Info("scheduling assignment retry",
		logx.String("order_id", orderID),
		logx.Int("attempt", next),
		logx.Duration("delay", delay),
	)

	time.AfterFunc(delay, func() {
		env := taskqueue.NewAssignTask(orderID, next)
		var submit taskexec.SubmitFunc
		if s.submit != nil {
			submit = func(ctx context.Context) error { return s.submit(ctx, env) }
		}
		run := func(ctx context.Context) error {
			_, err := s.Assign(ctx, orderID, next)
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if s.executor == nil {
			if err := run(ctx); err != nil {
				s.logger.Error("assignment retry failed",
					logx.String("order_id", orderID),
					logx.Any("err", err),
				)
			}
			return
		}
		if !s.executor.RunSafe(ctx, "assign_retry", submit, run) {
			s.logger.Error("assignment retry dropped", logx.String("order_id", orderID))
		}
	})
}
