package orders

import (
	"context"
	"errors"
	"fmt"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/taskexec"
	"service-dispatch/internal/taskqueue"
)

// Processor reacts to order events: a confirmed order triggers driver
// assignment, a cancelled order tears its delivery down. Assignment is
// scheduled through the executor so a slow match never stalls the consumer
// partition.
type Processor struct {
	dispatch DispatchPort
	executor *taskexec.Executor
	submit   func(ctx context.Context, env taskqueue.Envelope) error
	logger   logx.Logger
	factory  *actionFactory
}

// NewProcessor creates a new orders.Processor. submit may be nil when the
// async queue is not configured.
func NewProcessor(dispatchSvc DispatchPort, executor *taskexec.Executor, submit func(ctx context.Context, env taskqueue.Envelope) error, logger logx.Logger) *Processor {
	if logger == nil {
		logger = logx.Nop()
	}
	p := &Processor{
		dispatch: dispatchSvc,
		executor: executor,
		submit:   submit,
		logger:   logger,
	}
	p.factory = newActionFactory(p.onConfirmed, p.onCancelled)
	return p
}

// Handle processes a single order event. Unknown statuses are skipped.
func (p *Processor) Handle(ctx context.Context, e Event) error {
	if p.factory == nil {
		return nil
	}
	fn, ok := p.factory.get(e.Status)
	if !ok {
		return nil
	}
	return fn(ctx, e)
}

func (p *Processor) onConfirmed(ctx context.Context, e Event) error {
	env := taskqueue.NewAssignTask(e.OrderID, 0)
	var submit taskexec.SubmitFunc
	if p.submit != nil {
		submit = func(ctx context.Context) error { return p.submit(ctx, env) }
	}
	run := func(ctx context.Context) error {
		_, err := p.dispatch.Assign(ctx, e.OrderID, 0)
		return err
	}

	if p.executor == nil {
		return run(ctx)
	}
	if !p.executor.RunSafe(ctx, "assign_order", submit, run) {
		return fmt.Errorf("could not schedule assignment for order %s", e.OrderID)
	}
	return nil
}

func (p *Processor) onCancelled(ctx context.Context, e Event) error {
	reason := e.Reason
	if reason == "" {
		reason = "order cancelled"
	}
	d, err := p.dispatch.CancelByOrder(ctx, e.OrderID, reason)
	if err != nil {
		// A delivery too far along to cancel is a business outcome, not a
		// reason to replay the event.
		if errors.Is(err, domain.ErrInvalidTransition) {
			p.logger.Warn("cancellation skipped, delivery already in progress",
				logx.String("order_id", e.OrderID),
			)
			return nil
		}
		return err
	}
	if d == nil {
		p.logger.Debug("order cancelled with no active delivery", logx.String("order_id", e.OrderID))
	}
	return nil
}
