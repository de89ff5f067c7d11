package dispatch

import (
	"context"

	"service-dispatch/internal/logx"
	"service-dispatch/internal/taskqueue"
)

// HandleTask processes one queued dispatch task. It is the worker's queue
// handler: a returned error makes the consumer requeue the message, so only
// infrastructure failures are propagated. Business outcomes like "no driver
// found" are final for this envelope; retries travel as fresh envelopes with
// a bumped attempt counter.
func (s *Service) HandleTask(ctx context.Context, env taskqueue.Envelope) error {
	switch env.Type {
	case taskqueue.TaskAssignDelivery:
		_, err := s.Assign(ctx, env.OrderID, env.Attempt)
		return err
	case taskqueue.TaskTimeoutCheck:
		_, err := s.CheckAssignmentTimeout(ctx, env.DeliveryID)
		return err
	default:
		s.logger.Warn("unknown task type dropped",
			logx.String("task_id", env.ID),
			logx.String("type", string(env.Type)),
		)
		return nil
	}
}
