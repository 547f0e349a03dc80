package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-order-relay/core"
)

type NotificationProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type ProcessNotificationCommand struct {
	processor NotificationProcessor
}

func NewProcessNotificationCommand(processor NotificationProcessor) *ProcessNotificationCommand {
	return &ProcessNotificationCommand{processor: processor}
}

// Execute stores the processor result even when an error is returned, so an
// acknowledged failure can still be answered with its status code.
func (c *ProcessNotificationCommand) Execute(ctx context.Context, msg ProcessNotificationMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: notification processor is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.processor.Process(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
