package command

import (
	"strings"

	"github.com/goliatone/go-order-relay/core"
)

const TypeProcessNotification = "relay.command.notification.process"

// ProcessNotificationMessage carries one raw marketplace notification.
type ProcessNotificationMessage struct {
	Request core.InboundRequest
}

func (ProcessNotificationMessage) Type() string { return TypeProcessNotification }

func (m ProcessNotificationMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if len(strings.TrimSpace(string(m.Request.Body))) == 0 {
		return commandValidationError("body", "notification body is required")
	}
	return nil
}
