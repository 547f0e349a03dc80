package mercadolibre

import (
	"encoding/json"
	"strings"

	"github.com/goliatone/go-order-relay/core"
	"github.com/goliatone/go-order-relay/webhooks"
)

const SignatureHeader = "X-Hub-Signature-256"

// NewWebhookTemplate verifies notification signatures when a secret is configured and
// keys deliveries by the notification body.
func NewWebhookTemplate(secret string) webhooks.ProviderWebhookTemplate {
	template := webhooks.ProviderWebhookTemplate{
		ProviderID: core.ProviderMercadoLibre,
		Extractor:  NotificationDeliveryID,
	}
	if secret = strings.TrimSpace(secret); secret != "" {
		template.Verifier = webhooks.HeaderHMACVerifier{
			Header:   SignatureHeader,
			Prefix:   "sha256=",
			Secret:   secret,
			Encoding: "hex",
		}
	}
	return template
}

// NotificationDeliveryID keys a notification by its _id, or by topic|resource|sent when
// the marketplace omits one.
func NotificationDeliveryID(req core.InboundRequest) (string, error) {
	if strings.TrimSpace(string(req.Body)) == "" {
		return "", core.NewBadInputError(nil, "mercadolibre: notification body is required", nil)
	}
	var notification core.Notification
	if err := json.Unmarshal(req.Body, &notification); err != nil {
		return "", core.NewBadInputError(err, "mercadolibre: notification body is malformed json", nil)
	}
	if id := strings.TrimSpace(notification.ID); id != "" {
		return id, nil
	}
	topic := strings.TrimSpace(notification.Topic)
	resource := strings.TrimSpace(notification.Resource)
	if topic == "" || resource == "" {
		return "", core.NewBadInputError(nil, "mercadolibre: notification topic and resource are required", nil)
	}
	return topic + "|" + resource + "|" + strings.TrimSpace(notification.Sent), nil
}
