package notify

import (
	"context"
	"strings"
	"time"

	"github.com/noah-isme/backend-billing/internal/queue"
)

const webhookDeliveryTask = "webhook-delivery"

// EnqueueDelivery hands a delivery to the queue worker. With no Redis wired
// it does nothing; the polling fallback in the API process picks it up.
func (d Dispatcher) EnqueueDelivery(ctx context.Context, deliveryID string, delay time.Duration, maxAttempts int) error {
	if strings.TrimSpace(deliveryID) == "" {
		return nil
	}
	if d.Queue.R == nil {
		return nil
	}
	if maxAttempts <= 0 {
		maxAttempts = d.DefaultMaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 6
		}
	}
	task := queue.Task{
		Kind:           webhookDeliveryTask,
		Payload:        []byte(deliveryID),
		IdempotencyKey: deliveryID,
		MaxAttempts:    maxAttempts,
		Delay:          delay,
	}
	return d.Queue.Enqueue(ctx, task)
}

// WebhookDeliveryTask names the queue kind the delivery worker consumes.
func WebhookDeliveryTask() string {
	return webhookDeliveryTask
}
