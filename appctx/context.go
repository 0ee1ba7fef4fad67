package appctx

import (
	"context"

	"issuebroker/models"
)

// Context key for storing webhook delivery metadata
type contextKey string

const DeliveryContextKey contextKey = "webhook_delivery"

// SetDelivery adds the webhook delivery metadata to the request context
func SetDelivery(ctx context.Context, delivery *models.WebhookDelivery) context.Context {
	return context.WithValue(ctx, DeliveryContextKey, delivery)
}

// GetDelivery extracts the webhook delivery metadata from the request context
func GetDelivery(ctx context.Context) (*models.WebhookDelivery, bool) {
	delivery, ok := ctx.Value(DeliveryContextKey).(*models.WebhookDelivery)
	return delivery, ok
}
