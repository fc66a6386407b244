package services

import (
	"context"
	"time"
)

// Notification template keys consumed by the downstream mailer.
const (
	TemplateOrderConfirmation    = "order_confirmation"
	TemplateRefundNoStock        = "refund_no_stock"
	TemplateRefundInvalidAddress = "refund_invalid_address"
)

// NotificationMessage is a template key plus data bag dispatched to customers.
type NotificationMessage struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	OrderID   string            `json:"orderId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	QueuedAt  time.Time         `json:"queuedAt"`
	Data      map[string]string `json:"data,omitempty"`
}

// NotificationPublisher dispatches customer notifications. Implementations
// return the broker's message id.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}
