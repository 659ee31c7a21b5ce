// Package notification sends the order confirmation for an OrderCreated
// event. Delivery is at-least-once; an optional Deduplicator narrows the
// window in which a redelivered event produces a second confirmation.
package notification

import (
	"context"

	"healthstack/internal/domain"

	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Notify(ctx context.Context, ev domain.OrderCreatedEvent) error
}

// LogNotifier stands in for the mail gateway and writes one line per
// confirmation.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	return &LogNotifier{log: log.WithField("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, ev domain.OrderCreatedEvent) error {
	n.log.WithFields(logrus.Fields{
		"order_id": ev.OrderID,
		"user_id":  ev.UserID,
		"total":    ev.TotalAmount.StringFixed(2),
	}).Info("[EMAIL] Order confirmation sent")
	return nil
}
