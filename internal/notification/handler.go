package notification

import (
	"context"

	"healthstack/internal/domain"

	"github.com/sirupsen/logrus"
)

// Handler is the OrderCreated side effect run by the notification worker.
type Handler struct {
	notifier Notifier
	dedupe   Deduplicator
	log      *logrus.Entry
}

// NewHandler builds a Handler. dedupe may be nil.
func NewHandler(notifier Notifier, dedupe Deduplicator, log *logrus.Entry) *Handler {
	return &Handler{
		notifier: notifier,
		dedupe:   dedupe,
		log:      log.WithField("component", "order-created-handler"),
	}
}

// HandleOrderCreated sends the confirmation unless the order is already
// marked as sent. Dedupe store failures never block a send; a failed send is
// reported as transient so the message is requeued.
func (h *Handler) HandleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error {
	entry := h.log.WithField("order_id", ev.OrderID)

	if h.dedupe != nil {
		seen, err := h.dedupe.Seen(ctx, ev.OrderID)
		switch {
		case err != nil:
			entry.WithError(err).Warn("dedupe lookup failed, sending anyway")
		case seen:
			entry.Info("confirmation already sent, skipping")
			return nil
		}
	}

	if err := h.notifier.Notify(ctx, ev); err != nil {
		return domain.EnsureKind(domain.KindTransient, "send order confirmation", err)
	}

	if h.dedupe != nil {
		if err := h.dedupe.Mark(ctx, ev.OrderID); err != nil {
			entry.WithError(err).Warn("dedupe mark failed")
		}
	}
	return nil
}
