package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"costwatch/internal/amqp"
	"costwatch/internal/cache"
	"costwatch/internal/core"
	"costwatch/internal/metrics"
)

// Sender delivers a rendered batch to its recipient.
type Sender interface {
	Send(ctx context.Context, batch core.NotificationBatch) error
}

// NotifyWorker handles reminder batches consumed from AMQP.
type NotifyWorker struct {
	sender  Sender
	seen    *cache.LRUCache[uuid.UUID, struct{}]
	metrics *metrics.Metrics
}

// DefaultSeenTTL bounds how long a delivered message id is remembered.
const DefaultSeenTTL = 24 * time.Hour

func NewNotifyWorker(sender Sender, seenSize int, m *metrics.Metrics) *NotifyWorker {
	return &NotifyWorker{
		sender:  sender,
		seen:    cache.NewLRUCache[uuid.UUID, struct{}](seenSize, DefaultSeenTTL),
		metrics: m,
	}
}

// Seen exposes the delivered-message cache so it can be swept periodically.
func (w *NotifyWorker) Seen() *cache.LRUCache[uuid.UUID, struct{}] {
	return w.seen
}

// HandleReminderBatch delivers one message. A message id already delivered by
// this worker is acknowledged without sending again.
func (w *NotifyWorker) HandleReminderBatch(ctx context.Context, msg *amqp.ReminderBatchMessage) error {
	if _, ok := w.seen.Get(msg.MessageID); ok {
		slog.InfoContext(ctx, "Skipping already delivered reminder batch", "message_id", msg.MessageID)
		return nil
	}

	batch := msg.Batch()
	if err := w.sender.Send(ctx, batch); err != nil {
		w.metrics.DeliveryFailed()
		return fmt.Errorf("send reminder batch %s: %w", msg.MessageID, err)
	}
	w.seen.Set(msg.MessageID, struct{}{})

	slog.InfoContext(ctx, "Delivered reminder batch",
		"message_id", msg.MessageID,
		"organization_id", batch.OrganizationID,
		"recipient", batch.Recipient,
		"invoices", len(batch.Invoices),
		"bindings", len(batch.Bindings))
	return nil
}

// Notify implements ports.Notifier so the dispatcher can deliver in-process
// when no broker is configured.
func (w *NotifyWorker) Notify(ctx context.Context, batch core.NotificationBatch) error {
	return w.HandleReminderBatch(ctx, amqp.NewReminderBatchMessage(batch))
}

// WriterSender renders batches as plain text to a writer. It stands in for a
// mail transport in development and tests.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

func (s *WriterSender) Send(ctx context.Context, batch core.NotificationBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, RenderBatch(batch))
	return err
}

// RenderBatch formats a batch as a plain-text message.
func RenderBatch(batch core.NotificationBatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\nSubject: %s\n\n", batch.Recipient, batch.Subject)
	if len(batch.Invoices) > 0 {
		b.WriteString("Invoices due soon:\n")
		for _, inv := range batch.Invoices {
			fmt.Fprintf(&b, "  - %s: %s %s due %s\n", inv.Vendor, inv.Amount.StringFixed(core.AmountScale), inv.Currency, inv.DueAt)
		}
	}
	if len(batch.Bindings) > 0 {
		if len(batch.Invoices) > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Contracts ending soon:\n")
		for _, bind := range batch.Bindings {
			fmt.Fprintf(&b, "  - %s: binding ends %s\n", bind.Name, bind.BindingEndsAt)
		}
	}
	b.WriteString("\n")
	return b.String()
}
