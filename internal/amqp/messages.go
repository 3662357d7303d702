package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"costwatch/internal/core"
)

// ReminderBatchMessage carries one notification batch to the notify worker.
// It is self-contained: the worker needs no database access to deliver it.
type ReminderBatchMessage struct {
	MessageID      uuid.UUID              `json:"message_id"`
	OrganizationID uuid.UUID              `json:"organization_id"`
	Recipient      string                 `json:"recipient"`
	Subject        string                 `json:"subject"`
	Invoices       []core.InvoiceReminder `json:"invoices"`
	Bindings       []core.BindingReminder `json:"bindings"`
	Timestamp      time.Time              `json:"timestamp"`
}

// NewReminderBatchMessage wraps a batch with a fresh message id and timestamp.
func NewReminderBatchMessage(batch core.NotificationBatch) *ReminderBatchMessage {
	return &ReminderBatchMessage{
		MessageID:      uuid.New(),
		OrganizationID: batch.OrganizationID,
		Recipient:      batch.Recipient,
		Subject:        batch.Subject,
		Invoices:       batch.Invoices,
		Bindings:       batch.Bindings,
		Timestamp:      time.Now().UTC(),
	}
}

// Batch returns the notification batch carried by the message.
func (m *ReminderBatchMessage) Batch() core.NotificationBatch {
	return core.NotificationBatch{
		OrganizationID: m.OrganizationID,
		Recipient:      m.Recipient,
		Subject:        m.Subject,
		Invoices:       m.Invoices,
		Bindings:       m.Bindings,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReminderBatchMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReminderBatchMessageFromJSON decodes and checks a message body.
func ReminderBatchMessageFromJSON(data []byte) (*ReminderBatchMessage, error) {
	var msg ReminderBatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Recipient == "" {
		return nil, fmt.Errorf("message %s has no recipient", msg.MessageID)
	}
	if msg.OrganizationID == uuid.Nil {
		return nil, fmt.Errorf("message %s has no organization", msg.MessageID)
	}
	return &msg, nil
}
