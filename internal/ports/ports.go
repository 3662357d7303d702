// Package ports declares the outbound collaborators of the obligation engine:
// the persistence layer, identity resolution and notification delivery.
package ports

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"costwatch/internal/core"
)

// ErrNotFound is returned by readers when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Ports for outbound adapters.
type (
	// ObligationReader returns the rows of a single organization. The engine
	// trusts the supplied scope and performs no tenant filtering itself.
	ObligationReader interface {
		ListCostItems(ctx context.Context, orgID uuid.UUID) ([]core.CostItem, error)
		ListInvoices(ctx context.Context, orgID uuid.UUID) ([]core.Invoice, error)
	}

	// ReminderSource returns candidate rows across all organizations. An
	// implementation may narrow by date; callers still apply the exact window.
	ReminderSource interface {
		// ListInvoicesDueOn returns open invoices due on any of the given dates.
		ListInvoicesDueOn(ctx context.Context, dates []core.Date) ([]core.Invoice, error)
		// ListBindingsEndingOn returns bound cost items ending on any of the given dates.
		ListBindingsEndingOn(ctx context.Context, dates []core.Date) ([]core.CostItem, error)
	}

	MembershipReader interface {
		ListMemberships(ctx context.Context, orgID uuid.UUID) ([]core.Membership, error)
	}

	// ContactReader resolves a user to a deliverable address.
	ContactReader interface {
		GetContact(ctx context.Context, userID uuid.UUID) (core.Contact, error)
	}

	// AuditWriter persists one reminder audit row. The write is atomic: either
	// the full row is stored or nothing is.
	AuditWriter interface {
		WriteReminderLog(ctx context.Context, entry core.ReminderLog) error
	}

	// Notifier hands an assembled batch to the delivery mechanism.
	Notifier interface {
		Notify(ctx context.Context, batch core.NotificationBatch) error
	}
)
