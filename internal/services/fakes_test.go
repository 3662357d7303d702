package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"costwatch/internal/core"
	"costwatch/internal/ports"
)

var errBackend = errors.New("backend unavailable")

// fakeStore implements every read port from plain maps and records writes.
type fakeStore struct {
	mu sync.Mutex

	items    map[uuid.UUID][]core.CostItem
	invoices map[uuid.UUID][]core.Invoice
	members  map[uuid.UUID][]core.Membership
	contacts map[uuid.UUID]core.Contact

	allInvoices []core.Invoice
	allBindings []core.CostItem

	failItems     bool
	failInvoices  bool
	failInvoicesGlobal bool
	failBindingsGlobal bool
	failMembersOf map[uuid.UUID]bool
	failContactOf map[uuid.UUID]bool
	failAuditOf   map[uuid.UUID]bool

	logs []core.ReminderLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:         make(map[uuid.UUID][]core.CostItem),
		invoices:      make(map[uuid.UUID][]core.Invoice),
		members:       make(map[uuid.UUID][]core.Membership),
		contacts:      make(map[uuid.UUID]core.Contact),
		failMembersOf: make(map[uuid.UUID]bool),
		failContactOf: make(map[uuid.UUID]bool),
		failAuditOf:   make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) ListCostItems(_ context.Context, orgID uuid.UUID) ([]core.CostItem, error) {
	if f.failItems {
		return nil, errBackend
	}
	return f.items[orgID], nil
}

func (f *fakeStore) ListInvoices(_ context.Context, orgID uuid.UUID) ([]core.Invoice, error) {
	if f.failInvoices {
		return nil, errBackend
	}
	return f.invoices[orgID], nil
}

func (f *fakeStore) ListInvoicesDueOn(_ context.Context, _ []core.Date) ([]core.Invoice, error) {
	if f.failInvoicesGlobal {
		return nil, errBackend
	}
	return f.allInvoices, nil
}

func (f *fakeStore) ListBindingsEndingOn(_ context.Context, _ []core.Date) ([]core.CostItem, error) {
	if f.failBindingsGlobal {
		return nil, errBackend
	}
	return f.allBindings, nil
}

func (f *fakeStore) ListMemberships(_ context.Context, orgID uuid.UUID) ([]core.Membership, error) {
	if f.failMembersOf[orgID] {
		return nil, errBackend
	}
	return f.members[orgID], nil
}

func (f *fakeStore) GetContact(_ context.Context, userID uuid.UUID) (core.Contact, error) {
	if f.failContactOf[userID] {
		return core.Contact{}, errBackend
	}
	c, ok := f.contacts[userID]
	if !ok {
		return core.Contact{}, ports.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) WriteReminderLog(_ context.Context, entry core.ReminderLog) error {
	if f.failAuditOf[entry.OrganizationID] {
		return errBackend
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeStore) auditFor(orgID uuid.UUID) (core.ReminderLog, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.OrganizationID == orgID {
			return l, true
		}
	}
	return core.ReminderLog{}, false
}

// addMember registers a member with a resolvable contact and returns its id.
func (f *fakeStore) addMember(orgID uuid.UUID, email string) uuid.UUID {
	userID := uuid.New()
	f.members[orgID] = append(f.members[orgID], core.Membership{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           core.RoleMember,
	})
	f.contacts[userID] = core.Contact{UserID: userID, Email: email}
	return userID
}

// fakeNotifier records delivered batches.
type fakeNotifier struct {
	mu       sync.Mutex
	batches  []core.NotificationBatch
	failTo   map[string]bool
	onNotify func()
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failTo: make(map[string]bool)}
}

func (n *fakeNotifier) Notify(_ context.Context, batch core.NotificationBatch) error {
	if n.onNotify != nil {
		n.onNotify()
	}
	if n.failTo[batch.Recipient] {
		return errBackend
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, batch)
	return nil
}

func (n *fakeNotifier) recipients() map[string]core.NotificationBatch {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]core.NotificationBatch, len(n.batches))
	for _, b := range n.batches {
		out[b.Recipient] = b
	}
	return out
}
