// Package memory is an in-process implementation of the obligation ports,
// optionally seeded from a JSON file. It backs local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"costwatch/internal/core"
	"costwatch/internal/ports"
)

type Store struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]core.Organization
	contacts      map[uuid.UUID]core.Contact
	memberships   []core.Membership
	costItems     []core.CostItem
	invoices      []core.Invoice
	logs          []core.ReminderLog
}

func New() *Store {
	return &Store{
		organizations: make(map[uuid.UUID]core.Organization),
		contacts:      make(map[uuid.UUID]core.Contact),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) ListCostItems(_ context.Context, orgID uuid.UUID) ([]core.CostItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CostItem, 0)
	for _, it := range s.costItems {
		if it.OrganizationID == orgID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) ListInvoices(_ context.Context, orgID uuid.UUID) ([]core.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.OrganizationID == orgID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *Store) ListInvoicesDueOn(_ context.Context, dates []core.Date) ([]core.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.Status == core.InvoiceOpen && containsDate(dates, inv.DueAt) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *Store) ListBindingsEndingOn(_ context.Context, dates []core.Date) ([]core.CostItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CostItem, 0)
	for _, it := range s.costItems {
		if it.HasBinding && containsDate(dates, it.BindingEndsAt) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) ListMemberships(_ context.Context, orgID uuid.UUID) ([]core.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Membership, 0)
	for _, m := range s.memberships {
		if m.OrganizationID == orgID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) GetContact(_ context.Context, userID uuid.UUID) (core.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[userID]
	if !ok {
		return core.Contact{}, fmt.Errorf("user %s: %w", userID, ports.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetOrganization(_ context.Context, id uuid.UUID) (core.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.organizations[id]
	if !ok {
		return core.Organization{}, fmt.Errorf("organization %s: %w", id, ports.ErrNotFound)
	}
	return o, nil
}

func (s *Store) WriteReminderLog(_ context.Context, entry core.ReminderLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

// ListReminderLogs returns the audit rows of one organization in write order.
func (s *Store) ListReminderLogs(_ context.Context, orgID uuid.UUID) ([]core.ReminderLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ReminderLog, 0)
	for _, l := range s.logs {
		if l.OrganizationID == orgID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, c core.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.UserID] = c
	return nil
}

func (s *Store) CreateOrganization(_ context.Context, o core.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[o.ID] = o
	return nil
}

func (s *Store) CreateMembership(_ context.Context, m core.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = append(s.memberships, m)
	return nil
}

func (s *Store) CreateCostItem(_ context.Context, item core.CostItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Tags = slices.Clone(item.Tags)
	s.costItems = append(s.costItems, item)
	return nil
}

func (s *Store) CreateInvoice(_ context.Context, inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = append(s.invoices, inv)
	return nil
}

func containsDate(dates []core.Date, d core.Date) bool {
	if d.IsEmpty() {
		return false
	}
	for _, candidate := range dates {
		if candidate.Compare(d) == 0 {
			return true
		}
	}
	return false
}

// Seed is the JSON document accepted by LoadFile. Enumerations and amounts
// are strings and go through the same parsers as the SQL backends.
type Seed struct {
	Users []struct {
		ID          uuid.UUID `json:"id"`
		Email       string    `json:"email"`
		DisplayName string    `json:"display_name"`
	} `json:"users"`
	Organizations []struct {
		ID      uuid.UUID `json:"id"`
		Name    string    `json:"name"`
		Type    string    `json:"type"`
		OwnerID uuid.UUID `json:"owner_id"`
	} `json:"organizations"`
	Memberships []struct {
		UserID         uuid.UUID `json:"user_id"`
		OrganizationID uuid.UUID `json:"organization_id"`
		Role           string    `json:"role"`
	} `json:"memberships"`
	CostItems []struct {
		ID             uuid.UUID `json:"id"`
		OrganizationID uuid.UUID `json:"organization_id"`
		Name           string    `json:"name"`
		Category       string    `json:"category"`
		Amount         string    `json:"amount"`
		Currency       string    `json:"currency"`
		BillingCycle   string    `json:"billing_cycle"`
		HasBinding     bool      `json:"has_binding"`
		BindingEndsAt  core.Date `json:"binding_ends_at"`
		PaymentMethod  string    `json:"payment_method"`
		Notes          string    `json:"notes"`
		Tags           []string  `json:"tags"`
	} `json:"cost_items"`
	Invoices []struct {
		ID             uuid.UUID `json:"id"`
		OrganizationID uuid.UUID `json:"organization_id"`
		Vendor         string    `json:"vendor"`
		Amount         string    `json:"amount"`
		Currency       string    `json:"currency"`
		DueAt          core.Date `json:"due_at"`
		Status         string    `json:"status"`
		Category       string    `json:"category"`
		Notes          string    `json:"notes"`
	} `json:"invoices"`
}

// LoadFile reads a seed document from path into a new store.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	s := New()
	if err := s.Load(context.Background(), seed); err != nil {
		return nil, err
	}
	return s, nil
}

// Load parses and inserts every row of seed, stopping at the first invalid one.
func (s *Store) Load(ctx context.Context, seed Seed) error {
	for _, u := range seed.Users {
		if err := s.CreateUser(ctx, core.Contact{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName}); err != nil {
			return err
		}
	}
	for _, o := range seed.Organizations {
		typ, err := core.ParseOrganizationType(o.Type)
		if err != nil {
			return fmt.Errorf("organization %s: %w", o.ID, err)
		}
		if err := s.CreateOrganization(ctx, core.Organization{ID: o.ID, Name: o.Name, Type: typ, OwnerID: o.OwnerID}); err != nil {
			return err
		}
	}
	for _, m := range seed.Memberships {
		role, err := core.ParseMemberRole(m.Role)
		if err != nil {
			return fmt.Errorf("membership %s/%s: %w", m.OrganizationID, m.UserID, err)
		}
		if err := s.CreateMembership(ctx, core.Membership{UserID: m.UserID, OrganizationID: m.OrganizationID, Role: role}); err != nil {
			return err
		}
	}
	for _, c := range seed.CostItems {
		amount, err := core.ParseAmount(c.Amount)
		if err != nil {
			return fmt.Errorf("cost item %s: %w", c.ID, err)
		}
		cycle, err := core.ParseBillingCycle(c.BillingCycle)
		if err != nil {
			return fmt.Errorf("cost item %s: %w", c.ID, err)
		}
		item := core.CostItem{
			ID:             c.ID,
			OrganizationID: c.OrganizationID,
			Name:           c.Name,
			Category:       c.Category,
			Amount:         amount,
			Currency:       currencyOrDefault(c.Currency),
			Cycle:          cycle,
			HasBinding:     c.HasBinding,
			BindingEndsAt:  c.BindingEndsAt,
			PaymentMethod:  c.PaymentMethod,
			Notes:          c.Notes,
			Tags:           c.Tags,
		}
		if err := s.CreateCostItem(ctx, item); err != nil {
			return fmt.Errorf("cost item %s: %w", c.ID, err)
		}
	}
	for _, i := range seed.Invoices {
		amount, err := core.ParseAmount(i.Amount)
		if err != nil {
			return fmt.Errorf("invoice %s: %w", i.ID, err)
		}
		status, err := core.ParseInvoiceStatus(i.Status)
		if err != nil {
			return fmt.Errorf("invoice %s: %w", i.ID, err)
		}
		inv := core.Invoice{
			ID:             i.ID,
			OrganizationID: i.OrganizationID,
			Vendor:         i.Vendor,
			Amount:         amount,
			Currency:       currencyOrDefault(i.Currency),
			DueAt:          i.DueAt,
			Status:         status,
			Category:       i.Category,
			Notes:          i.Notes,
		}
		if err := s.CreateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("invoice %s: %w", i.ID, err)
		}
	}
	return nil
}

func currencyOrDefault(c string) string {
	if c == "" {
		return core.DefaultCurrency
	}
	return c
}

var (
	_ ports.ObligationReader = (*Store)(nil)
	_ ports.ReminderSource   = (*Store)(nil)
	_ ports.MembershipReader = (*Store)(nil)
	_ ports.ContactReader    = (*Store)(nil)
	_ ports.AuditWriter      = (*Store)(nil)
)
