package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costwatch/internal/core"
	"costwatch/internal/ports"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListCostItems implements ports.ObligationReader
func (r *SQLiteRepository) ListCostItems(ctx context.Context, orgID uuid.UUID) ([]core.CostItem, error) {
	rows, err := r.queries.ListCostItemsByOrg(ctx, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list cost items: %w", err)
	}
	return costItemsFromRows(rows)
}

// ListInvoices implements ports.ObligationReader
func (r *SQLiteRepository) ListInvoices(ctx context.Context, orgID uuid.UUID) ([]core.Invoice, error) {
	rows, err := r.queries.ListInvoicesByOrg(ctx, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoicesFromRows(rows)
}

// ListInvoicesDueOn implements ports.ReminderSource
func (r *SQLiteRepository) ListInvoicesDueOn(ctx context.Context, dates []core.Date) ([]core.Invoice, error) {
	rows, err := r.queries.ListOpenInvoicesDueOn(ctx, dateStrings(dates))
	if err != nil {
		return nil, fmt.Errorf("list invoices due: %w", err)
	}
	return validInvoices(ctx, rows), nil
}

// ListBindingsEndingOn implements ports.ReminderSource
func (r *SQLiteRepository) ListBindingsEndingOn(ctx context.Context, dates []core.Date) ([]core.CostItem, error) {
	rows, err := r.queries.ListBindingsEndingOn(ctx, dateStrings(dates))
	if err != nil {
		return nil, fmt.Errorf("list bindings ending: %w", err)
	}
	return validCostItems(ctx, rows), nil
}

// ListMemberships implements ports.MembershipReader
func (r *SQLiteRepository) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]core.Membership, error) {
	rows, err := r.queries.ListMembershipsByOrg(ctx, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	out := make([]core.Membership, 0, len(rows))
	for _, row := range rows {
		m, err := MembershipFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// GetContact implements ports.ContactReader
func (r *SQLiteRepository) GetContact(ctx context.Context, userID uuid.UUID) (core.Contact, error) {
	row, err := r.queries.GetUser(ctx, userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return core.Contact{}, fmt.Errorf("user %s: %w", userID, ports.ErrNotFound)
	}
	if err != nil {
		return core.Contact{}, fmt.Errorf("get user: %w", err)
	}
	return core.Contact{UserID: userID, Email: row.Email, DisplayName: row.DisplayName}, nil
}

// GetOrganization returns one organization or ports.ErrNotFound.
func (r *SQLiteRepository) GetOrganization(ctx context.Context, id uuid.UUID) (core.Organization, error) {
	row, err := r.queries.GetOrganization(ctx, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return core.Organization{}, fmt.Errorf("organization %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return core.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	return OrganizationFromRow(row)
}

// WriteReminderLog implements ports.AuditWriter. The insert is a single
// statement, so the row is stored whole or not at all.
func (r *SQLiteRepository) WriteReminderLog(ctx context.Context, entry core.ReminderLog) error {
	id, err := r.queries.CreateReminderLog(ctx, ReminderLogRow{
		OrganizationID: entry.OrganizationID.String(),
		ReminderType:   entry.ReminderType,
		InvoicesCount:  int64(entry.InvoicesCount),
		BindingsCount:  int64(entry.BindingsCount),
		SentAt:         entry.SentAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("write reminder log: %w", err)
	}

	slog.DebugContext(ctx, "Reminder log saved to SQLite",
		"id", id,
		"organization_id", entry.OrganizationID,
		"invoices_count", entry.InvoicesCount,
		"bindings_count", entry.BindingsCount)
	return nil
}

// ListReminderLogs returns the audit rows of one organization, oldest first.
func (r *SQLiteRepository) ListReminderLogs(ctx context.Context, orgID uuid.UUID) ([]core.ReminderLog, error) {
	rows, err := r.queries.ListReminderLogsByOrg(ctx, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list reminder logs: %w", err)
	}
	out := make([]core.ReminderLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.ReminderLog{
			OrganizationID: orgID,
			ReminderType:   row.ReminderType,
			InvoicesCount:  int(row.InvoicesCount),
			BindingsCount:  int(row.BindingsCount),
			SentAt:         row.SentAt.UTC(),
		})
	}
	return out, nil
}

// CreateUser stores a user with its contact address.
func (r *SQLiteRepository) CreateUser(ctx context.Context, c core.Contact) error {
	if err := r.queries.CreateUser(ctx, UserRow{
		ID:          c.UserID.String(),
		Email:       c.Email,
		DisplayName: c.DisplayName,
	}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateOrganization(ctx context.Context, o core.Organization) error {
	if err := r.queries.CreateOrganization(ctx, OrganizationRow{
		ID:      o.ID.String(),
		Name:    o.Name,
		Type:    o.Type.String(),
		OwnerID: o.OwnerID.String(),
	}); err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateMembership(ctx context.Context, m core.Membership) error {
	if err := r.queries.CreateMembership(ctx, MembershipRow{
		UserID:         m.UserID.String(),
		OrganizationID: m.OrganizationID.String(),
		Role:           m.Role.String(),
	}); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// CreateCostItem validates and stores a cost item.
func (r *SQLiteRepository) CreateCostItem(ctx context.Context, item core.CostItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	row, err := CostItemToRow(item)
	if err != nil {
		return err
	}
	if err := r.queries.CreateCostItem(ctx, row); err != nil {
		return fmt.Errorf("create cost item: %w", err)
	}
	return nil
}

// CreateInvoice validates and stores an invoice.
func (r *SQLiteRepository) CreateInvoice(ctx context.Context, inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	if err := r.queries.CreateInvoice(ctx, InvoiceToRow(inv)); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func dateStrings(dates []core.Date) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func costItemsFromRows(rows []CostItemRow) ([]core.CostItem, error) {
	out := make([]core.CostItem, 0, len(rows))
	for _, row := range rows {
		item, err := CostItemFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// validCostItems converts rows for cross-organization reads. A row that does
// not parse is logged and dropped so one organization's data cannot block the
// others.
func validCostItems(ctx context.Context, rows []CostItemRow) []core.CostItem {
	out := make([]core.CostItem, 0, len(rows))
	for _, row := range rows {
		item, err := CostItemFromRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable cost item",
				"cost_item_id", row.ID,
				"organization_id", row.OrganizationID,
				"error", err)
			continue
		}
		out = append(out, item)
	}
	return out
}

func validInvoices(ctx context.Context, rows []InvoiceRow) []core.Invoice {
	out := make([]core.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := InvoiceFromRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable invoice",
				"invoice_id", row.ID,
				"organization_id", row.OrganizationID,
				"error", err)
			continue
		}
		out = append(out, inv)
	}
	return out
}

func invoicesFromRows(rows []InvoiceRow) ([]core.Invoice, error) {
	out := make([]core.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := InvoiceFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// CostItemFromRow parses a stored cost item. Unknown billing cycles are
// rejected here so they never reach the normalizer.
func CostItemFromRow(row CostItemRow) (core.CostItem, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.CostItem{}, fmt.Errorf("cost item id %q: %w", row.ID, err)
	}
	orgID, err := uuid.Parse(row.OrganizationID)
	if err != nil {
		return core.CostItem{}, fmt.Errorf("cost item %s organization: %w", row.ID, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.CostItem{}, fmt.Errorf("cost item %s amount: %w", row.ID, core.ErrInvalidAmount)
	}
	cycle, err := core.ParseBillingCycle(row.BillingCycle)
	if err != nil {
		return core.CostItem{}, fmt.Errorf("cost item %s: %w", row.ID, err)
	}

	item := core.CostItem{
		ID:             id,
		OrganizationID: orgID,
		Name:           row.Name,
		Category:       row.Category,
		Amount:         amount,
		Currency:       currencyOrDefault(row.Currency),
		Cycle:          cycle,
		HasBinding:     row.HasBinding,
		PaymentMethod:  row.PaymentMethod,
		Notes:          row.Notes,
		Tags:           []string{},
	}
	if row.BindingEndsAt.Valid && row.BindingEndsAt.String != "" {
		end, err := core.ParseDate(row.BindingEndsAt.String)
		if err != nil {
			return core.CostItem{}, fmt.Errorf("cost item %s binding end: %w", row.ID, err)
		}
		item.BindingEndsAt = end
	}
	if row.Tags != "" {
		if err := json.Unmarshal([]byte(row.Tags), &item.Tags); err != nil {
			return core.CostItem{}, fmt.Errorf("cost item %s tags: %w", row.ID, err)
		}
	}
	return item, nil
}

func CostItemToRow(item core.CostItem) (CostItemRow, error) {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return CostItemRow{}, fmt.Errorf("encode tags: %w", err)
	}
	row := CostItemRow{
		ID:             item.ID.String(),
		OrganizationID: item.OrganizationID.String(),
		Name:           item.Name,
		Category:       item.Category,
		Amount:         item.Amount.String(),
		Currency:       currencyOrDefault(item.Currency),
		BillingCycle:   item.Cycle.String(),
		HasBinding:     item.HasBinding,
		PaymentMethod:  item.PaymentMethod,
		Notes:          item.Notes,
		Tags:           string(encoded),
	}
	if !item.BindingEndsAt.IsEmpty() {
		row.BindingEndsAt = sql.NullString{String: item.BindingEndsAt.String(), Valid: true}
	}
	return row, nil
}

// InvoiceFromRow parses a stored invoice, rejecting unknown statuses.
func InvoiceFromRow(row InvoiceRow) (core.Invoice, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invoice id %q: %w", row.ID, err)
	}
	orgID, err := uuid.Parse(row.OrganizationID)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s organization: %w", row.ID, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s amount: %w", row.ID, core.ErrInvalidAmount)
	}
	status, err := core.ParseInvoiceStatus(row.Status)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s: %w", row.ID, err)
	}
	due, err := core.ParseDate(row.DueAt)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s due date: %w", row.ID, err)
	}
	return core.Invoice{
		ID:             id,
		OrganizationID: orgID,
		Vendor:         row.Vendor,
		Amount:         amount,
		Currency:       currencyOrDefault(row.Currency),
		DueAt:          due,
		Status:         status,
		Category:       row.Category,
		Notes:          row.Notes,
	}, nil
}

func InvoiceToRow(inv core.Invoice) InvoiceRow {
	return InvoiceRow{
		ID:             inv.ID.String(),
		OrganizationID: inv.OrganizationID.String(),
		Vendor:         inv.Vendor,
		Amount:         inv.Amount.String(),
		Currency:       currencyOrDefault(inv.Currency),
		DueAt:          inv.DueAt.String(),
		Status:         inv.Status.String(),
		Category:       inv.Category,
		Notes:          inv.Notes,
	}
}

func MembershipFromRow(row MembershipRow) (core.Membership, error) {
	userID, err := uuid.Parse(row.UserID)
	if err != nil {
		return core.Membership{}, fmt.Errorf("membership user %q: %w", row.UserID, err)
	}
	orgID, err := uuid.Parse(row.OrganizationID)
	if err != nil {
		return core.Membership{}, fmt.Errorf("membership organization %q: %w", row.OrganizationID, err)
	}
	role, err := core.ParseMemberRole(row.Role)
	if err != nil {
		return core.Membership{}, err
	}
	return core.Membership{UserID: userID, OrganizationID: orgID, Role: role}, nil
}

func OrganizationFromRow(row OrganizationRow) (core.Organization, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Organization{}, fmt.Errorf("organization id %q: %w", row.ID, err)
	}
	owner, err := uuid.Parse(row.OwnerID)
	if err != nil {
		return core.Organization{}, fmt.Errorf("organization %s owner: %w", row.ID, err)
	}
	typ, err := core.ParseOrganizationType(row.Type)
	if err != nil {
		return core.Organization{}, err
	}
	return core.Organization{ID: id, Name: row.Name, Type: typ, OwnerID: owner}, nil
}

func currencyOrDefault(c string) string {
	if c == "" {
		return core.DefaultCurrency
	}
	return c
}

var (
	_ ports.ObligationReader = (*SQLiteRepository)(nil)
	_ ports.ReminderSource   = (*SQLiteRepository)(nil)
	_ ports.MembershipReader = (*SQLiteRepository)(nil)
	_ ports.ContactReader    = (*SQLiteRepository)(nil)
	_ ports.AuditWriter      = (*SQLiteRepository)(nil)
)
