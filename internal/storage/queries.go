package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the raw SQL of the repository. Rows are returned in their
// storage representation; conversion to domain types happens in the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type CostItemRow struct {
	ID             string
	OrganizationID string
	Name           string
	Category       string
	Amount         string
	Currency       string
	BillingCycle   string
	HasBinding     bool
	BindingEndsAt  sql.NullString
	PaymentMethod  string
	Notes          string
	Tags           string
}

type InvoiceRow struct {
	ID             string
	OrganizationID string
	Vendor         string
	Amount         string
	Currency       string
	DueAt          string
	Status         string
	Category       string
	Notes          string
}

type MembershipRow struct {
	UserID         string
	OrganizationID string
	Role           string
}

type UserRow struct {
	ID          string
	Email       string
	DisplayName string
}

type OrganizationRow struct {
	ID      string
	Name    string
	Type    string
	OwnerID string
}

type ReminderLogRow struct {
	ID             int64
	OrganizationID string
	ReminderType   string
	InvoicesCount  int64
	BindingsCount  int64
	SentAt         time.Time
}

const costItemColumns = `id, organization_id, name, category, amount, currency, billing_cycle,
	has_binding, binding_ends_at, payment_method, notes, tags`

const invoiceColumns = `id, organization_id, vendor, amount, currency, due_at, status, category, notes`

func scanCostItems(rows *sql.Rows) ([]CostItemRow, error) {
	defer rows.Close()
	var items []CostItemRow
	for rows.Next() {
		var i CostItemRow
		if err := rows.Scan(
			&i.ID,
			&i.OrganizationID,
			&i.Name,
			&i.Category,
			&i.Amount,
			&i.Currency,
			&i.BillingCycle,
			&i.HasBinding,
			&i.BindingEndsAt,
			&i.PaymentMethod,
			&i.Notes,
			&i.Tags,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanInvoices(rows *sql.Rows) ([]InvoiceRow, error) {
	defer rows.Close()
	var items []InvoiceRow
	for rows.Next() {
		var i InvoiceRow
		if err := rows.Scan(
			&i.ID,
			&i.OrganizationID,
			&i.Vendor,
			&i.Amount,
			&i.Currency,
			&i.DueAt,
			&i.Status,
			&i.Category,
			&i.Notes,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

const listCostItemsByOrg = `SELECT ` + costItemColumns + `
FROM cost_items
WHERE organization_id = ?
ORDER BY created_at, id`

func (q *Queries) ListCostItemsByOrg(ctx context.Context, orgID string) ([]CostItemRow, error) {
	rows, err := q.db.QueryContext(ctx, listCostItemsByOrg, orgID)
	if err != nil {
		return nil, err
	}
	return scanCostItems(rows)
}

const listInvoicesByOrg = `SELECT ` + invoiceColumns + `
FROM invoices
WHERE organization_id = ?
ORDER BY due_at, id`

func (q *Queries) ListInvoicesByOrg(ctx context.Context, orgID string) ([]InvoiceRow, error) {
	rows, err := q.db.QueryContext(ctx, listInvoicesByOrg, orgID)
	if err != nil {
		return nil, err
	}
	return scanInvoices(rows)
}

func (q *Queries) ListOpenInvoicesDueOn(ctx context.Context, dates []string) ([]InvoiceRow, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s
FROM invoices
WHERE status = 'Open' AND due_at IN (%s)
ORDER BY due_at, id`, invoiceColumns, placeholders(len(dates)))

	rows, err := q.db.QueryContext(ctx, query, stringArgs(dates)...)
	if err != nil {
		return nil, err
	}
	return scanInvoices(rows)
}

func (q *Queries) ListBindingsEndingOn(ctx context.Context, dates []string) ([]CostItemRow, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s
FROM cost_items
WHERE has_binding = 1 AND binding_ends_at IN (%s)
ORDER BY binding_ends_at, id`, costItemColumns, placeholders(len(dates)))

	rows, err := q.db.QueryContext(ctx, query, stringArgs(dates)...)
	if err != nil {
		return nil, err
	}
	return scanCostItems(rows)
}

const listMembershipsByOrg = `SELECT user_id, organization_id, role
FROM memberships
WHERE organization_id = ?
ORDER BY created_at, user_id`

func (q *Queries) ListMembershipsByOrg(ctx context.Context, orgID string) ([]MembershipRow, error) {
	rows, err := q.db.QueryContext(ctx, listMembershipsByOrg, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MembershipRow
	for rows.Next() {
		var i MembershipRow
		if err := rows.Scan(&i.UserID, &i.OrganizationID, &i.Role); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getUser = `SELECT id, email, display_name FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (UserRow, error) {
	var u UserRow
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.Email, &u.DisplayName)
	return u, err
}

const getOrganization = `SELECT id, name, type, owner_id FROM organizations WHERE id = ?`

func (q *Queries) GetOrganization(ctx context.Context, id string) (OrganizationRow, error) {
	var o OrganizationRow
	err := q.db.QueryRowContext(ctx, getOrganization, id).Scan(&o.ID, &o.Name, &o.Type, &o.OwnerID)
	return o, err
}

const createUser = `INSERT INTO users (id, email, display_name) VALUES (?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, arg UserRow) error {
	_, err := q.db.ExecContext(ctx, createUser, arg.ID, arg.Email, arg.DisplayName)
	return err
}

const createOrganization = `INSERT INTO organizations (id, name, type, owner_id) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateOrganization(ctx context.Context, arg OrganizationRow) error {
	_, err := q.db.ExecContext(ctx, createOrganization, arg.ID, arg.Name, arg.Type, arg.OwnerID)
	return err
}

const createMembership = `INSERT INTO memberships (user_id, organization_id, role) VALUES (?, ?, ?)`

func (q *Queries) CreateMembership(ctx context.Context, arg MembershipRow) error {
	_, err := q.db.ExecContext(ctx, createMembership, arg.UserID, arg.OrganizationID, arg.Role)
	return err
}

const createCostItem = `INSERT INTO cost_items (` + costItemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCostItem(ctx context.Context, arg CostItemRow) error {
	_, err := q.db.ExecContext(ctx, createCostItem,
		arg.ID,
		arg.OrganizationID,
		arg.Name,
		arg.Category,
		arg.Amount,
		arg.Currency,
		arg.BillingCycle,
		arg.HasBinding,
		arg.BindingEndsAt,
		arg.PaymentMethod,
		arg.Notes,
		arg.Tags,
	)
	return err
}

const createInvoice = `INSERT INTO invoices (` + invoiceColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateInvoice(ctx context.Context, arg InvoiceRow) error {
	_, err := q.db.ExecContext(ctx, createInvoice,
		arg.ID,
		arg.OrganizationID,
		arg.Vendor,
		arg.Amount,
		arg.Currency,
		arg.DueAt,
		arg.Status,
		arg.Category,
		arg.Notes,
	)
	return err
}

const createReminderLog = `INSERT INTO reminder_logs (organization_id, reminder_type, invoices_count, bindings_count, sent_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateReminderLog(ctx context.Context, arg ReminderLogRow) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createReminderLog,
		arg.OrganizationID,
		arg.ReminderType,
		arg.InvoicesCount,
		arg.BindingsCount,
		arg.SentAt,
	).Scan(&id)
	return id, err
}

const listReminderLogsByOrg = `SELECT id, organization_id, reminder_type, invoices_count, bindings_count, sent_at
FROM reminder_logs
WHERE organization_id = ?
ORDER BY sent_at, id`

func (q *Queries) ListReminderLogsByOrg(ctx context.Context, orgID string) ([]ReminderLogRow, error) {
	rows, err := q.db.QueryContext(ctx, listReminderLogsByOrg, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReminderLogRow
	for rows.Next() {
		var i ReminderLogRow
		if err := rows.Scan(&i.ID, &i.OrganizationID, &i.ReminderType, &i.InvoicesCount, &i.BindingsCount, &i.SentAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
