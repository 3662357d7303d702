// Package postgres implements the obligation ports on PostgreSQL with pgx.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"costwatch/internal/core"
	"costwatch/internal/ports"
)

// Repository implements the read and audit ports using a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects, migrates and returns a repository.
func NewRepository(ctx context.Context, cfg *PoolConfig) (*Repository, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

// NewRepositoryFromPool wraps an existing pool. The pool stays owned by the caller.
func NewRepositoryFromPool(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const costItemColumns = `id, organization_id, name, category, amount::text, currency, billing_cycle,
	has_binding, binding_ends_at, payment_method, notes, tags`

const invoiceColumns = `id, organization_id, vendor, amount::text, currency, due_at, status, category, notes`

func (r *Repository) ListCostItems(ctx context.Context, orgID uuid.UUID) ([]core.CostItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+costItemColumns+`
		FROM cost_items
		WHERE organization_id = $1
		ORDER BY created_at, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list cost items: %w", mapPostgresError(err))
	}
	return collectCostItems(ctx, rows, false)
}

func (r *Repository) ListInvoices(ctx context.Context, orgID uuid.UUID) ([]core.Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE organization_id = $1
		ORDER BY due_at, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", mapPostgresError(err))
	}
	return collectInvoices(ctx, rows, false)
}

func (r *Repository) ListInvoicesDueOn(ctx context.Context, dates []core.Date) ([]core.Invoice, error) {
	if len(dates) == 0 {
		return []core.Invoice{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE status = 'Open' AND due_at = ANY($1::date[])
		ORDER BY due_at, id
	`, dateTimes(dates))
	if err != nil {
		return nil, fmt.Errorf("list invoices due: %w", mapPostgresError(err))
	}
	return collectInvoices(ctx, rows, true)
}

func (r *Repository) ListBindingsEndingOn(ctx context.Context, dates []core.Date) ([]core.CostItem, error) {
	if len(dates) == 0 {
		return []core.CostItem{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+costItemColumns+`
		FROM cost_items
		WHERE has_binding AND binding_ends_at = ANY($1::date[])
		ORDER BY binding_ends_at, id
	`, dateTimes(dates))
	if err != nil {
		return nil, fmt.Errorf("list bindings ending: %w", mapPostgresError(err))
	}
	return collectCostItems(ctx, rows, true)
}

func (r *Repository) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]core.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, organization_id, role
		FROM memberships
		WHERE organization_id = $1
		ORDER BY created_at, user_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", mapPostgresError(err))
	}
	defer rows.Close()

	out := make([]core.Membership, 0)
	for rows.Next() {
		var (
			m    core.Membership
			role string
		)
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		if m.Role, err = core.ParseMemberRole(role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", mapPostgresError(err))
	}
	return out, nil
}

func (r *Repository) GetContact(ctx context.Context, userID uuid.UUID) (core.Contact, error) {
	c := core.Contact{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT email, display_name FROM users WHERE id = $1
	`, userID).Scan(&c.Email, &c.DisplayName)
	if err != nil {
		return core.Contact{}, fmt.Errorf("get user %s: %w", userID, mapPostgresError(err))
	}
	return c, nil
}

// WriteReminderLog inserts one audit row in a single statement.
func (r *Repository) WriteReminderLog(ctx context.Context, entry core.ReminderLog) error {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reminder_logs (
			organization_id, reminder_type, invoices_count, bindings_count, sent_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
		RETURNING id
	`,
		entry.OrganizationID,
		entry.ReminderType,
		entry.InvoicesCount,
		entry.BindingsCount,
		entry.SentAt.UTC(),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("write reminder log: %w", mapPostgresError(err))
	}

	slog.DebugContext(ctx, "Reminder log saved to PostgreSQL",
		"id", id,
		"organization_id", entry.OrganizationID)
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, c core.Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, display_name) VALUES ($1, $2, $3)
	`, c.UserID, c.Email, c.DisplayName)
	if err != nil {
		return fmt.Errorf("create user: %w", mapPostgresError(err))
	}
	return nil
}

func (r *Repository) CreateOrganization(ctx context.Context, o core.Organization) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, type, owner_id) VALUES ($1, $2, $3, $4)
	`, o.ID, o.Name, o.Type.String(), o.OwnerID)
	if err != nil {
		return fmt.Errorf("create organization: %w", mapPostgresError(err))
	}
	return nil
}

func (r *Repository) CreateMembership(ctx context.Context, m core.Membership) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO memberships (user_id, organization_id, role) VALUES ($1, $2, $3)
	`, m.UserID, m.OrganizationID, m.Role.String())
	if err != nil {
		return fmt.Errorf("create membership: %w", mapPostgresError(err))
	}
	return nil
}

func (r *Repository) CreateCostItem(ctx context.Context, item core.CostItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	var end *time.Time
	if !item.BindingEndsAt.IsEmpty() {
		t := item.BindingEndsAt.Time
		end = &t
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cost_items (
			id, organization_id, name, category, amount, currency, billing_cycle,
			has_binding, binding_ends_at, payment_method, notes, tags
		) VALUES (
			$1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12
		)
	`,
		item.ID,
		item.OrganizationID,
		item.Name,
		item.Category,
		item.Amount.String(),
		item.Currency,
		item.Cycle.String(),
		item.HasBinding,
		end,
		item.PaymentMethod,
		item.Notes,
		tags,
	)
	if err != nil {
		return fmt.Errorf("create cost item: %w", mapPostgresError(err))
	}
	return nil
}

func (r *Repository) CreateInvoice(ctx context.Context, inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (
			id, organization_id, vendor, amount, currency, due_at, status, category, notes
		) VALUES (
			$1, $2, $3, $4::numeric, $5, $6, $7, $8, $9
		)
	`,
		inv.ID,
		inv.OrganizationID,
		inv.Vendor,
		inv.Amount.String(),
		inv.Currency,
		inv.DueAt.Time,
		inv.Status.String(),
		inv.Category,
		inv.Notes,
	)
	if err != nil {
		return fmt.Errorf("create invoice: %w", mapPostgresError(err))
	}
	return nil
}

// collectCostItems scans rows into cost items. With skipInvalid a row whose
// values do not parse is logged and dropped instead of failing the read.
func collectCostItems(ctx context.Context, rows pgx.Rows, skipInvalid bool) ([]core.CostItem, error) {
	defer rows.Close()
	out := make([]core.CostItem, 0)
	for rows.Next() {
		var (
			item   core.CostItem
			amount string
			cycle  string
			end    *time.Time
		)
		if err := rows.Scan(
			&item.ID,
			&item.OrganizationID,
			&item.Name,
			&item.Category,
			&amount,
			&item.Currency,
			&cycle,
			&item.HasBinding,
			&end,
			&item.PaymentMethod,
			&item.Notes,
			&item.Tags,
		); err != nil {
			return nil, fmt.Errorf("scan cost item: %w", err)
		}

		if err := parseCostItem(&item, amount, cycle); err != nil {
			if !skipInvalid {
				return nil, err
			}
			slog.WarnContext(ctx, "Skipping unreadable cost item",
				"cost_item_id", item.ID,
				"organization_id", item.OrganizationID,
				"error", err)
			continue
		}
		if end != nil {
			item.BindingEndsAt = core.DateOf(*end)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost items: %w", mapPostgresError(err))
	}
	return out, nil
}

func collectInvoices(ctx context.Context, rows pgx.Rows, skipInvalid bool) ([]core.Invoice, error) {
	defer rows.Close()
	out := make([]core.Invoice, 0)
	for rows.Next() {
		var (
			inv    core.Invoice
			amount string
			status string
			due    time.Time
		)
		if err := rows.Scan(
			&inv.ID,
			&inv.OrganizationID,
			&inv.Vendor,
			&amount,
			&inv.Currency,
			&due,
			&status,
			&inv.Category,
			&inv.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}

		if err := parseInvoice(&inv, amount, status); err != nil {
			if !skipInvalid {
				return nil, err
			}
			slog.WarnContext(ctx, "Skipping unreadable invoice",
				"invoice_id", inv.ID,
				"organization_id", inv.OrganizationID,
				"error", err)
			continue
		}
		inv.DueAt = core.DateOf(due)
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", mapPostgresError(err))
	}
	return out, nil
}

func parseCostItem(item *core.CostItem, amount, cycle string) error {
	var err error
	if item.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("cost item %s amount: %w", item.ID, core.ErrInvalidAmount)
	}
	if item.Cycle, err = core.ParseBillingCycle(cycle); err != nil {
		return fmt.Errorf("cost item %s: %w", item.ID, err)
	}
	return nil
}

func parseInvoice(inv *core.Invoice, amount, status string) error {
	var err error
	if inv.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("invoice %s amount: %w", inv.ID, core.ErrInvalidAmount)
	}
	if inv.Status, err = core.ParseInvoiceStatus(status); err != nil {
		return fmt.Errorf("invoice %s: %w", inv.ID, err)
	}
	return nil
}

func dateTimes(dates []core.Date) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Time)
	}
	return out
}

var (
	_ ports.ObligationReader = (*Repository)(nil)
	_ ports.ReminderSource   = (*Repository)(nil)
	_ ports.MembershipReader = (*Repository)(nil)
	_ ports.ContactReader    = (*Repository)(nil)
	_ ports.AuditWriter      = (*Repository)(nil)
)
