package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costwatch/internal/core"
	"costwatch/internal/ports"
	"costwatch/internal/services"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "costwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// seedOrg creates an owner and an organization and returns both ids.
func seedOrg(t *testing.T, repo *SQLiteRepository) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	owner := uuid.New()
	org := uuid.New()
	require.NoError(t, repo.CreateUser(ctx, core.Contact{UserID: owner, Email: "owner@example.com", DisplayName: "Owner"}))
	require.NoError(t, repo.CreateOrganization(ctx, core.Organization{ID: org, Name: "Acme", Type: core.OrganizationBusiness, OwnerID: owner}))
	require.NoError(t, repo.CreateMembership(ctx, core.Membership{UserID: owner, OrganizationID: org, Role: core.RoleOwner}))
	return org, owner
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costwatch.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}

func TestCostItemRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org, _ := seedOrg(t, repo)

	item := core.CostItem{
		ID:             uuid.New(),
		OrganizationID: org,
		Name:           "Office lease",
		Category:       "rent",
		Amount:         decimal.RequireFromString("1499.99"),
		Currency:       "EUR",
		Cycle:          core.Yearly,
		HasBinding:     true,
		BindingEndsAt:  core.NewDate(2025, 6, 30),
		PaymentMethod:  "sepa",
		Tags:           []string{"office", "fixed"},
	}
	require.NoError(t, repo.CreateCostItem(ctx, item))

	got, err := repo.ListCostItems(ctx, org)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, item.ID, got[0].ID)
	assert.True(t, item.Amount.Equal(got[0].Amount))
	assert.Equal(t, core.Yearly, got[0].Cycle)
	assert.True(t, got[0].HasBinding)
	assert.Equal(t, item.BindingEndsAt, got[0].BindingEndsAt)
	assert.Equal(t, []string{"office", "fixed"}, got[0].Tags)

	other, err := repo.ListCostItems(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCreateCostItemValidates(t *testing.T) {
	repo := newTestRepo(t)
	org, _ := seedOrg(t, repo)

	err := repo.CreateCostItem(context.Background(), core.CostItem{
		ID:             uuid.New(),
		OrganizationID: org,
		Name:           "Gym",
		Amount:         decimal.NewFromInt(30),
		Currency:       "EUR",
		Cycle:          core.Monthly,
		HasBinding:     true,
	})
	assert.ErrorIs(t, err, core.ErrMissingBindingEnd)
}

func TestSchemaRejectsUnknownEnums(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org, _ := seedOrg(t, repo)

	err := repo.queries.CreateCostItem(ctx, CostItemRow{
		ID:             uuid.NewString(),
		OrganizationID: org.String(),
		Name:           "Weekly thing",
		Amount:         "10",
		Currency:       "EUR",
		BillingCycle:   "Weekly",
		Tags:           "[]",
	})
	assert.Error(t, err)

	err = repo.queries.CreateInvoice(ctx, InvoiceRow{
		ID:             uuid.NewString(),
		OrganizationID: org.String(),
		Vendor:         "ACME",
		Amount:         "10",
		Currency:       "EUR",
		DueAt:          "2024-01-08",
		Status:         "open",
	})
	assert.Error(t, err)
}

func TestUnreadableRowFailsOrganizationRead(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org, _ := seedOrg(t, repo)

	require.NoError(t, repo.queries.CreateCostItem(ctx, CostItemRow{
		ID:             uuid.NewString(),
		OrganizationID: org.String(),
		Name:           "Broken",
		Amount:         "ten",
		Currency:       "EUR",
		BillingCycle:   "Monthly",
		Tags:           "[]",
	}))

	_, err := repo.ListCostItems(ctx, org)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestGlobalReadsSkipUnreadableRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	broken, _ := seedOrg(t, repo)
	healthy, _ := seedOrg(t, repo)
	end := core.NewDate(2024, 1, 31)
	due := core.NewDate(2024, 1, 8)

	require.NoError(t, repo.queries.CreateCostItem(ctx, CostItemRow{
		ID:             uuid.NewString(),
		OrganizationID: broken.String(),
		Name:           "Broken lease",
		Amount:         "ten",
		Currency:       "EUR",
		BillingCycle:   "Monthly",
		HasBinding:     true,
		BindingEndsAt:  sql.NullString{String: end.String(), Valid: true},
		Tags:           "[]",
	}))
	require.NoError(t, repo.queries.CreateInvoice(ctx, InvoiceRow{
		ID:             uuid.NewString(),
		OrganizationID: broken.String(),
		Vendor:         "Broken vendor",
		Amount:         "ten",
		Currency:       "EUR",
		DueAt:          due.String(),
		Status:         "Open",
	}))
	require.NoError(t, repo.CreateCostItem(ctx, core.CostItem{
		ID: uuid.New(), OrganizationID: healthy, Name: "lease", Amount: decimal.NewFromInt(10),
		Currency: "EUR", Cycle: core.Monthly, HasBinding: true, BindingEndsAt: end,
	}))
	require.NoError(t, repo.CreateInvoice(ctx, core.Invoice{
		ID: uuid.New(), OrganizationID: healthy, Vendor: "ACME", Amount: decimal.NewFromInt(99),
		Currency: "EUR", DueAt: due, Status: core.InvoiceOpen,
	}))

	bindings, err := repo.ListBindingsEndingOn(ctx, []core.Date{end})
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, healthy, bindings[0].OrganizationID)

	invoices, err := repo.ListInvoicesDueOn(ctx, []core.Date{due})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, healthy, invoices[0].OrganizationID)
}

// recordingNotifier collects delivered batches.
type recordingNotifier struct {
	mu      sync.Mutex
	batches []core.NotificationBatch
}

func (n *recordingNotifier) Notify(_ context.Context, batch core.NotificationBatch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, batch)
	return nil
}

func TestReminderRunSurvivesUnreadableRowInOtherOrganization(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	broken, _ := seedOrg(t, repo)
	healthy, _ := seedOrg(t, repo)
	now := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	today := core.DateOf(now)

	require.NoError(t, repo.queries.CreateCostItem(ctx, CostItemRow{
		ID:             uuid.NewString(),
		OrganizationID: broken.String(),
		Name:           "Broken lease",
		Amount:         "ten",
		Currency:       "EUR",
		BillingCycle:   "Monthly",
		HasBinding:     true,
		BindingEndsAt:  sql.NullString{String: today.AddDays(30).String(), Valid: true},
		Tags:           "[]",
	}))
	require.NoError(t, repo.CreateInvoice(ctx, core.Invoice{
		ID: uuid.New(), OrganizationID: healthy, Vendor: "ACME", Amount: decimal.NewFromInt(99),
		Currency: "EUR", DueAt: today.AddDays(7), Status: core.InvoiceOpen,
	}))

	notifier := &recordingNotifier{}
	dispatcher := services.NewReminderDispatcher(services.DispatcherDeps{
		Source:   repo,
		Members:  repo,
		Contacts: repo,
		Audit:    repo,
		Notifier: notifier,
	}, services.DispatcherConfig{})

	res := dispatcher.RunAt(ctx, now)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.OrganizationsProcessed)
	assert.Equal(t, 1, res.RemindersSent)
	require.Len(t, notifier.batches, 1)
	assert.Equal(t, healthy, notifier.batches[0].OrganizationID)

	logs, err := repo.ListReminderLogs(ctx, healthy)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].InvoicesCount)

	logs, err = repo.ListReminderLogs(ctx, broken)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestInvoiceQueries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org, _ := seedOrg(t, repo)
	today := core.NewDate(2024, 1, 1)

	mk := func(vendor string, days int, status core.InvoiceStatus) core.Invoice {
		inv := core.Invoice{
			ID:             uuid.New(),
			OrganizationID: org,
			Vendor:         vendor,
			Amount:         decimal.NewFromInt(100),
			Currency:       "EUR",
			DueAt:          today.AddDays(days),
			Status:         status,
		}
		require.NoError(t, repo.CreateInvoice(ctx, inv))
		return inv
	}
	mk("seven", 7, core.InvoiceOpen)
	mk("three paid", 3, core.InvoicePaid)
	mk("eight", 8, core.InvoiceOpen)
	mk("one", 1, core.InvoiceOpen)

	all, err := repo.ListInvoices(ctx, org)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	due, err := repo.ListInvoicesDueOn(ctx, []core.Date{today.AddDays(7), today.AddDays(3), today.AddDays(1)})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "one", due[0].Vendor)
	assert.Equal(t, "seven", due[1].Vendor)

	none, err := repo.ListInvoicesDueOn(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBindingsEndingOn(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org, _ := seedOrg(t, repo)
	end := core.NewDate(2024, 1, 31)

	require.NoError(t, repo.CreateCostItem(ctx, core.CostItem{
		ID: uuid.New(), OrganizationID: org, Name: "lease", Amount: decimal.NewFromInt(10),
		Currency: "EUR", Cycle: core.Monthly, HasBinding: true, BindingEndsAt: end,
	}))
	require.NoError(t, repo.CreateCostItem(ctx, core.CostItem{
		ID: uuid.New(), OrganizationID: org, Name: "free", Amount: decimal.NewFromInt(10),
		Currency: "EUR", Cycle: core.Monthly,
	}))

	got, err := repo.ListBindingsEndingOn(ctx, []core.Date{end})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lease", got[0].Name)
}

func TestMembershipsAndContacts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org, owner := seedOrg(t, repo)

	members, err := repo.ListMemberships(ctx, org)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, owner, members[0].UserID)
	assert.Equal(t, core.RoleOwner, members[0].Role)

	c, err := repo.GetContact(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", c.Email)

	_, err = repo.GetContact(ctx, uuid.New())
	assert.ErrorIs(t, err, ports.ErrNotFound)

	o, err := repo.GetOrganization(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, core.OrganizationBusiness, o.Type)

	_, err = repo.GetOrganization(ctx, uuid.New())
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestReminderLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org, _ := seedOrg(t, repo)
	sentAt := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	require.NoError(t, repo.WriteReminderLog(ctx, core.ReminderLog{
		OrganizationID: org,
		ReminderType:   core.ReminderTypeDailyCheck,
		InvoicesCount:  2,
		BindingsCount:  1,
		SentAt:         sentAt,
	}))

	logs, err := repo.ListReminderLogs(ctx, org)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, core.ReminderTypeDailyCheck, logs[0].ReminderType)
	assert.Equal(t, 2, logs[0].InvoicesCount)
	assert.Equal(t, 1, logs[0].BindingsCount)
	assert.True(t, sentAt.Equal(logs[0].SentAt), "sent_at = %s", logs[0].SentAt)
}

func TestRowConversionErrors(t *testing.T) {
	_, err := InvoiceFromRow(InvoiceRow{
		ID: uuid.NewString(), OrganizationID: uuid.NewString(),
		Amount: "10", DueAt: "2024-01-01", Status: "Overdue",
	})
	assert.ErrorIs(t, err, core.ErrInvalidInvoiceStatus)

	_, err = InvoiceFromRow(InvoiceRow{
		ID: uuid.NewString(), OrganizationID: uuid.NewString(),
		Amount: "ten", DueAt: "2024-01-01", Status: "Open",
	})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	item, err := CostItemFromRow(CostItemRow{
		ID: uuid.NewString(), OrganizationID: uuid.NewString(),
		Amount: "5", BillingCycle: "monthly", BindingEndsAt: sql.NullString{},
	})
	require.NoError(t, err)
	assert.Equal(t, core.DefaultCurrency, item.Currency)
	assert.True(t, item.BindingEndsAt.IsEmpty())
}
