//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"costwatch/internal/core"
	"costwatch/internal/ports"
)

func setupPostgres(t *testing.T, ctx context.Context) *Repository {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "costwatch",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	repo, err := NewRepository(ctx, &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/costwatch?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := setupPostgres(t, ctx)

	owner := uuid.New()
	org := uuid.New()
	require.NoError(t, repo.CreateUser(ctx, core.Contact{UserID: owner, Email: "owner@example.com"}))
	require.NoError(t, repo.CreateOrganization(ctx, core.Organization{ID: org, Name: "Acme", Type: core.OrganizationBusiness, OwnerID: owner}))
	require.NoError(t, repo.CreateMembership(ctx, core.Membership{UserID: owner, OrganizationID: org, Role: core.RoleOwner}))

	today := core.NewDate(2024, 1, 1)
	require.NoError(t, repo.CreateCostItem(ctx, core.CostItem{
		ID: uuid.New(), OrganizationID: org, Name: "lease", Amount: decimal.RequireFromString("1200.00"),
		Currency: "EUR", Cycle: core.Yearly, HasBinding: true, BindingEndsAt: today.AddDays(30),
		Tags: []string{"office"},
	}))
	require.NoError(t, repo.CreateInvoice(ctx, core.Invoice{
		ID: uuid.New(), OrganizationID: org, Vendor: "acme", Amount: decimal.RequireFromString("99.90"),
		Currency: "EUR", DueAt: today.AddDays(7), Status: core.InvoiceOpen,
	}))

	items, err := repo.ListCostItems(ctx, org)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, core.Yearly, items[0].Cycle)
	assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, today.AddDays(30), items[0].BindingEndsAt)
	assert.Equal(t, []string{"office"}, items[0].Tags)

	due, err := repo.ListInvoicesDueOn(ctx, []core.Date{today.AddDays(7)})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].Amount.Equal(decimal.RequireFromString("99.90")))

	ending, err := repo.ListBindingsEndingOn(ctx, []core.Date{today.AddDays(30)})
	require.NoError(t, err)
	assert.Len(t, ending, 1)

	members, err := repo.ListMemberships(ctx, org)
	require.NoError(t, err)
	require.Len(t, members, 1)

	c, err := repo.GetContact(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", c.Email)

	_, err = repo.GetContact(ctx, uuid.New())
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, repo.WriteReminderLog(ctx, core.ReminderLog{
		OrganizationID: org,
		ReminderType:   core.ReminderTypeDailyCheck,
		InvoicesCount:  1,
		BindingsCount:  1,
		SentAt:         time.Now(),
	}))
}
