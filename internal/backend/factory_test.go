package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costwatch/internal/config"
	"costwatch/internal/core"
)

func quietFactory() Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []string{"memory", "sqlite", "postgres"}, GetBackendTypeStrings())
	assert.False(t, BackendType("sheets").IsValid())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	require.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{DataBackend: "postgres", DatabaseURL: "postgres://localhost/db"})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://localhost/db", cfg.DatabaseURL)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: PostgresBackend}.Validate())
	assert.Error(t, Config{Type: "nope"}.Validate())
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := quietFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	defer res.Close()

	require.NoError(t, res.Store.Ping(context.Background()))
	items, err := res.Store.ListCostItems(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateMemoryBackendFromSeed(t *testing.T) {
	org := uuid.New()
	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{
		"organizations": [{"id": "` + org.String() + `", "name": "Home", "type": "personal"}],
		"invoices": [{"id": "` + uuid.NewString() + `", "organization_id": "` + org.String() + `",
			"vendor": "ACME", "amount": "40.00", "currency": "EUR", "due_at": "2024-01-08", "status": "open"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	res, err := quietFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedFile: path})
	require.NoError(t, err)

	invoices, err := res.Store.ListInvoicesDueOn(context.Background(), []core.Date{core.NewDate(2024, 1, 8)})
	require.NoError(t, err)
	assert.Len(t, invoices, 1)

	_, err = quietFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedFile: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestCreateSQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "costwatch.db")

	res, err := quietFactory().CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, res.Store.Ping(context.Background()))
	require.NoError(t, res.Close())
}
