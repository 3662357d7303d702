package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costwatch/internal/ports"
)

func TestPoolConfigDefaults(t *testing.T) {
	cfg := &PoolConfig{ConnString: "postgres://localhost/costwatch"}
	cfg.ApplyDefaults()

	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnIdleTime)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	require.NoError(t, cfg.Validate())
}

func TestPoolConfigValidate(t *testing.T) {
	assert.Error(t, (&PoolConfig{}).Validate())
	assert.Error(t, (&PoolConfig{ConnString: "postgres://x", MinConns: 5, MaxConns: 2}).Validate())
}

func TestNewPoolRejectsBadInput(t *testing.T) {
	_, err := NewPool(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewPool(context.Background(), &PoolConfig{})
	assert.Error(t, err)
}

func TestMapPostgresError(t *testing.T) {
	assert.NoError(t, mapPostgresError(nil))
	assert.ErrorIs(t, mapPostgresError(pgx.ErrNoRows), ports.ErrNotFound)
	assert.ErrorIs(t, mapPostgresError(fmt.Errorf("wrapped: %w", pgx.ErrNoRows)), ports.ErrNotFound)

	fk := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Detail: "organization missing"}
	assert.ErrorIs(t, mapPostgresError(fk), ports.ErrNotFound)

	uniq := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_pkey"}
	err := mapPostgresError(uniq)
	assert.Contains(t, err.Error(), "users_pkey")
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapPostgresError(plain))
}
