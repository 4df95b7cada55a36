package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/shared"
)

func TestNewPostgresDB_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := NewPostgresDB(context.Background(), logger, &config.PostgresConfig{
		URL:            "postgres://u:p@localhost:5432/db?pool_max_conns=lots",
		MigrationsPath: "migrations/postgres",
	})

	assert.Nil(t, db)
	assert.ErrorContains(t, err, "failed to parse PostgreSQL connection string")
}

func TestClassifyTxError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		concurrent bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, concurrent: true},
		{name: "deadlock", err: fmt.Errorf("failed to commit transaction: %w", &pgconn.PgError{Code: "40P01"}), concurrent: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyTxError(tt.err)

			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.concurrent, errors.Is(got, shared.ErrConcurrentModification))
		})
	}
}
