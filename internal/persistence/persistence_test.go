package persistence

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"server error", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, apperrors.ErrQuery},
		{"wrapped server error", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "57014"}), apperrors.ErrQuery},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, apperrors.ErrConnection},
		{"not configured", ErrNotConfigured, apperrors.ErrConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.err), tt.want)
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.ErrorIs(t, Classify(pgx.ErrNoRows), pgx.ErrNoRows)

	invalid := apperrors.NewInvalidTransition("trip", "Returned", "approve")
	assert.Same(t, invalid, Classify(invalid))
}

func TestMigrationFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_fleet.sql", "0001_init.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o700))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_fleet.sql"}, files)
}

func TestMigrationFilesShipped(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", migrationsDir))
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

func TestDisabledRedisGrantsLock(t *testing.T) {
	r := &Redis{}
	assert.False(t, r.Enabled())
	assert.ErrorIs(t, r.Ping(context.Background()), ErrRedisNotConfigured)

	lock, ok, err := r.TryLock(context.Background(), "opsdesk:sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, lock.Release(context.Background()))
}
