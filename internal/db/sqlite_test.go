package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_AppliesSchema(t *testing.T) {
	ctx := context.Background()
	exec, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer exec.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = exec.DB().ExecContext(ctx,
		"INSERT INTO organizations (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		"6f1c1f7e-8c4b-4a43-9f0e-7f3b0b5a1c11", "Acme", now, now)
	require.NoError(t, err)

	rows, err := exec.Query(ctx, "SELECT id, name FROM organizations WHERE created_at >= ?", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme", rows[0][1])
	assert.Equal(t, DialectSQLite, exec.Dialect().Name())
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	require.Error(t, err)
}

func TestSQLiteExecutor_QueryError(t *testing.T) {
	exec, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Query(context.Background(), "SELECT missing FROM nowhere")
	require.Error(t, err)
}
