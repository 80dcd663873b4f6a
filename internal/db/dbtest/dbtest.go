// Package dbtest opens the Postgres database used by integration tests.
package dbtest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"allowance/internal/auth"
	"allowance/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// Open connects to TEST_DATABASE_URL and migrates it. The test is skipped
// under -short or when the variable is unset.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}

	conn, err := db.Connect(dsn, 20)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.RunMigrations(conn, migrationsDir()))
	Clean(t, conn)
	return conn
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// Clean empties every table, children first.
func Clean(t *testing.T, conn *sqlx.DB) {
	t.Helper()
	tables := []string{
		"expenses",
		"expense_categories",
		"wallet_transactions",
		"wallet_buckets",
		"wallets",
		"bill_items",
		"budget_plans",
		"parent_invites",
		"parent_student_links",
		"users",
	}
	for _, table := range tables {
		_, err := conn.Exec(fmt.Sprintf("DELETE FROM %s", table))
		require.NoError(t, err, "Failed to clean table "+table)
	}
}

// CreateUser inserts a user with the given role and returns its id.
func CreateUser(t *testing.T, conn *sqlx.DB, email string, role auth.Role) int {
	t.Helper()
	var id int
	err := conn.QueryRow(`
		INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, 'x', $3)
		RETURNING id
	`, email, email, string(role)).Scan(&id)
	require.NoError(t, err)
	return id
}
