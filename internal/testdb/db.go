// Package testdb provides PostgreSQL helpers for integration tests. Tests that
// use it are skipped when no test database is available, or fail instead when
// ciutil.ServiceRequired reports the database as required.
package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/leadgen-api/internal/ciutil"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/platform/postgres"
)

// TestTimeout bounds individual setup operations against the test database.
const TestTimeout = 5 * time.Second

// GetTestDBWithT opens the test database, applies migrations, and registers
// cleanup. The test is skipped when the database is not reachable.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := ciutil.GetTestDatabaseURL(nil)
	if dbURL == "" {
		ciutil.SkipOrFail(t, ciutil.EnvRequireDB, "LEADGEN_TEST_DB_URL or DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "failed to open database connection")
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		ciutil.SkipOrFail(t, ciutil.EnvRequireDB, "test database not available: "+err.Error())
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})

	require.NoError(t, postgres.Migrate(context.Background(), db, nil), "failed to apply migrations")
	return db
}

// ResetTables removes all rows and restarts id sequences.
func ResetTables(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, `TRUNCATE leads, jobs, owners RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "failed to reset tables")
}

// MustInsertOwner creates an owner row and returns its ID.
func MustInsertOwner(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()

	id := uuid.New()
	owner, err := domain.NewOwner(id, "owner-"+id.String()[:8]+"@example.com", "Test Owner")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, postgres.NewPostgresOwnerStore(db, nil).EnsureOwner(ctx, owner))
	return id
}
