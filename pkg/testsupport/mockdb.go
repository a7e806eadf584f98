package testsupport

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// NewMockBunDB returns a bun.DB with the postgres dialect over go-sqlmock.
// Expected SQL is matched as a regular expression. Expectations are checked
// and the DB closed when the test ends.
func NewMockBunDB(t testing.TB) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})

	return db, mock
}
