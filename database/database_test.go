/*
 * Copyright 2025 the strata authors.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIsSqlErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   bool
		kind SQLError
	}{
		{"nil", nil, false, UnknownErr},
		{"plain error", errors.New("connection refused"), false, UnknownErr},
		{"mysql duplicate key", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'PRIMARY'"}, true, DuplicateKeyErr},
		{"mysql unknown column", &mysql.MySQLError{Number: 1054, Message: "Unknown column 'x'"}, true, NoColumnErr},
		{"mysql not null", &mysql.MySQLError{Number: 1048, Message: "Column 'x' cannot be null"}, true, NotNullViolationErr},
		{"mysql unmapped number", &mysql.MySQLError{Number: 9999, Message: "whatever"}, true, UnknownErr},
		{"sqlite unique constraint", errors.New("UNIQUE constraint failed: books.id"), true, DuplicateKeyErr},
		{"sqlite missing table", errors.New("no such table: books"), true, NoTableErr},
		{"sqlite missing column", errors.New("no such column: pages"), true, NoColumnErr},
		{"sqlite not null", errors.New("NOT NULL constraint failed: books.title"), true, NotNullViolationErr},
		{"sqlite type mismatch", errors.New("datatype mismatch"), true, InvalidTypeCastErr},
		{"postgres duplicate sqlstate", errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"), true, DuplicateKeyErr},
		{"postgres undefined table", errors.New("ERROR: relation \"books\" does not exist (SQLSTATE 42P01)"), true, NoTableErr},
		{"postgres foreign key", errors.New("ERROR: update violates foreign key (SQLSTATE 23503)"), true, ForeignKeyViolationErr},
		{"postgres truncation", errors.New("ERROR: value too long (SQLSTATE 22001)"), true, DataTruncatedErr},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is, kind := IsSqlError(tc.err)
			if is != tc.is || kind != tc.kind {
				t.Fatalf("IsSqlError(%v) = %v, %v; want %v, %v", tc.err, is, kind, tc.is, tc.kind)
			}
		})
	}
}

func TestIsSqlErrorUnwrapsMySQLErrors(t *testing.T) {
	wrapped := fmt.Errorf("insert failed: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	is, kind := IsSqlError(wrapped)
	if !is || kind != DuplicateKeyErr {
		t.Fatalf("wrapped mysql error = %v, %v", is, kind)
	}
}

func TestMigrateAndRollbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mm := NewMigrationManager(db, nil)

	RegisterMigration(MigrationItem{
		Version:     "002",
		Name:        "create_audit_log",
		Description: "Create the audit log table",
		Up: func(ctx context.Context, db bun.IDB) error {
			_, err := db.NewRaw("CREATE TABLE audit_log (id INTEGER PRIMARY KEY, entry TEXT)").Exec(ctx)
			return err
		},
		Down: func(ctx context.Context, db bun.IDB) error {
			_, err := db.NewRaw("DROP TABLE audit_log").Exec(ctx)
			return err
		},
	})

	if err := mm.RunMigrations(ctx); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	statuses, err := mm.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Fatalf("migration %s not applied", s.Version)
		}
	}
	if _, err := db.NewRaw("INSERT INTO audit_log (entry) VALUES ('x')").Exec(ctx); err != nil {
		t.Fatalf("migrated table unusable: %v", err)
	}

	// Re-running is a no-op for already-applied versions.
	if err := mm.RunMigrations(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if err := mm.RollbackLast(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := db.NewRaw("INSERT INTO audit_log (entry) VALUES ('y')").Exec(ctx); err == nil {
		t.Fatal("audit_log still exists after rollback")
	}

	statuses, err = mm.Status(ctx)
	if err != nil {
		t.Fatalf("status after rollback: %v", err)
	}
	for _, s := range statuses {
		switch s.Version {
		case "001":
			if !s.Applied {
				t.Fatal("base migration should remain applied")
			}
		case "002":
			if s.Applied {
				t.Fatal("rolled-back migration still recorded")
			}
		}
	}

	// The base migration carries no Down function and cannot roll back.
	err = mm.RollbackLast(ctx)
	if err == nil || !strings.Contains(err.Error(), "no rollback function") {
		t.Fatalf("expected no-rollback-function error, got %v", err)
	}
}
