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

package filters

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type track struct {
	bun.BaseModel `bun:"table:tracks,alias:t"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Name   string `bun:"name"`
	Rating int    `bun:"rating"`
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if _, err := db.NewCreateTable().Model((*track)(nil)).Exec(ctx); err != nil {
		t.Fatalf("create table: %v", err)
	}
	seed := []*track{
		{Name: "alpha", Rating: 1},
		{Name: "Bravo", Rating: 2},
		{Name: "charlie", Rating: 3},
		{Name: "delta", Rating: 4},
		{Name: "echo", Rating: 5},
	}
	if _, err := db.NewInsert().Model(&seed).Exec(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func listTracks(t *testing.T, db *bun.DB, fs ...Filter) []*track {
	t.Helper()
	var rows []*track
	q, err := Apply(db.NewSelect().Model(&rows), fs...)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := q.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return rows
}

func names(rows []*track) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func TestEqFilter(t *testing.T) {
	rows := listTracks(t, newTestDB(t), ByEq("name", "charlie"))
	if len(rows) != 1 || rows[0].Rating != 3 {
		t.Fatalf("unexpected rows %v", names(rows))
	}
}

func TestRangeFilter(t *testing.T) {
	db := newTestDB(t)

	rows := listTracks(t, db, ByRange("rating", 2, 4), ByOrder("rating"))
	if got := names(rows); len(got) != 3 || got[0] != "Bravo" || got[2] != "delta" {
		t.Fatalf("inclusive range: %v", got)
	}

	// Open lower bound.
	rows = listTracks(t, db, ByRange("rating", nil, 2))
	if len(rows) != 2 {
		t.Fatalf("open lower bound: %v", names(rows))
	}

	// Exclusive bounds drop the endpoints.
	rows = listTracks(t, db, Range{Field: "rating", Lower: 2, Upper: 4, Exclusive: true})
	if len(rows) != 1 || rows[0].Name != "charlie" {
		t.Fatalf("exclusive range: %v", names(rows))
	}
}

func TestCollectionFilter(t *testing.T) {
	db := newTestDB(t)

	rows := listTracks(t, db, ByValues("rating", 1, 3))
	if len(rows) != 2 {
		t.Fatalf("include: %v", names(rows))
	}

	rows = listTracks(t, db, ByNotValues("rating", 1, 3))
	if len(rows) != 3 {
		t.Fatalf("exclude: %v", names(rows))
	}

	// Empty include matches nothing; empty exclude everything.
	rows = listTracks(t, db, Collection[int]{Field: "rating", Values: []int{}})
	if len(rows) != 0 {
		t.Fatalf("empty include: %v", names(rows))
	}
	rows = listTracks(t, db, Collection[int]{Field: "rating", Values: []int{}, Exclude: true})
	if len(rows) != 5 {
		t.Fatalf("empty exclude: %v", names(rows))
	}
	rows = listTracks(t, db, Collection[int]{Field: "rating"})
	if len(rows) != 5 {
		t.Fatalf("nil include: %v", names(rows))
	}
}

func TestSearchFilter(t *testing.T) {
	db := newTestDB(t)

	rows := listTracks(t, db, BySearch("name", "lta"))
	if len(rows) != 1 || rows[0].Name != "delta" {
		t.Fatalf("substring: %v", names(rows))
	}

	// Case-insensitive matches regardless of stored casing.
	rows = listTracks(t, db, Search{Field: "name", Value: "bravo", IgnoreCase: true})
	if len(rows) != 1 || rows[0].Name != "Bravo" {
		t.Fatalf("ignore case: %v", names(rows))
	}

	rows = listTracks(t, db, Search{Field: "name", Value: "a", Exclude: true})
	for _, r := range rows {
		if r.Name == "alpha" || r.Name == "charlie" || r.Name == "delta" {
			t.Fatalf("excluded row %q returned", r.Name)
		}
	}
}

func TestOrderAndPagination(t *testing.T) {
	db := newTestDB(t)

	rows := listTracks(t, db, ByOrderDesc("rating"), LimitOffset{Limit: 2, Offset: 1})
	if got := names(rows); len(got) != 2 || got[0] != "delta" || got[1] != "charlie" {
		t.Fatalf("ordered window: %v", got)
	}

	// ByPage is 1-based.
	rows = listTracks(t, db, ByOrder("rating"), ByPage(3, 2))
	if got := names(rows); len(got) != 1 || got[0] != "echo" {
		t.Fatalf("page 3: %v", got)
	}
}

func TestMultiKeyOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	extra := []*track{{Name: "alpha", Rating: 9}}
	if _, err := db.NewInsert().Model(&extra).Exec(ctx); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows := listTracks(t, db, ByOrder("name"), ByOrderDesc("rating"))
	if rows[0].Name != "Bravo" {
		// sqlite sorts uppercase before lowercase in binary collation
		t.Fatalf("first row %q", rows[0].Name)
	}
	// Within equal names the second key applies.
	var alphas []*track
	for _, r := range rows {
		if r.Name == "alpha" {
			alphas = append(alphas, r)
		}
	}
	if len(alphas) != 2 || alphas[0].Rating != 9 {
		t.Fatalf("secondary sort: %+v", names(alphas))
	}
}

func TestApplyRejectsNilAndEmptyFields(t *testing.T) {
	db := newTestDB(t)

	if _, err := Apply(db.NewSelect().Model((*track)(nil)), nil); !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("nil filter: %v", err)
	}
	if _, err := Apply(db.NewSelect().Model((*track)(nil)), Eq{}); !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("empty field: %v", err)
	}
}

func TestFilterSliceHelpers(t *testing.T) {
	fs := []Filter{ByEq("a", 1), ByOrder("a"), ByPage(1, 10)}

	if got := WithoutPagination(fs); len(got) != 2 {
		t.Fatalf("WithoutPagination kept %d filters", len(got))
	}
	if got := OnlyPredicates(fs); len(got) != 1 {
		t.Fatalf("OnlyPredicates kept %d filters", len(got))
	}
	lo := FindLimitOffset(fs...)
	if lo == nil || lo.Limit != 10 || lo.Offset != 0 {
		t.Fatalf("FindLimitOffset = %+v", lo)
	}
	if FindLimitOffset(ByEq("a", 1)) != nil {
		t.Fatal("expected nil for no pagination")
	}
}
