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

package strata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/strata-db/strata/database"
	"github.com/strata-db/strata/filters"
	"github.com/strata-db/strata/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type article struct {
	bun.BaseModel `bun:"table:articles,alias:a"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Title string `bun:"title"`
	Views int    `bun:"views"`
}

type articlePatch struct {
	Title types.Optional[string]
	Views types.Optional[int]
}

type articleInput struct {
	title string
	views int
}

func (a articleInput) ModelValues() map[string]any {
	return map[string]any{"title": a.title, "views": a.views}
}

func newTestService(t *testing.T) Service[article] {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.NewCreateTable().Model((*article)(nil)).Exec(context.Background()); err != nil {
		t.Fatalf("create table: %v", err)
	}

	svc, err := NewService[article](db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	if _, err := NewService[article](nil); !errors.Is(err, ErrMissingConfiguration) {
		t.Fatalf("expected ErrMissingConfiguration, got %v", err)
	}
}

func TestDefaultServiceWithoutGlobalDatabase(t *testing.T) {
	svc := NewDefaultService[article]()
	if _, err := svc.Count(context.Background()); !errors.Is(err, ErrMissingConfiguration) {
		t.Fatalf("expected ErrMissingConfiguration, got %v", err)
	}
}

func TestToModelCoercions(t *testing.T) {
	svc := newTestService(t)

	// Pointer passes through unchanged.
	ptr := &article{Title: "p"}
	got, err := svc.ToModel(ptr)
	if err != nil {
		t.Fatalf("pointer: %v", err)
	}
	if got != ptr {
		t.Fatal("pointer identity lost")
	}

	// Value is copied.
	got, err = svc.ToModel(article{Title: "v", Views: 2})
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if got.Title != "v" || got.Views != 2 {
		t.Fatalf("value coercion: %+v", got)
	}

	// Map keys may be column or Go field names.
	got, err = svc.ToModel(map[string]any{"title": "m", "Views": 3})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got.Title != "m" || got.Views != 3 {
		t.Fatalf("map coercion: %+v", got)
	}

	// ModelInput exposes explicit values.
	got, err = svc.ToModel(articleInput{title: "i", views: 4})
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if got.Title != "i" || got.Views != 4 {
		t.Fatalf("input coercion: %+v", got)
	}

	// Optional schema contributes only set fields; unset stays zero.
	got, err = svc.ToModel(articlePatch{Title: types.Some("o")})
	if err != nil {
		t.Fatalf("optional: %v", err)
	}
	if got.Title != "o" || got.Views != 0 {
		t.Fatalf("optional coercion: %+v", got)
	}

	if _, err := svc.ToModel(42); err == nil {
		t.Fatal("expected error for unsupported input")
	}
}

func TestToModelRoundTrip(t *testing.T) {
	svc := newTestService(t)

	in := map[string]any{"title": "round", "views": 11}
	model, err := svc.ToModel(in)
	if err != nil {
		t.Fatalf("to model: %v", err)
	}
	out := ToSchema([]*article{model}, func(a *article) map[string]any {
		return map[string]any{"title": a.Title, "views": a.Views}
	})
	if out[0]["title"] != "round" || out[0]["views"] != 11 {
		t.Fatalf("round-trip = %v", out[0])
	}
}

func TestServiceCRUD(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	created, err := svc.Create(ctx, map[string]any{"title": "first", "views": 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("missing pk")
	}

	if _, err := svc.CreateMany(ctx,
		article{Title: "second", Views: 2},
		&article{Title: "third", Views: 3},
	); err != nil {
		t.Fatalf("create many: %v", err)
	}

	updated, err := svc.Update(ctx, map[string]any{"id": created.ID, "title": "first-renamed", "views": 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "first-renamed" {
		t.Fatalf("update title = %q", updated.Title)
	}

	total, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Fatalf("count = %d", total)
	}

	deleted, err := svc.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Title != "first-renamed" {
		t.Fatalf("deleted = %+v", deleted)
	}
}

func TestPaginateInfersWindow(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	for i := 0; i < 9; i++ {
		if _, err := svc.Create(ctx, map[string]any{"title": fmt.Sprintf("a-%d", i), "views": i}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page, err := svc.Paginate(ctx, filters.ByOrder("views"), filters.ByPage(2, 4))
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if page.Total != 9 || page.Limit != 4 || page.Offset != 4 {
		t.Fatalf("envelope = %+v", page)
	}
	if len(page.Items) != 4 || page.Items[0].Views != 4 {
		t.Fatalf("window = %+v", page.Items)
	}

	// Without LimitOffset the limit defaults to the item count.
	page, err = svc.Paginate(ctx)
	if err != nil {
		t.Fatalf("paginate all: %v", err)
	}
	if page.Limit != len(page.Items) || page.Offset != 0 {
		t.Fatalf("default window = %+v", page)
	}
}

func TestToSchemaPage(t *testing.T) {
	page := types.NewOffsetPagination([]*article{
		{Title: "x", Views: 1},
	}, 5, 0, 1)

	out := ToSchemaPage(page, func(a *article) string { return a.Title })
	if out.Limit != 5 || out.Total != 1 || len(out.Items) != 1 || out.Items[0] != "x" {
		t.Fatalf("schema page = %+v", out)
	}

	empty := ToSchemaPage[article, string](nil, func(a *article) string { return "" })
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Fatalf("nil page = %+v", empty)
	}
}

func TestWithScopedService(t *testing.T) {
	ctx := context.Background()
	cfg := &database.Config{
		ConnectionConfig: *sqliteTestConnectionConfig(),
	}

	ran := false
	err := WithScopedService[article](ctx, cfg, func(ctx context.Context, svc Service[article]) error {
		ran = true
		repo, err := svc.Repo()
		if err != nil {
			return err
		}
		if _, err := repo.DB().NewCreateTable().Model((*article)(nil)).Exec(ctx); err != nil {
			return err
		}
		created, err := svc.Create(ctx, map[string]any{"title": "scoped"})
		if err != nil {
			return err
		}
		if created.ID == 0 {
			return errors.New("missing pk")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scoped service: %v", err)
	}
	if !ran {
		t.Fatal("callback never ran")
	}

	if err := WithScopedService[article](ctx, nil, func(context.Context, Service[article]) error { return nil }); !errors.Is(err, ErrMissingConfiguration) {
		t.Fatalf("nil config: %v", err)
	}
}

// sqliteTestConnectionConfig points at a shared in-memory sqlite
// database, so every pooled connection sees the same data.
func sqliteTestConnectionConfig() *database.ConnectionConfig {
	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	return cfg
}
