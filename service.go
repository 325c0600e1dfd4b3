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
	"errors"
	"fmt"
	"sync"

	"github.com/strata-db/strata/database"
	"github.com/strata-db/strata/filters"
	"github.com/strata-db/strata/repository"
	"github.com/strata-db/strata/types"

	"github.com/uptrace/bun"
)

// ErrMissingConfiguration is returned when a service or scoped session
// is requested without a usable database handle or configuration.
var ErrMissingConfiguration = errors.New("missing configuration")

// Service wraps a generic repository with input coercion and output
// conversion. Write operations accept *T, T, map[string]any, or schema
// inputs (see ToModel); reads mirror the repository contract.
type Service[T any] interface {
	// Repo exposes the underlying repository for advanced use.
	Repo() (repository.Repository[T], error)

	Count(ctx context.Context, fs ...filters.Filter) (int, error)
	Exists(ctx context.Context, fs ...filters.Filter) (bool, error)
	Get(ctx context.Context, id any) (*T, error)
	GetOne(ctx context.Context, fs ...filters.Filter) (*T, error)
	GetOneOrNone(ctx context.Context, fs ...filters.Filter) (*T, error)
	List(ctx context.Context, fs ...filters.Filter) ([]*T, error)
	ListAndCount(ctx context.Context, fs ...filters.Filter) ([]*T, int, error)

	// Paginate returns the filtered window wrapped in a pagination
	// envelope, with limit/offset inferred from any LimitOffset filter.
	Paginate(ctx context.Context, fs ...filters.Filter) (*types.OffsetPagination[*T], error)

	Create(ctx context.Context, data any) (*T, error)
	CreateMany(ctx context.Context, data ...any) ([]*T, error)
	Update(ctx context.Context, data any) (*T, error)
	UpdateMany(ctx context.Context, data ...any) ([]*T, error)
	Upsert(ctx context.Context, data any, matchFields ...string) (*T, error)
	UpsertMany(ctx context.Context, data []any, matchFields ...string) ([]*T, error)
	GetOrUpsert(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error)
	GetAndUpdate(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error)
	Delete(ctx context.Context, id any) (*T, error)
	DeleteMany(ctx context.Context, ids []any) ([]*T, error)
	DeleteWhere(ctx context.Context, fs ...filters.Filter) ([]*T, error)

	// ToModel coerces supported input shapes into a model instance.
	ToModel(data any) (*T, error)
}

type baseServiceImpl[T any] struct {
	once    sync.Once
	init    func() (repository.Repository[T], error)
	repo    repository.Repository[T]
	repoErr error
}

// NewService returns a Service over the given Bun database or
// transaction. A nil handle fails with ErrMissingConfiguration.
func NewService[T any](db bun.IDB, opts ...repository.Option) (Service[T], error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle is nil", ErrMissingConfiguration)
	}
	repo, err := repository.NewRepository[T](db, opts...)
	if err != nil {
		return nil, err
	}
	return &baseServiceImpl[T]{repo: repo}, nil
}

// NewDefaultService returns a Service backed by the global database
// connection. The repository is built lazily on first use, so the
// service may be constructed before database.InitDB has run.
func NewDefaultService[T any](opts ...repository.Option) Service[T] {
	return &baseServiceImpl[T]{
		init: func() (repository.Repository[T], error) {
			db := database.GetDB()
			if db == nil {
				return nil, fmt.Errorf("%w: global database is not initialized", ErrMissingConfiguration)
			}
			return repository.NewRepository[T](db, opts...)
		},
	}
}

// WithScopedService opens a connection from cfg, runs fn with a ready
// service, and releases the connection on every exit path.
func WithScopedService[T any](ctx context.Context, cfg *database.Config, fn func(ctx context.Context, svc Service[T]) error, opts ...repository.Option) error {
	if cfg == nil {
		return fmt.Errorf("%w: database config is nil", ErrMissingConfiguration)
	}
	if fn == nil {
		return fmt.Errorf("%w: callback is nil", ErrMissingConfiguration)
	}

	factory := database.NewDatabaseFactory()
	if _, err := factory.CreateFromConfig(&cfg.ConnectionConfig); err != nil {
		return err
	}
	defer func() { _ = factory.Close() }()

	if err := factory.InitializeDatabase(ctx, cfg.MigrateConfig.MigrateOnStartup); err != nil {
		return err
	}

	svc, err := NewService[T](factory.GetDB(), opts...)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func (s *baseServiceImpl[T]) baseRepo() (repository.Repository[T], error) {
	s.once.Do(func() {
		if s.init != nil {
			s.repo, s.repoErr = s.init()
		}
	})
	return s.repo, s.repoErr
}

func (s *baseServiceImpl[T]) Repo() (repository.Repository[T], error) {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, fs ...filters.Filter) (int, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, fs...)
}

func (s *baseServiceImpl[T]) Exists(ctx context.Context, fs ...filters.Filter) (bool, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return false, err
	}
	return repo.Exists(ctx, fs...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (s *baseServiceImpl[T]) GetOne(ctx context.Context, fs ...filters.Filter) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.GetOne(ctx, fs...)
}

func (s *baseServiceImpl[T]) GetOneOrNone(ctx context.Context, fs ...filters.Filter) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.GetOneOrNone(ctx, fs...)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, fs ...filters.Filter) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, fs...)
}

func (s *baseServiceImpl[T]) ListAndCount(ctx context.Context, fs ...filters.Filter) ([]*T, int, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, 0, err
	}
	return repo.ListAndCount(ctx, fs...)
}

func (s *baseServiceImpl[T]) Paginate(ctx context.Context, fs ...filters.Filter) (*types.OffsetPagination[*T], error) {
	items, total, err := s.ListAndCount(ctx, fs...)
	if err != nil {
		return nil, err
	}
	return ToDTO(items, total, fs...), nil
}

func (s *baseServiceImpl[T]) Create(ctx context.Context, data any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	model, err := toModel(repo, data)
	if err != nil {
		return nil, err
	}
	return repo.Create(ctx, model)
}

func (s *baseServiceImpl[T]) CreateMany(ctx context.Context, data ...any) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	models, err := toModels(repo, data)
	if err != nil {
		return nil, err
	}
	return repo.CreateMany(ctx, models)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, data any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	model, err := toModel(repo, data)
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, model)
}

func (s *baseServiceImpl[T]) UpdateMany(ctx context.Context, data ...any) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	models, err := toModels(repo, data)
	if err != nil {
		return nil, err
	}
	return repo.UpdateMany(ctx, models)
}

func (s *baseServiceImpl[T]) Upsert(ctx context.Context, data any, matchFields ...string) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	model, err := toModel(repo, data)
	if err != nil {
		return nil, err
	}
	return repo.Upsert(ctx, model, matchFields...)
}

func (s *baseServiceImpl[T]) UpsertMany(ctx context.Context, data []any, matchFields ...string) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	models, err := toModels(repo, data)
	if err != nil {
		return nil, err
	}
	return repo.UpsertMany(ctx, models, matchFields...)
}

func (s *baseServiceImpl[T]) GetOrUpsert(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, false, err
	}
	return repo.GetOrUpsert(ctx, values, matchFields...)
}

func (s *baseServiceImpl[T]) GetAndUpdate(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, false, err
	}
	return repo.GetAndUpdate(ctx, values, matchFields...)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Delete(ctx, id)
}

func (s *baseServiceImpl[T]) DeleteMany(ctx context.Context, ids []any) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.DeleteMany(ctx, ids)
}

func (s *baseServiceImpl[T]) DeleteWhere(ctx context.Context, fs ...filters.Filter) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.DeleteWhere(ctx, fs...)
}

func (s *baseServiceImpl[T]) ToModel(data any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return toModel(repo, data)
}
