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

// Package repository provides a generic, filter-driven data access layer
// on top of Bun. A Repository[T] wraps a bun.IDB (database or open
// transaction) and exposes single-row and bulk CRUD operations with
// consistent not-found and multiple-result semantics across dialects.
//
//	repo, err := repository.NewRepository[User](db)
//	user, err := repo.GetOne(ctx, filters.ByEq("email", "a@b.c"))
//
// The repository never opens, commits, or rolls back transactions and
// never retries failed statements; session scope belongs to the caller.
package repository
