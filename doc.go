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

// Package strata is a generic repository and service layer over Bun.
// It provides filter-driven CRUD with consistent single-row semantics,
// chunked bulk operations, dialect-aware upserts, schema conversion,
// and pagination envelopes, working against mysql, postgres, and
// sqlite.
//
//	type User struct {
//		bun.BaseModel `bun:"table:users"`
//		ID            int64  `bun:"id,pk,autoincrement"`
//		Email         string `bun:"email"`
//	}
//
//	svc, err := strata.NewService[User](db)
//	page, err := svc.Paginate(ctx,
//		filters.BySearch("email", "@example.com"),
//		filters.ByOrder("id"),
//		filters.ByPage(1, 20),
//	)
package strata
