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

package repository

import "errors"

var (
	// ErrNotFound is returned when a required single-row lookup matched
	// zero rows.
	ErrNotFound = errors.New("record not found")

	// ErrMultipleResults is returned when a required single-row lookup
	// matched more than one row. A key collision is a data integrity
	// fault and must surface; the layer never silently picks one row.
	ErrMultipleResults = errors.New("multiple records matched")

	// ErrMissingIdentifier is returned when an update or upsert could not
	// resolve a target identity from its arguments or input.
	ErrMissingIdentifier = errors.New("missing record identifier")
)
