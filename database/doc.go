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

// Package database manages Bun connections for mysql, postgres, and
// sqlite: configuration with YAML and environment overrides, pool
// tuning, query logging hooks, driver error classification, a model
// registry, and version-tracked migrations.
//
// The package never reconnects or retries on its own. A connection is
// opened once by InitDB (or a manager created through the factory) and
// failures surface to the caller.
package database
