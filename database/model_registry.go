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
	"sort"
	"sync"
)

var defaultRegistry = &modelRegistry{}

// registeredModel pairs a Bun model instance with a priority; lower
// priorities have their tables created first, which matters when later
// tables reference earlier ones.
type registeredModel struct {
	instance interface{}
	priority int
}

type modelRegistry struct {
	models []registeredModel
	mutex  sync.RWMutex
}

func (r *modelRegistry) register(instance interface{}, priority int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models = append(r.models, registeredModel{instance: instance, priority: priority})
}

func (r *modelRegistry) instances() []interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sorted := make([]registeredModel, len(r.models))
	copy(sorted, r.models)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	out := make([]interface{}, len(sorted))
	for i, m := range sorted {
		out[i] = m.instance
	}
	return out
}

// RegisterModel adds a model to the default registry with priority 0.
// Registered models get their tables created by the base migration and
// are announced to Bun on InitDB.
func RegisterModel(instance interface{}) {
	defaultRegistry.register(instance, 0)
}

// RegisterModelWithPriority adds a model with an explicit creation
// order; lower runs earlier.
func RegisterModelWithPriority(instance interface{}, priority int) {
	defaultRegistry.register(instance, priority)
}

// RegisteredModelInstances returns all registered model instances in
// ascending priority order.
func RegisteredModelInstances() []interface{} {
	return defaultRegistry.instances()
}
