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

// Package ginext injects database sessions into Gin request contexts so
// handlers can resolve a ready-to-use service per request.
package ginext

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"

	strata "github.com/strata-db/strata"
	"github.com/strata-db/strata/database"
	"github.com/strata-db/strata/repository"
)

const contextKey = "strata:db"

// Plugin owns a database lifecycle for a Gin application: it connects
// on Init, injects the session into every request context through
// Middleware, and disconnects on Close.
type Plugin struct {
	cfg     *database.Config
	factory *database.BaseDatabaseFactory
	logger  database.Logger
}

// New returns a plugin for the given configuration.
func New(cfg *database.Config) *Plugin {
	return &Plugin{cfg: cfg, logger: database.GetLogger()}
}

// Init connects to the database and optionally runs migrations,
// honoring the config's migrate-on-startup flag. Subsequent calls are
// no-ops; Middleware also calls it lazily on the first request.
func (p *Plugin) Init(ctx context.Context) error {
	if p.factory != nil {
		return nil
	}
	if p.cfg == nil {
		return fmt.Errorf("%w: gin plugin requires a database config", strata.ErrMissingConfiguration)
	}
	factory := database.NewDatabaseFactory()
	if _, err := factory.CreateFromConfig(&p.cfg.ConnectionConfig); err != nil {
		return err
	}
	if err := factory.InitializeDatabase(ctx, p.cfg.MigrateConfig.MigrateOnStartup); err != nil {
		return err
	}
	p.factory = factory
	return nil
}

// Close releases the plugin's database connection.
func (p *Plugin) Close() error {
	if p.factory == nil {
		return nil
	}
	err := p.factory.Close()
	p.factory = nil
	return err
}

// Middleware injects the database session into the request context and
// aborts with 503 when the database is unavailable.
func (p *Plugin) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := p.Init(c.Request.Context()); err != nil {
			p.logger.Error("Database unavailable for request", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
			return
		}
		c.Set(contextKey, bun.IDB(p.factory.GetDB()))
		c.Next()
	}
}

// DB returns the session injected by Middleware, or nil outside of it.
func DB(c *gin.Context) bun.IDB {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	db, _ := v.(bun.IDB)
	return db
}

// Resolve yields a service over the request's injected session.
func Resolve[T any](c *gin.Context, opts ...repository.Option) (strata.Service[T], error) {
	db := DB(c)
	if db == nil {
		return nil, fmt.Errorf("%w: no database session in request context", strata.ErrMissingConfiguration)
	}
	return strata.NewService[T](db, opts...)
}
