// Package db implements the opening of database connections by type.
package db

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/store/memory"
	"github.com/tarancss/mcw/lib/store/mongo"
	"github.com/tarancss/mcw/lib/store/postgres"
	"github.com/tarancss/mcw/lib/store/redis"
)

// Database types.
const (
	NONE     string = "none"
	MEMORY   string = "memory"
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
	REDIS    string = "redis"
)

// New returns a new database connection according to the options (database type). An empty type or NONE returns the
// logging no-op store.
func New(options, connection string, log *zap.SugaredLogger) (store.DB, error) {
	switch options {
	case "", NONE:
		return store.Nop{Log: log}, nil
	case MEMORY:
		return memory.New()
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	case REDIS:
		return redis.New(connection)
	}

	return nil, fmt.Errorf("db: unknown database type %q", options)
}
