// Package persistence selects a concrete persistent store backend from the
// environment.
package persistence

import (
	"fmt"
	"os"

	"ledgercore/internal/core"
	"ledgercore/internal/infra/persistence/postgres"
	"ledgercore/internal/infra/persistence/sqlite"
	"ledgercore/pkg/domain"
)

// Driver identifies a concrete persistent storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Open selects a backend using environment variables. Defaults to sqlite when
// unset.
//
//	LEDGERCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LEDGERCORE_SQLITE_PATH: path to sqlite file (default ./ledgercore.db)
//	LEDGERCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(owner string, engine *core.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("LEDGERCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return core.NewMemoryStore(owner, engine), nil
	case DriverSQLite:
		path := os.Getenv("LEDGERCORE_SQLITE_PATH")
		return sqlite.NewStore(path, owner, engine)
	case DriverPostgres:
		dsn := os.Getenv("LEDGERCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, owner, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
