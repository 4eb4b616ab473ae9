// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"minilibrary/internal/catalog"
	"minilibrary/pkg/eventstore"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrDuplicateID = errors.New("duplicate book id")

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Backend bundles the catalog store with the journal kept next to it.
type Backend struct {
	Store   catalog.Store
	Journal catalog.Journal
}

// Open connects the backend named by driver. Memory ignores dsn; sqlite and
// postgres open the database, create missing tables and put the journal in
// the same database.
func Open(ctx context.Context, driver, dsn string) (*Backend, error) {
	if driver == DriverMemory {
		return &Backend{Store: NewMemory(), Journal: eventstore.NewMemoryEventStore()}, nil
	}

	var dialect string
	switch driver {
	case DriverSQLite:
		dialect = eventstore.DialectSQLite
	case DriverPostgres:
		dialect = eventstore.DialectPostgres
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; queue on the pool instead of SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	books, err := NewSQL(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := books.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	journal, err := eventstore.NewEventStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := journal.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Backend{Store: books, Journal: journal}, nil
}
