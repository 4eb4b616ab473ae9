// internal/catalog/service.go
package catalog

import (
	"context"

	"minilibrary/pkg/eventstore"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	Init(ctx context.Context) ([]*Book, error)
	Add(ctx context.Context, book Book) (*Book, error)
	Find(ctx context.Context, clauses []string) ([]*Book, error)
	List(ctx context.Context) ([]*Book, error)
	Borrow(ctx context.Context, id uuid.UUID) (int, error)
	Return(ctx context.Context, id uuid.UUID) (int, error)
	History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
}

// Store is the record store behind the catalog. Implementations own their
// synchronization; Adjust must apply its delta atomically per record.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Book, error)
	All(ctx context.Context) ([]*Book, error)
	Insert(ctx context.Context, book *Book) error
	Replace(ctx context.Context, books []*Book) error
	// Adjust adds delta to the book's available units and returns the new
	// count. It fails with ErrNotFound for unknown ids and ErrDepleted,
	// leaving the count untouched, when the result would be negative.
	Adjust(ctx context.Context, id uuid.UUID, delta int) (int, error)
	Close() error
}

// Journal records inventory history. eventstore.EventStore satisfies it.
type Journal interface {
	AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []eventstore.Event) error
	LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]eventstore.Event, error)
	GetCurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int, error)
}
