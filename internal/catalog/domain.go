// internal/catalog/domain.go
package catalog

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("book not found")
	ErrDepleted    = errors.New("no units available")
	ErrInvalidBook = errors.New("invalid book")
	ErrEvaluation  = errors.New("filter evaluation failed")
)

// Book is a catalog record. The JSON names match the wire format the
// interactive client has always spoken.
type Book struct {
	ID     uuid.UUID `json:"guid"`
	Name   string    `json:"name"`
	Author string    `json:"author"`
	Year   int       `json:"year"`
	ISBN   string    `json:"isbn"`
	Amount int       `json:"amount"`
}

// Clone returns a copy safe to hand out of a store.
func (b *Book) Clone() *Book {
	c := *b
	return &c
}

// Event types recorded in the inventory journal.
const (
	EventBookAdded          = "BookAdded"
	EventCatalogInitialized = "CatalogInitialized"
	EventUnitBorrowed       = "UnitBorrowed"
	EventUnitReturned       = "UnitReturned"
)

// AggregateType is the journal aggregate name for books.
const AggregateType = "book"

// BookAddedEvent is recorded when a book enters the catalog through add or init.
type BookAddedEvent struct {
	ID     uuid.UUID `json:"guid"`
	Name   string    `json:"name"`
	Author string    `json:"author"`
	Year   int       `json:"year"`
	ISBN   string    `json:"isbn"`
	Amount int       `json:"amount"`
}

// UnitsAdjustedEvent is recorded for every successful borrow or return.
type UnitsAdjustedEvent struct {
	ID           uuid.UUID `json:"guid"`
	Delta        int       `json:"delta"`
	NewAvailable int       `json:"new_available"`
}
