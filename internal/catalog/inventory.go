// internal/catalog/inventory.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"minilibrary/pkg/eventstore"

	"github.com/google/uuid"
)

// keyedMutex hands out one mutex per book id. Entries are reference counted
// and dropped once no caller holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyedEntry)}
}

func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// Inventory adjusts available units one at a time. Calls on the same book
// are serialized; calls on different books run in parallel.
type Inventory struct {
	store   Store
	journal Journal
	logger  *slog.Logger
	locks   *keyedMutex
}

// NewInventory creates an inventory over store. journal may be nil.
func NewInventory(store Store, journal Journal, logger *slog.Logger) *Inventory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inventory{
		store:   store,
		journal: journal,
		logger:  logger,
		locks:   newKeyedMutex(),
	}
}

// Borrow takes one unit. It returns ErrDepleted, leaving the count at zero,
// when nothing is available.
func (inv *Inventory) Borrow(ctx context.Context, id uuid.UUID) (int, error) {
	return inv.adjust(ctx, id, -1, EventUnitBorrowed)
}

// Return puts one unit back. There is no upper bound.
func (inv *Inventory) Return(ctx context.Context, id uuid.UUID) (int, error) {
	return inv.adjust(ctx, id, 1, EventUnitReturned)
}

func (inv *Inventory) adjust(ctx context.Context, id uuid.UUID, delta int, eventType string) (int, error) {
	unlock := inv.locks.Lock(id)
	defer unlock()

	amount, err := inv.store.Adjust(ctx, id, delta)
	if err != nil {
		return amount, err
	}

	// The count is authoritative; a journal failure is logged, not returned.
	if err := inv.record(ctx, id, eventType, UnitsAdjustedEvent{ID: id, Delta: delta, NewAvailable: amount}); err != nil {
		inv.logger.Warn("journal append failed", "book", id, "event", eventType, "error", err)
	}
	return amount, nil
}

func (inv *Inventory) record(ctx context.Context, id uuid.UUID, eventType string, data any) error {
	if inv.journal == nil {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	version, err := inv.journal.GetCurrentVersion(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read journal version: %w", err)
	}

	event := eventstore.Event{
		EventType: eventType,
		EventData: jsonData,
	}
	if err := inv.journal.AppendEvents(ctx, id, AggregateType, version, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// journalBook records a whole-book event such as an add or a seed insert.
func (inv *Inventory) journalBook(ctx context.Context, b *Book, eventType string) {
	unlock := inv.locks.Lock(b.ID)
	defer unlock()

	data := BookAddedEvent{ID: b.ID, Name: b.Name, Author: b.Author, Year: b.Year, ISBN: b.ISBN, Amount: b.Amount}
	if err := inv.record(ctx, b.ID, eventType, data); err != nil {
		inv.logger.Warn("journal append failed", "book", b.ID, "event", eventType, "error", err)
	}
}
