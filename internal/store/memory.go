// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"minilibrary/internal/catalog"

	"github.com/google/uuid"
)

type memoryRecord struct {
	book   catalog.Book
	amount atomic.Int64
}

func (r *memoryRecord) snapshot() *catalog.Book {
	b := r.book
	b.Amount = int(r.amount.Load())
	return &b
}

// Memory is a catalog store held in process memory. The index is guarded by
// an RWMutex; unit counters are adjusted with compare-and-swap so that
// adjustments on different records never contend.
type Memory struct {
	mu    sync.RWMutex
	order []uuid.UUID
	books map[uuid.UUID]*memoryRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{books: make(map[uuid.UUID]*memoryRecord)}
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*catalog.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.books[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return r.snapshot(), nil
}

func (m *Memory) All(_ context.Context) ([]*catalog.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]*catalog.Book, 0, len(m.order))
	for _, id := range m.order {
		books = append(books, m.books[id].snapshot())
	}
	return books, nil
}

func (m *Memory) Insert(_ context.Context, book *catalog.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.books[book.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, book.ID)
	}
	m.add(book)
	return nil
}

func (m *Memory) Replace(_ context.Context, books []*catalog.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = nil
	m.books = make(map[uuid.UUID]*memoryRecord, len(books))
	for _, b := range books {
		if _, exists := m.books[b.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateID, b.ID)
		}
		m.add(b)
	}
	return nil
}

func (m *Memory) add(book *catalog.Book) {
	r := &memoryRecord{book: *book}
	r.amount.Store(int64(book.Amount))
	m.books[book.ID] = r
	m.order = append(m.order, book.ID)
}

func (m *Memory) Adjust(_ context.Context, id uuid.UUID, delta int) (int, error) {
	m.mu.RLock()
	r, ok := m.books[id]
	m.mu.RUnlock()
	if !ok {
		return 0, catalog.ErrNotFound
	}

	for {
		cur := r.amount.Load()
		next := cur + int64(delta)
		if next < 0 {
			return int(cur), catalog.ErrDepleted
		}
		if r.amount.CompareAndSwap(cur, next) {
			return int(next), nil
		}
	}
}

func (m *Memory) Close() error { return nil }
