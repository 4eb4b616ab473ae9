package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"minilibrary/internal/catalog"
	"minilibrary/internal/store"
	"minilibrary/pkg/eventstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func seededInventory(t *testing.T, units int) (*catalog.Inventory, *store.Memory, *eventstore.MemoryEventStore, uuid.UUID) {
	t.Helper()
	books := store.NewMemory()
	journal := eventstore.NewMemoryEventStore()
	id := uuid.New()
	require.NoError(t, books.Insert(context.Background(), &catalog.Book{
		ID: id, Name: "Mistborn", Author: "Brandon Sanderson", Year: 2006, ISBN: "978-0765311788", Amount: units,
	}))
	return catalog.NewInventory(books, journal, nil), books, journal, id
}

func TestBorrowDepletedLeavesCountAtZero(t *testing.T) {
	ctx := context.Background()
	inv, books, _, id := seededInventory(t, 0)

	_, err := inv.Borrow(ctx, id)
	require.ErrorIs(t, err, catalog.ErrDepleted)

	b, err := books.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Amount)
}

func TestBorrowThenReturnRoundTrips(t *testing.T) {
	ctx := context.Background()
	inv, books, _, id := seededInventory(t, 4)

	left, err := inv.Borrow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, left)

	back, err := inv.Return(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, back)

	b, err := books.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Amount)
}

func TestReturnHasNoUpperBound(t *testing.T) {
	ctx := context.Background()
	inv, _, _, id := seededInventory(t, 1)

	n, err := inv.Return(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnknownBookIsNotFound(t *testing.T) {
	ctx := context.Background()
	inv, _, _, _ := seededInventory(t, 1)

	_, err := inv.Borrow(ctx, uuid.New())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = inv.Return(ctx, uuid.New())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestConcurrentBorrowsNeverOversell(t *testing.T) {
	const (
		units   = 7
		callers = 50
	)
	ctx := context.Background()
	inv, books, journal, id := seededInventory(t, units)

	var ok, depleted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := inv.Borrow(ctx, id)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, catalog.ErrDepleted):
				depleted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(units), ok.Load())
	assert.Equal(t, int32(callers-units), depleted.Load())

	b, err := books.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Amount)

	events, err := journal.LoadEvents(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, units)
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
		assert.Equal(t, catalog.EventUnitBorrowed, e.EventType)

		var adj catalog.UnitsAdjustedEvent
		require.NoError(t, json.Unmarshal(e.EventData, &adj))
		assert.Equal(t, -1, adj.Delta)
		assert.Equal(t, units-i-1, adj.NewAvailable)
	}
}

func TestBorrowsOnDifferentBooksProceedIndependently(t *testing.T) {
	ctx := context.Background()
	books := store.NewMemory()
	inv := catalog.NewInventory(books, nil, nil)

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, books.Insert(ctx, &catalog.Book{ID: ids[i], Name: "n", Author: "a", ISBN: "i", Amount: 20}))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := 0; j < 20; j++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := inv.Borrow(ctx, id)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		b, err := books.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, b.Amount)
	}
}

type failingJournal struct{}

func (failingJournal) AppendEvents(context.Context, uuid.UUID, string, int, []eventstore.Event) error {
	return errors.New("disk full")
}

func (failingJournal) LoadEvents(context.Context, uuid.UUID, int, int) ([]eventstore.Event, error) {
	return nil, nil
}

func (failingJournal) GetCurrentVersion(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

func TestJournalFailureDoesNotFailBorrow(t *testing.T) {
	ctx := context.Background()
	books := store.NewMemory()
	id := uuid.New()
	require.NoError(t, books.Insert(ctx, &catalog.Book{ID: id, Name: "n", Author: "a", ISBN: "i", Amount: 2}))

	inv := catalog.NewInventory(books, failingJournal{}, nil)
	left, err := inv.Borrow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestInventoryMatchesCounterModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		books := store.NewMemory()
		id := uuid.New()
		units := rapid.IntRange(0, 5).Draw(t, "units")
		if err := books.Insert(ctx, &catalog.Book{ID: id, Name: "n", Author: "a", ISBN: "i", Amount: units}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		inv := catalog.NewInventory(books, eventstore.NewMemoryEventStore(), nil)

		model := units
		for _, borrow := range rapid.SliceOf(rapid.Bool()).Draw(t, "ops") {
			if borrow {
				n, err := inv.Borrow(ctx, id)
				if model == 0 {
					if !errors.Is(err, catalog.ErrDepleted) {
						t.Fatalf("borrow at zero: got %d, %v", n, err)
					}
					continue
				}
				model--
				if err != nil || n != model {
					t.Fatalf("borrow: got %d, %v want %d", n, err, model)
				}
				continue
			}
			model++
			if n, err := inv.Return(ctx, id); err != nil || n != model {
				t.Fatalf("return: got %d, %v want %d", n, err, model)
			}
		}

		b, err := books.Get(ctx, id)
		if err != nil || b.Amount != model {
			t.Fatalf("final count %v, %v want %d", b, err, model)
		}
	})
}
