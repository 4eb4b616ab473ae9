// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"minilibrary/pkg/eventstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	store     Store
	journal   Journal
	inventory *Inventory
	logger    *slog.Logger
	tracer    trace.Tracer
	outcomes  metric.Int64Counter

	// catalogMu lets init exclude every mutation; add, borrow and return
	// share it.
	catalogMu sync.RWMutex
}

// NewService creates a new catalog service instance. journal may be nil.
func NewService(store Store, journal Journal, logger *slog.Logger) (Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	outcomes, err := otel.Meter("minilibrary/catalog").Int64Counter(
		"catalog.inventory.adjustments",
		metric.WithDescription("Borrow and return attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create inventory counter: %w", err)
	}
	return &service{
		store:     store,
		journal:   journal,
		inventory: NewInventory(store, journal, logger),
		logger:    logger,
		tracer:    otel.Tracer("minilibrary/catalog"),
		outcomes:  outcomes,
	}, nil
}

// Init replaces the whole catalog with the seed set.
func (s *service) Init(ctx context.Context) ([]*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.init")
	defer span.End()

	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	books := SeedBooks()
	if err := s.store.Replace(ctx, books); err != nil {
		return nil, fmt.Errorf("failed to replace catalog: %w", err)
	}
	for _, b := range books {
		s.inventory.journalBook(ctx, b, EventCatalogInitialized)
	}

	s.logger.Info("catalog initialized", "books", len(books))
	return books, nil
}

// Add inserts a new book under a freshly generated id. Any id on the input
// is ignored.
func (s *service) Add(ctx context.Context, book Book) (*Book, error) {
	if err := validate(&book); err != nil {
		return nil, err
	}
	book.ID = uuid.New()

	ctx, span := s.tracer.Start(ctx, "catalog.add", trace.WithAttributes(attribute.String("book.id", book.ID.String())))
	defer span.End()

	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	if err := s.store.Insert(ctx, &book); err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}
	s.inventory.journalBook(ctx, &book, EventBookAdded)

	s.logger.Info("book added", "book", book.ID, "name", book.Name)
	return &book, nil
}

func validate(b *Book) error {
	b.Name = strings.TrimSpace(b.Name)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = strings.TrimSpace(b.ISBN)

	switch {
	case b.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidBook)
	case b.Author == "":
		return fmt.Errorf("%w: author is required", ErrInvalidBook)
	case b.ISBN == "":
		return fmt.Errorf("%w: isbn is required", ErrInvalidBook)
	case b.Amount < 0:
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidBook)
	}
	return nil
}

// Find compiles the clauses and returns every book matching all of them.
func (s *service) Find(ctx context.Context, clauses []string) ([]*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.find", trace.WithAttributes(attribute.StringSlice("filter.clauses", clauses)))
	defer span.End()

	pred, err := Compile(clauses)
	if err != nil {
		return nil, err
	}

	books, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog: %w", err)
	}

	found := make([]*Book, 0, len(books))
	for _, b := range books {
		ok, err := pred.Match(b)
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, b)
		}
	}

	span.SetAttributes(attribute.Int("books.found", len(found)))
	return found, nil
}

// List returns the whole catalog in insertion order.
func (s *service) List(ctx context.Context) ([]*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list")
	defer span.End()

	books, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog: %w", err)
	}
	return books, nil
}

func (s *service) Borrow(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.borrow", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	amount, err := s.inventory.Borrow(ctx, id)
	s.countOutcome(ctx, "borrow", err)
	return amount, err
}

func (s *service) Return(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.return", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	amount, err := s.inventory.Return(ctx, id)
	s.countOutcome(ctx, "return", err)
	return amount, err
}

func (s *service) countOutcome(ctx context.Context, op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrDepleted):
		outcome = "depleted"
	default:
		outcome = "error"
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// History returns the journal of one book. Books removed by init keep their
// history.
func (s *service) History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.history", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	var events []eventstore.Event
	if s.journal != nil {
		var err error
		events, err = s.journal.LoadEvents(ctx, id, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}
	if len(events) == 0 {
		if _, err := s.store.Get(ctx, id); err != nil {
			return nil, err
		}
		return []eventstore.Event{}, nil
	}
	return events, nil
}
