// internal/store/sql.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"minilibrary/internal/catalog"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tableBooks = "books"

var schemas = map[string]string{
	"postgres": `
		CREATE TABLE IF NOT EXISTS books (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			author TEXT NOT NULL,
			year INT NOT NULL,
			isbn TEXT NOT NULL,
			amount INT NOT NULL CHECK (amount >= 0)
		)`,
	"sqlite3": `
		CREATE TABLE IF NOT EXISTS books (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			author TEXT NOT NULL,
			year INTEGER NOT NULL,
			isbn TEXT NOT NULL,
			amount INTEGER NOT NULL CHECK (amount >= 0)
		)`,
}

type bookRow struct {
	ID     string `db:"id"`
	Name   string `db:"name"`
	Author string `db:"author"`
	Year   int    `db:"year"`
	ISBN   string `db:"isbn"`
	Amount int    `db:"amount"`
}

func (r bookRow) book() (*catalog.Book, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse book id %q: %w", r.ID, err)
	}
	return &catalog.Book{ID: id, Name: r.Name, Author: r.Author, Year: r.Year, ISBN: r.ISBN, Amount: r.Amount}, nil
}

func record(b *catalog.Book) goqu.Record {
	return goqu.Record{
		"id":     b.ID.String(),
		"name":   b.Name,
		"author": b.Author,
		"year":   b.Year,
		"isbn":   b.ISBN,
		"amount": b.Amount,
	}
}

var bookColumns = []any{"id", "name", "author", "year", "isbn", "amount"}

// SQL is a catalog store on a relational database. Statements are built with
// goqu for the configured dialect and executed through sqlx.
type SQL struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	name    string
	tracer  trace.Tracer
}

// NewSQL wraps db. dialect is a goqu dialect name, "sqlite3" or "postgres".
func NewSQL(db *sqlx.DB, dialect string) (*SQL, error) {
	if _, ok := schemas[dialect]; !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &SQL{
		db:      db,
		dialect: goqu.Dialect(dialect),
		name:    dialect,
		tracer:  otel.Tracer("minilibrary/store"),
	}, nil
}

// Migrate creates the books table if it does not exist.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemas[s.name]); err != nil {
		return fmt.Errorf("create books table: %w", err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	ctx, span := s.tracer.Start(ctx, "store.get", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	query, args, err := s.dialect.From(tableBooks).Prepared(true).
		Select(bookColumns...).
		Where(goqu.C("id").Eq(id.String())).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row bookRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return row.book()
}

func (s *SQL) All(ctx context.Context) ([]*catalog.Book, error) {
	ctx, span := s.tracer.Start(ctx, "store.all")
	defer span.End()

	query, args, err := s.dialect.From(tableBooks).Prepared(true).
		Select(bookColumns...).
		Order(goqu.C("seq").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	books := make([]*catalog.Book, 0, len(rows))
	for _, r := range rows {
		b, err := r.book()
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	span.SetAttributes(attribute.Int("books.count", len(books)))
	return books, nil
}

func (s *SQL) Insert(ctx context.Context, book *catalog.Book) error {
	ctx, span := s.tracer.Start(ctx, "store.insert", trace.WithAttributes(attribute.String("book.id", book.ID.String())))
	defer span.End()

	return s.insert(ctx, s.db, book)
}

func (s *SQL) insert(ctx context.Context, ex sqlx.ExecerContext, book *catalog.Book) error {
	query, args, err := s.dialect.Insert(tableBooks).Prepared(true).Rows(record(book)).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, book.ID)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (s *SQL) Replace(ctx context.Context, books []*catalog.Book) error {
	ctx, span := s.tracer.Start(ctx, "store.replace", trace.WithAttributes(attribute.Int("books.count", len(books))))
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := s.dialect.Delete(tableBooks).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear books: %w", err)
	}

	for _, b := range books {
		if err := s.insert(ctx, tx, b); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Adjust applies delta with a single conditional UPDATE and reads the new
// count back inside the same transaction.
func (s *SQL) Adjust(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "store.adjust",
		trace.WithAttributes(
			attribute.String("book.id", id.String()),
			attribute.Int("delta", delta),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	where := []goqu.Expression{goqu.C("id").Eq(id.String())}
	if delta < 0 {
		where = append(where, goqu.C("amount").Gte(-delta))
	}
	update, args, err := s.dialect.Update(tableBooks).Prepared(true).
		Set(goqu.Record{"amount": goqu.L("amount + ?", delta)}).
		Where(where...).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	res, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return 0, fmt.Errorf("adjust amount: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	query, args, err := s.dialect.From(tableBooks).Prepared(true).
		Select("amount").
		Where(goqu.C("id").Eq(id.String())).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var amount int
	if err := tx.GetContext(ctx, &amount, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, catalog.ErrNotFound
		}
		return 0, fmt.Errorf("read amount: %w", err)
	}
	if affected == 0 {
		span.SetAttributes(attribute.Bool("depleted", true))
		return amount, catalog.ErrDepleted
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return amount, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
