// internal/catalog/filter.go
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedClause = errors.New("clause must be field:value")
	ErrUnknownField    = errors.New("unknown field")
	ErrEmptyValue      = errors.New("empty value")
	ErrInvalidRange    = errors.New("invalid year range")
)

// CompileError reports the first clause that failed to compile.
type CompileError struct {
	Clause string
	Kind   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("filter %q: %v", e.Clause, e.Kind)
}

func (e *CompileError) Unwrap() error { return e.Kind }

// Field identifies the book attribute a clause tests.
type Field int

const (
	FieldTitle Field = iota + 1
	FieldAuthor
	FieldISBN
	FieldYear
)

var fieldNames = map[string]Field{
	"name": FieldTitle,
	"auth": FieldAuthor,
	"isbn": FieldISBN,
	"year": FieldYear,
}

func (f Field) String() string {
	for name, field := range fieldNames {
		if field == f {
			return name
		}
	}
	return "Field(" + strconv.Itoa(int(f)) + ")"
}

// Matcher is the closed set of tests a clause can apply. Only this package
// can add variants.
type Matcher interface {
	matcher()
}

// Contains matches a case-insensitive substring. Text is stored lower-cased.
type Contains struct{ Text string }

// Exact matches one year.
type Exact struct{ Year int }

// Range matches years in [Lower, Upper]. An open side holds math.MinInt or
// math.MaxInt.
type Range struct{ Lower, Upper int }

func (Contains) matcher() {}
func (Exact) matcher()    {}
func (Range) matcher()    {}

// Clause is one compiled field:value term.
type Clause struct {
	Field   Field
	Matcher Matcher
}

// Match evaluates the clause against a book.
func (c Clause) Match(b *Book) (bool, error) {
	switch c.Field {
	case FieldTitle:
		return containsText(c, b.Name)
	case FieldAuthor:
		return containsText(c, b.Author)
	case FieldISBN:
		return containsText(c, b.ISBN)
	case FieldYear:
		switch m := c.Matcher.(type) {
		case Exact:
			return b.Year == m.Year, nil
		case Range:
			return b.Year >= m.Lower && b.Year <= m.Upper, nil
		}
	}
	return false, fmt.Errorf("%w: field %v with matcher %T", ErrEvaluation, c.Field, c.Matcher)
}

func containsText(c Clause, value string) (bool, error) {
	m, ok := c.Matcher.(Contains)
	if !ok {
		return false, fmt.Errorf("%w: field %v with matcher %T", ErrEvaluation, c.Field, c.Matcher)
	}
	return strings.Contains(strings.ToLower(value), m.Text), nil
}

// Predicate is the AND of its clauses. The zero value matches every book.
type Predicate []Clause

// Match reports whether b satisfies every clause.
func (p Predicate) Match(b *Book) (bool, error) {
	for _, c := range p {
		ok, err := c.Match(b)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// SplitClauses splits a ';'-joined filter expression into trimmed clauses.
// Empty pieces are kept so that Compile rejects them.
func SplitClauses(expr string) []string {
	if expr == "" {
		return nil
	}
	parts := strings.Split(expr, ";")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Compile turns raw clauses into a predicate. Compilation stops at the first
// malformed clause and returns its *CompileError.
func Compile(raw []string) (Predicate, error) {
	pred := make(Predicate, 0, len(raw))
	for _, r := range raw {
		c, err := compileClause(r)
		if err != nil {
			return nil, &CompileError{Clause: r, Kind: err}
		}
		pred = append(pred, c)
	}
	return pred, nil
}

func compileClause(raw string) (Clause, error) {
	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		return Clause{}, ErrMalformedClause
	}
	field, known := fieldNames[strings.TrimSpace(name)]
	if !known {
		return Clause{}, ErrUnknownField
	}
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	if value == "" {
		return Clause{}, ErrEmptyValue
	}

	if field == FieldYear {
		m, err := parseYear(value)
		if err != nil {
			return Clause{}, err
		}
		return Clause{Field: field, Matcher: m}, nil
	}
	return Clause{Field: field, Matcher: Contains{Text: strings.ToLower(value)}}, nil
}

// parseYear accepts A, A-B, A- and -B.
func parseYear(value string) (Matcher, error) {
	lo, hi, isRange := strings.Cut(value, "-")
	if !isRange {
		n, err := strconv.Atoi(lo)
		if err != nil {
			return nil, ErrInvalidRange
		}
		return Exact{Year: n}, nil
	}

	r := Range{Lower: math.MinInt, Upper: math.MaxInt}
	var err error
	if lo != "" {
		if r.Lower, err = strconv.Atoi(lo); err != nil {
			return nil, ErrInvalidRange
		}
	}
	if hi != "" {
		if r.Upper, err = strconv.Atoi(hi); err != nil {
			return nil, ErrInvalidRange
		}
	}
	return r, nil
}
