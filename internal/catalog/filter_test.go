package catalog

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func matches(t *testing.T, p Predicate, b Book) bool {
	t.Helper()
	ok, err := p.Match(&b)
	require.NoError(t, err)
	return ok
}

func TestCompileYearRanges(t *testing.T) {
	tests := []struct {
		clause  string
		match   []int
		noMatch []int
	}{
		{clause: "year:1999-2002", match: []int{1999, 2000, 2002}, noMatch: []int{1998, 2003}},
		{clause: "year:2020-", match: []int{2020, 2021, math.MaxInt}, noMatch: []int{2019}},
		{clause: "year:-1950", match: []int{1950, 1000, math.MinInt}, noMatch: []int{1951}},
		{clause: "year:2000", match: []int{2000}, noMatch: []int{1999, 2001}},
		{clause: `year:"1999-2002"`, match: []int{2001}, noMatch: []int{2003}},
	}

	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			p, err := Compile([]string{tt.clause})
			require.NoError(t, err)

			for _, y := range tt.match {
				assert.True(t, matches(t, p, Book{Year: y}), "year %d", y)
			}
			for _, y := range tt.noMatch {
				assert.False(t, matches(t, p, Book{Year: y}), "year %d", y)
			}
		})
	}
}

func TestCompileSingleYearIsExact(t *testing.T) {
	p, err := Compile([]string{"year:2000"})
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, Exact{Year: 2000}, p[0].Matcher)

	p, err = Compile([]string{"year:2020-"})
	require.NoError(t, err)
	assert.Equal(t, Range{Lower: 2020, Upper: math.MaxInt}, p[0].Matcher)
}

func TestCompileAndsClauses(t *testing.T) {
	books := []Book{
		{Name: "The Winds of Winter", Author: "George R. R. Martin", Year: 2050},
		{Name: "A Dream of Spring", Author: "Brandon Sanderson", Year: 2051},
		{Name: "A Dream of Summer", Author: "Brandon Sanderson", Year: 2052},
	}

	p, err := Compile([]string{"name:Dream", "auth:Sanderson"})
	require.NoError(t, err)

	var found []string
	for _, b := range books {
		if matches(t, p, b) {
			found = append(found, b.Name)
		}
	}
	assert.Equal(t, []string{"A Dream of Spring", "A Dream of Summer"}, found)
}

func TestCompileTextIsCaseInsensitiveSubstring(t *testing.T) {
	p, err := Compile([]string{`auth:"sANDERson"`, "isbn:978"})
	require.NoError(t, err)

	assert.True(t, matches(t, p, Book{Author: "Brandon Sanderson", ISBN: "978-0-00-000000-1"}))
	assert.False(t, matches(t, p, Book{Author: "Brandon Sanderson", ISBN: "0-00"}))
	assert.False(t, matches(t, p, Book{Author: "Martin", ISBN: "978"}))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    []string
		kind   error
		clause string
	}{
		{name: "unparseable lower bound", raw: []string{"year:abc-2000"}, kind: ErrInvalidRange, clause: "year:abc-2000"},
		{name: "unparseable upper bound", raw: []string{"year:2000-x"}, kind: ErrInvalidRange, clause: "year:2000-x"},
		{name: "unparseable exact", raw: []string{"year:nineteen"}, kind: ErrInvalidRange, clause: "year:nineteen"},
		{name: "two dashes", raw: []string{"year:1-2-3"}, kind: ErrInvalidRange, clause: "year:1-2-3"},
		{name: "unknown field", raw: []string{"color:red"}, kind: ErrUnknownField, clause: "color:red"},
		{name: "empty field", raw: []string{":red"}, kind: ErrUnknownField, clause: ":red"},
		{name: "empty value", raw: []string{"name:"}, kind: ErrEmptyValue, clause: "name:"},
		{name: "quoted empty value", raw: []string{`name:""`}, kind: ErrEmptyValue, clause: `name:""`},
		{name: "no separator", raw: []string{"dream"}, kind: ErrMalformedClause, clause: "dream"},
		{name: "empty clause", raw: []string{"name:a", ""}, kind: ErrMalformedClause, clause: ""},
		{name: "first error wins", raw: []string{"name:ok", "color:red", "year:x"}, kind: ErrUnknownField, clause: "color:red"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.raw)
			assert.Nil(t, p)
			require.ErrorIs(t, err, tt.kind)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.clause, ce.Clause)
		})
	}
}

func TestEmptyPredicateMatchesEverything(t *testing.T) {
	p, err := Compile(nil)
	require.NoError(t, err)
	assert.True(t, matches(t, p, Book{Name: "anything"}))
}

func TestClauseRejectsMismatchedMatcher(t *testing.T) {
	c := Clause{Field: FieldYear, Matcher: Contains{Text: "x"}}
	_, err := c.Match(&Book{})
	assert.ErrorIs(t, err, ErrEvaluation)

	c = Clause{Field: FieldTitle, Matcher: Exact{Year: 1}}
	_, err = c.Match(&Book{})
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestSplitClauses(t *testing.T) {
	assert.Equal(t, []string{"name:a", "", "year:2000", ""}, SplitClauses("name:a; ;year:2000;"))
	assert.Equal(t, []string{"", ""}, SplitClauses(";"))
	assert.Empty(t, SplitClauses(""))
}

func TestEmptyClauseIsRejected(t *testing.T) {
	for _, expr := range []string{";", "name:Dream;", "name:a;;auth:b", " ; name:a"} {
		t.Run(expr, func(t *testing.T) {
			p, err := Compile(SplitClauses(expr))
			assert.Nil(t, p)
			require.ErrorIs(t, err, ErrMalformedClause)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Empty(t, ce.Clause)
		})
	}
}

func TestRangeMatchesInclusiveBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.IntRange(-5000, 5000).Draw(t, "lo")
		hi := rapid.IntRange(lo, 5000).Draw(t, "hi")
		year := rapid.IntRange(-6000, 6000).Draw(t, "year")

		p, err := Compile([]string{fmt.Sprintf("year:%d-%d", lo, hi)})
		if lo < 0 {
			// A leading minus reads as an open lower bound followed by junk.
			if err == nil {
				t.Fatalf("expected error for negative lower bound %d", lo)
			}
			return
		}
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		ok, err := p.Match(&Book{Year: year})
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		if want := year >= lo && year <= hi; ok != want {
			t.Fatalf("year %d in [%d,%d]: got %v want %v", year, lo, hi, ok, want)
		}
	})
}

func TestClauseOrderDoesNotChangeResult(t *testing.T) {
	pool := []string{"name:a", "name:the", "auth:san", "isbn:97", "year:2000-", "year:-2051", "year:2050"}
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfNDistinct(rapid.SampledFrom(pool), 1, len(pool), rapid.ID[string]).Draw(t, "clauses")
		perm := rapid.Permutation(raw).Draw(t, "perm")
		b := Book{
			Name:   rapid.SampledFrom([]string{"The Way of Kings", "A Dream of Spring", "Mistborn"}).Draw(t, "name"),
			Author: rapid.SampledFrom([]string{"Brandon Sanderson", "George R. R. Martin"}).Draw(t, "author"),
			ISBN:   rapid.SampledFrom([]string{"978-0765326355", "0-00"}).Draw(t, "isbn"),
			Year:   rapid.IntRange(1990, 2060).Draw(t, "year"),
		}

		p1, err := Compile(raw)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		p2, err := Compile(perm)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		a, _ := p1.Match(&b)
		c, _ := p2.Match(&b)
		if a != c {
			t.Fatalf("order changed result: %v vs %v", raw, perm)
		}
	})
}
