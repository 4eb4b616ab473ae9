// internal/console/args.go
package console

import (
	"errors"
	"strings"
	"unicode"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// splitArgs splits a command line on whitespace. Double quotes group words
// into one argument and are kept in the result so filter values can carry them.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
			current.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			started = true
			current.WriteRune(r)
		}
	}
	if quoted {
		return nil, errUnterminatedQuote
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}
