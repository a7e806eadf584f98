package dataservice

import (
	"strings"
	"unicode"
)

// toSnake turns an operation name such as "BatchInsert" into "batch_insert"
// for log fields and OperationError.Op. Any run of other characters becomes
// one underscore; none lead or trail.
func toSnake(s string) string {
	runes := []rune(s)

	var b strings.Builder
	b.Grow(len(s) + len(s)/2)

	sep := false
	for i, r := range runes {
		boundary := false
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				endsAcronym := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
				boundary = unicode.IsLower(prev) || unicode.IsDigit(prev) || endsAcronym
			}
			r = unicode.ToLower(r)
		case unicode.IsDigit(r):
			boundary = i > 0 && unicode.IsLetter(runes[i-1])
		case unicode.IsLower(r):
		default:
			sep = true
			continue
		}

		if (boundary || sep) && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}

	return b.String()
}
