package shortener

import "time"

// Alphabet is the base62 alphabet short codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Code represents a short link code.
type Code string

// URLHash represents a hash of a normalized URL.
type URLHash string

// ShortLink represents a shortened URL entity.
type ShortLink struct {
	Code      Code
	LongURL   string
	URLHash   URLHash // empty for token strategy, populated for hash strategy
	CreatedAt time.Time
	HitCount  int64
}

// Valid reports whether the code is non-empty and uses only base62 characters.
// Codes are case-sensitive and never normalized.
func (c Code) Valid() bool {
	if c == "" || len(c) > maxCodeLength {
		return false
	}

	for i := 0; i < len(c); i++ {
		if !isBase62(c[i]) {
			return false
		}
	}

	return true
}

// reservedCodes are single-segment routes served by the API itself.
var reservedCodes = map[Code]struct{}{
	"health":  {},
	"shorten": {},
	"docs":    {},
	"schemas": {},
}

// Reserved reports whether the code would shadow one of the API's own routes.
func (c Code) Reserved() bool {
	_, ok := reservedCodes[c]

	return ok
}

func isBase62(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
