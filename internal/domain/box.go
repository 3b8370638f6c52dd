package domain

import (
	"math/big"
	"strings"
)

// ParseBox turns the free-text "x1,y1,x2,y2" field of the form UI into the
// bracketed form the recognizer expects, e.g. "[100,100,500,500]".
// Empty input means no box and returns "", nil.
func ParseBox(input string) (string, error) {
	if input == "" {
		return "", nil
	}

	parts := strings.Split(input, ",")
	coords := make([]string, 0, len(parts))
	for _, p := range parts {
		n, ok := parseCoord(p)
		if !ok {
			return "", ErrBoxNumber
		}
		coords = append(coords, n.String())
	}
	if len(coords) != 4 {
		return "", ErrBoxCount
	}

	return "[" + strings.Join(coords, ",") + "]", nil
}

// parseCoord reads a base-10 integer of any size. Surrounding whitespace, a
// sign, single underscores between digits and full-width digits are accepted.
func parseCoord(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)

	var b strings.Builder
	prevDigit := false
	for i, r := range s {
		switch {
		case r >= '０' && r <= '９':
			r = '0' + (r - '０')
			fallthrough
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDigit = true
		case r == '_':
			if !prevDigit {
				return nil, false
			}
			prevDigit = false
		case (r == '+' || r == '-') && i == 0:
			b.WriteRune(r)
		default:
			return nil, false
		}
	}
	// A trailing underscore or a bare sign leaves no digit at the end.
	if !prevDigit {
		return nil, false
	}

	n, ok := new(big.Int).SetString(b.String(), 10)
	return n, ok
}
