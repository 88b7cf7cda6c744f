package domain

import (
	"strings"
)

const cikWidth = 10

// NormalizeCik brings any numeric textual form of a CIK to the fixed-width
// zero-padded representation used for every lookup and cache key.
// Normalization is idempotent: NormalizeCik("884394") and
// NormalizeCik("0000884394") yield the same key.
func NormalizeCik(raw string) (string, error) {
	cik := strings.TrimSpace(raw)
	if cik == "" {
		return "", ErrInvalidCik
	}
	for _, r := range cik {
		if r < '0' || r > '9' {
			return "", ErrInvalidCik
		}
	}

	cik = strings.TrimLeft(cik, "0")
	if cik == "" {
		return "", ErrInvalidCik
	}
	if len(cik) > cikWidth {
		return "", ErrInvalidCik
	}

	return strings.Repeat("0", cikWidth-len(cik)) + cik, nil
}
