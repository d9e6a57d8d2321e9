// Package selection resolves free-text user input to a 1-based index into
// an offered list.
package selection

import (
	"strconv"
	"strings"
	"unicode"
)

// Ordinal words and abbreviations in both supported languages. Gendered
// Spanish forms are listed separately because callers use either.
var ordinalWords = map[string]int{
	"first": 1, "1st": 1, "primero": 1, "primera": 1, "uno": 1,
	"second": 2, "2nd": 2, "segundo": 2, "segunda": 2, "dos": 2,
	"third": 3, "3rd": 3, "tercero": 3, "tercera": 3, "tres": 3,
	"fourth": 4, "4th": 4, "cuarto": 4, "cuarta": 4, "cuatro": 4,
	"fifth": 5, "5th": 5, "quinto": 5, "quinta": 5, "cinco": 5,
	"sixth": 6, "6th": 6, "sexto": 6, "sexta": 6, "seis": 6,
	"seventh": 7, "7th": 7, "séptimo": 7, "séptima": 7, "siete": 7,
	"eighth": 8, "8th": 8, "octavo": 8, "octava": 8, "ocho": 8,
	"ninth": 9, "9th": 9, "noveno": 9, "novena": 9, "nueve": 9,
	"tenth": 10, "10th": 10, "décimo": 10, "décima": 10, "diez": 10,
}

// ParseOrdinal scans text for the first standalone integer in [1, maxValid];
// failing that, for the first in-range ordinal word by word order. A zero
// return means no match and the caller must re-prompt rather than guess.
func ParseOrdinal(text string, maxValid int) (int, bool) {
	if maxValid <= 0 {
		return 0, false
	}
	words := tokenize(text)

	for _, w := range words {
		n, err := strconv.Atoi(w)
		if err != nil {
			continue
		}
		if n >= 1 && n <= maxValid {
			return n, true
		}
	}

	for _, w := range words {
		if n, ok := ordinalWords[w]; ok && n <= maxValid {
			return n, true
		}
	}
	return 0, false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
