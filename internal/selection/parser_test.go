package selection

import "testing"

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxValid int
		want     int
		wantOK   bool
	}{
		{"bare digit", "3", 5, 3, true},
		{"digit in sentence", "I'll take 2 please", 5, 2, true},
		{"ordinal word", "the third one", 5, 3, true},
		{"ordinal abbreviation", "the 2nd works", 5, 2, true},
		{"spanish ordinal", "el segundo por favor", 5, 2, true},
		{"spanish feminine", "la primera", 3, 1, true},
		{"spanish number word", "quiero el dos", 5, 2, true},
		{"out of range digit", "9", 5, 0, false},
		{"out of range ordinal", "the fifth", 3, 0, false},
		{"no match", "banana", 5, 0, false},
		{"empty", "", 5, 0, false},
		{"zero is invalid", "0", 5, 0, false},
		{"digit wins over later ordinal", "option 2, not the first", 5, 2, true},
		{"in-range digit after out-of-range", "not 99, give me 4", 5, 4, true},
		{"case insensitive", "THE FIRST", 5, 1, true},
		{"accented spanish", "el séptimo", 10, 7, true},
		{"zero candidates", "1", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOrdinal(tt.text, tt.maxValid)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("ParseOrdinal(%q, %d) = (%d, %v), want (%d, %v)",
					tt.text, tt.maxValid, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
