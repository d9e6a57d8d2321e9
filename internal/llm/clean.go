package llm

import (
	"strings"
	"unicode"
)

// CleanField normalizes an extracted value before it is merged into the
// session. Unknown field names pass through trimmed.
func CleanField(name, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	switch name {
	case "phone":
		return cleanPhone(value)
	case "email":
		return strings.ToLower(value)
	case "name":
		return titleCase(value)
	default:
		return value
	}
}

func cleanPhone(v string) string {
	var b strings.Builder
	for i, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, "+") {
		digits = "+1" + digits
	}
	return digits
}

func titleCase(v string) string {
	words := strings.Fields(strings.ToLower(v))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
