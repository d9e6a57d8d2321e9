// Package language scores text as English or Spanish and applies the
// per-conversation stickiness policy.
package language

import (
	"strings"
	"unicode"
)

const (
	English = "en"
	Spanish = "es"
)

// Turns shorter than this many words never flip an established language;
// a bare "2" or "sí" mid-flow must not change the conversation locale.
const minWordsForSwitch = 3

var spanishIndicators = map[string]struct{}{
	"hola": {}, "gracias": {}, "por": {}, "favor": {}, "quiero": {},
	"necesito": {}, "cita": {}, "buenos": {}, "buenas": {}, "días": {},
	"tardes": {}, "noches": {}, "como": {}, "cómo": {}, "está": {},
	"usted": {}, "para": {}, "una": {}, "puedo": {}, "quisiera": {},
	"mañana": {}, "nombre": {}, "correo": {}, "teléfono": {}, "sí": {},
	"agendar": {}, "reservar": {}, "disponible": {}, "horario": {},
}

var englishIndicators = map[string]struct{}{
	"hello": {}, "hi": {}, "thanks": {}, "thank": {}, "please": {},
	"want": {}, "need": {}, "appointment": {}, "good": {}, "morning": {},
	"afternoon": {}, "evening": {}, "how": {}, "are": {}, "you": {},
	"the": {}, "would": {}, "like": {}, "can": {}, "could": {},
	"tomorrow": {}, "name": {}, "email": {}, "phone": {}, "yes": {},
	"schedule": {}, "book": {}, "available": {}, "time": {},
}

const spanishChars = "áéíóúñü¿¡"

// Detect scores text by indicator-word matches plus Spanish-specific
// characters (weighted double) and returns "es" or "en". Empty or
// undecidable input defaults to English.
func Detect(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return English
	}

	charCount := 0
	for _, r := range normalized {
		if strings.ContainsRune(spanishChars, r) {
			charCount++
		}
	}

	spanishScore := charCount * 2
	englishScore := 0
	for _, w := range tokenize(normalized) {
		if _, ok := spanishIndicators[w]; ok {
			spanishScore++
		}
		if _, ok := englishIndicators[w]; ok {
			englishScore++
		}
	}

	switch {
	case spanishScore > englishScore:
		return Spanish
	case englishScore > spanishScore:
		return English
	case charCount > 0:
		return Spanish
	default:
		return English
	}
}

// Resolve applies the stickiness policy: the first turn establishes the
// language; afterwards a turn must carry at least three words before a
// differing detection verdict replaces the established one.
func Resolve(established, text string) string {
	if established == "" {
		return Detect(text)
	}
	if len(strings.Fields(text)) < minWordsForSwitch {
		return established
	}
	return Detect(text)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
