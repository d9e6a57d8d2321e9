package language

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hello, I would like to book an appointment", English},
		{"hola, quiero agendar una cita por favor", Spanish},
		{"¿cómo está usted?", Spanish},
		{"", English},
		{"xyzzy", English},
		{"sí", Spanish},
	}
	for _, tt := range tests {
		if got := Detect(tt.text); got != tt.want {
			t.Fatalf("Detect(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestResolveStickiness(t *testing.T) {
	// First message establishes the language.
	if got := Resolve("", "hola, buenos días"); got != Spanish {
		t.Fatalf("established = %q, want es", got)
	}

	// Short turns keep the established language even if detection differs.
	if got := Resolve(Spanish, "2"); got != Spanish {
		t.Fatalf("short turn flipped language to %q", got)
	}
	if got := Resolve(English, "sí"); got != English {
		t.Fatalf("short turn flipped language to %q", got)
	}

	// Three or more words re-run detection.
	if got := Resolve(Spanish, "I want to speak english please"); got != English {
		t.Fatalf("long english turn kept %q", got)
	}
	if got := Resolve(English, "quiero hablar español por favor"); got != Spanish {
		t.Fatalf("long spanish turn kept %q", got)
	}

	// Re-detection agreeing with the established language is a no-op.
	if got := Resolve(English, "thank you very much"); got != English {
		t.Fatalf("agreeing verdict changed language to %q", got)
	}
}
