package moderation

import "testing"

func TestNewFilter(t *testing.T) {
	f := NewFilter()
	if f == nil {
		t.Fatal("NewFilter returned nil")
	}
	if f.Empty() {
		t.Fatal("NewFilter created an empty filter")
	}
}

func TestCheck_BlockedSingleWord(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	cases := []struct {
		name string
		text string
	}{
		{"plain", "you are a badword"},
		{"uppercase", "YOU ARE A BADWORD"},
		{"mixed case", "you are a BadWord"},
		{"punctuation boundary", "badword!"},
		{"second term", "that was offensive, friend"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := f.Check(tc.text)
			if !result.Blocked {
				t.Fatalf("Check(%q) not blocked", tc.text)
			}
			if result.Reason != "blocked_term" {
				t.Errorf("reason = %q, want blocked_term", result.Reason)
			}
		})
	}
}

func TestCheck_BlockedPhrase(t *testing.T) {
	f := NewFilterWithTerms([]string{"kill yourself", "go die"})

	result := f.Check("why don't you just kill yourself already")
	if !result.Blocked {
		t.Fatal("expected phrase to be blocked")
	}
	if result.Term != "kill yourself" {
		t.Errorf("term = %q, want %q", result.Term, "kill yourself")
	}

	if f.Check("kill the heat and let it rest").Blocked {
		t.Error("partial phrase should not be blocked")
	}
}

func TestCheck_Leetspeak(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	cases := []struct {
		name    string
		text    string
		blocked bool
	}{
		{"zero for o", "b4dw0rd", true},
		{"mixed leet", "0ff3n$!v3", true},
		{"clean text", "what a lovely day", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := f.Check(tc.text)
			if result.Blocked != tc.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tc.text, result.Blocked, tc.blocked)
			}
		})
	}
}

func TestCheck_CleanMessages(t *testing.T) {
	f := NewFilter()

	clean := []string{
		"hola, alguien tiene una receta de paella?",
		"I added two eggs and it worked great",
		"prueba con menos sal la proxima vez",
		"https://example.com/recetas/tortilla",
	}
	for _, text := range clean {
		if result := f.Check(text); result.Blocked {
			t.Errorf("Check(%q) blocked (term=%q), want clean", text, result.Term)
		}
	}
}

func TestNewFilterWithTerms_EmptyAndWhitespace(t *testing.T) {
	f := NewFilterWithTerms([]string{"", "  ", "valid"})
	if f.Empty() {
		t.Fatal("expected filter to keep the valid term")
	}
	if !f.Check("valid").Blocked {
		t.Error("expected valid term to block")
	}
}

func TestNormalizeLeet(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"h3ll0", "hello"},
		{"p@$$word", "password"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		if got := normalizeLeet(tc.in); got != tc.want {
			t.Errorf("normalizeLeet(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("hola, mundo! que tal?")
	want := []string{"hola", "mundo", "que", "tal"}
	if len(got) != len(want) {
		t.Fatalf("tokenize returned %d words, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
