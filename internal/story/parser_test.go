package story

import (
	"strings"
	"testing"
)

func TestParseChoicesWellFormed(t *testing.T) {
	raw := "1. The knight drew her sword.\n2. A duck waddled past, quacking ominously.\n3. The castle was actually a mimic."

	choices := ParseChoices(raw)

	if len(choices) != NumChoices {
		t.Fatalf("len(choices) = %d, want %d", len(choices), NumChoices)
	}
	want := []string{
		"The knight drew her sword.",
		"A duck waddled past, quacking ominously.",
		"The castle was actually a mimic.",
	}
	for i := range want {
		if choices[i] != want[i] {
			t.Errorf("choices[%d] = %q, want %q", i, choices[i], want[i])
		}
	}
}

func TestParseChoicesSurroundingProse(t *testing.T) {
	raw := "Here are three continuations for your story:\n\n" +
		"1. Option one.\n" +
		"2. Option two.\n" +
		"3. Option three.\n\n" +
		"I hope these spark your imagination!"

	choices := ParseChoices(raw)

	for i, want := range []string{"Option one.", "Option two.", "Option three."} {
		if choices[i] != want {
			t.Errorf("choices[%d] = %q, want %q", i, choices[i], want)
		}
	}
}

func TestParseChoicesMissingEntriesFilledWithFallbacks(t *testing.T) {
	choices := ParseChoices("2. Only the middle option survived.")

	if len(choices) != NumChoices {
		t.Fatalf("len(choices) = %d, want %d", len(choices), NumChoices)
	}
	if !IsFallback(choices[0]) {
		t.Errorf("choices[0] = %q, want fallback", choices[0])
	}
	if choices[1] != "Only the middle option survived." {
		t.Errorf("choices[1] = %q", choices[1])
	}
	if !IsFallback(choices[2]) {
		t.Errorf("choices[2] = %q, want fallback", choices[2])
	}
}

func TestParseChoicesEmptyInputAllFallbacks(t *testing.T) {
	for _, raw := range []string{"", "   \n\n  ", "no numbered list here at all"} {
		choices := ParseChoices(raw)
		if got := countFallbacks(choices); got != NumChoices {
			t.Errorf("ParseChoices(%q): %d fallbacks, want %d", raw, got, NumChoices)
		}
	}
}

func TestParseChoicesIgnoresOutOfRangeNumbers(t *testing.T) {
	raw := "0. Before the menu.\n1. Real one.\n2. Real two.\n3. Real three.\n4. Bonus round."

	choices := ParseChoices(raw)

	for _, c := range choices {
		if strings.Contains(c, "Before") || strings.Contains(c, "Bonus") {
			t.Errorf("out-of-range entry leaked into choices: %q", c)
		}
	}
}

func TestParseChoicesFirstOccurrenceWins(t *testing.T) {
	raw := "1. First version.\n1. Second version.\n2. Two.\n3. Three."

	choices := ParseChoices(raw)

	if choices[0] != "First version." {
		t.Errorf("choices[0] = %q, want first occurrence", choices[0])
	}
}

func TestParseChoicesIndentedAndSpaced(t *testing.T) {
	raw := "  1.   Indented option.  \n\t2. Tabbed option.\n3.Squeezed option."

	choices := ParseChoices(raw)

	if choices[0] != "Indented option." {
		t.Errorf("choices[0] = %q", choices[0])
	}
	if choices[1] != "Tabbed option." {
		t.Errorf("choices[1] = %q", choices[1])
	}
	if choices[2] != "Squeezed option." {
		t.Errorf("choices[2] = %q", choices[2])
	}
}

func TestFallbackChoiceIsRecognizable(t *testing.T) {
	for i := 1; i <= NumChoices; i++ {
		if !IsFallback(fallbackChoice(i)) {
			t.Errorf("fallbackChoice(%d) not recognized by IsFallback", i)
		}
	}
	if IsFallback("The hero pressed on.") {
		t.Error("ordinary text misclassified as fallback")
	}
}
