package phone

import "testing"

func TestDigits(t *testing.T) {
	cases := map[string]string{
		"(62) 99999-1234":   "62999991234",
		"+55 11 98765-4321": "5511987654321",
		"abc":               "",
		"":                  "",
	}
	for in, want := range cases {
		if got := Digits(in); got != want {
			t.Errorf("Digits(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatE164Brazil(t *testing.T) {
	got, ok := FormatE164("(11) 98765-4321", "BR")
	if !ok {
		t.Fatal("expected valid Brazilian mobile number")
	}
	if got != "+5511987654321" {
		t.Fatalf("FormatE164 = %q, want +5511987654321", got)
	}
}

func TestFormatE164RejectsShortInput(t *testing.T) {
	if got, ok := FormatE164("  1234  ", "BR"); ok || got != "" {
		t.Fatalf("FormatE164 = %q, %v; want rejection", got, ok)
	}
	if _, ok := FormatE164("", ""); ok {
		t.Fatal("empty input must not format")
	}
}
