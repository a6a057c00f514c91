package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\n\txy"
	out := SanitizeText(in)
	if out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestDisplaySnippetTruncates(t *testing.T) {
	out := DisplaySnippet("word word word word", 9)
	if out != "word word..." {
		t.Fatalf("unexpected snippet: %q", out)
	}
}
