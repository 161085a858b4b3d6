package exclusion

import (
	"reflect"
	"testing"
)

func TestIsHostExcluded(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		patterns []string
		want     bool
	}{
		{"nil list", "example.com", nil, false},
		{"empty list", "example.com", []string{}, false},
		{"empty host", "", []string{"example.com"}, false},
		{"exact", "chatgpt.com", []string{"chatgpt.com"}, true},
		{"subdomain", "api.chatgpt.com", []string{"chatgpt.com"}, true},
		{"lookalike", "notchatgpt.com", []string{"chatgpt.com"}, false},
		{"suffix matches subdomain", "shop.example.com", []string{".example.com"}, true},
		{"suffix skips apex", "example.com", []string{".example.com"}, false},
		{"scheme and path", "example.com", []string{"https://example.com/page"}, true},
		{"http scheme", "example.com", []string{"http://example.com"}, true},
		{"case insensitive", "WWW.Example.COM", []string{"  Example.com "}, true},
		{"blank entries skipped", "example.com", []string{"", "   ", "example.com"}, true},
		{"no match", "example.org", []string{"example.com", ".example.net"}, false},
		{"scheme only", "example.com", []string{"https://"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHostExcluded(tt.host, tt.patterns); got != tt.want {
				t.Errorf("IsHostExcluded(%q, %q) = %v, want %v", tt.host, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestMatchingPatternReturnsFirst(t *testing.T) {
	raw, ok := MatchingPattern("a.b.example.com", []string{"other.com", ".example.com", "example.com"})
	if !ok {
		t.Fatal("expected a match")
	}
	if raw != ".example.com" {
		t.Errorf("MatchingPattern() = %q, want %q", raw, ".example.com")
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  HTTPS://Shop.Example.com/cart?x=1 ": "shop.example.com",
		"http://a.com":                         "a.com",
		".Example.com":                         ".example.com",
		"":                                     "",
		"ftp://a.com":                          "ftp:",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLines(t *testing.T) {
	got := ParseLines("chatgpt.com\n\n  .openai.com  \r\n\t\nexample.org")
	want := []string{"chatgpt.com", ".openai.com", "example.org"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseLines() = %q, want %q", got, want)
	}

	if got := ParseLines(""); len(got) != 0 {
		t.Errorf("ParseLines(\"\") = %q, want empty", got)
	}
}

func TestFormatLinesRoundTrip(t *testing.T) {
	in := []string{"a.com", ".b.com"}
	if got := ParseLines(FormatLines(in)); !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %q, want %q", got, in)
	}
}
