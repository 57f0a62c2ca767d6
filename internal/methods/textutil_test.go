package methods

import (
	"reflect"
	"strings"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newlines to spaces", "a\nb\nc", "a b c"},
		{"tabs to spaces", "a\tb", "a b"},
		{"collapse runs", "a   b     c", "a b c"},
		{"trim", "  a b  ", "a b"},
		{"strip double quotes", `"quoted text"`, "quoted text"},
		{"strip single quotes", "'quoted text'", "quoted text"},
		{"crlf", "a\r\nb", "a b"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clean(tt.in); got != tt.want {
				t.Errorf("clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConcatRepeat(t *testing.T) {
	if got := concatRepeat("q", "expansion", 3); got != "q q q expansion" {
		t.Errorf("concatRepeat() = %q", got)
	}
	// Repeats below one are clamped.
	if got := concatRepeat("q", "x", 0); got != "q x" {
		t.Errorf("concatRepeat(repeats=0) = %q", got)
	}
}

func TestConcatAdaptive(t *testing.T) {
	// len(generated)=21, len(query)=2, ratio=2: (21/2)/2 = 5 repeats.
	query := "ab"
	generated := "0123456789 0123456789"
	got := concatAdaptive(query, generated, 2)
	wantPrefix := strings.Repeat("ab ", 5)
	if !strings.HasPrefix(got, wantPrefix) {
		t.Errorf("concatAdaptive() = %q, want prefix %q", got, wantPrefix)
	}
	if !strings.HasSuffix(got, generated) {
		t.Errorf("concatAdaptive() = %q, want suffix %q", got, generated)
	}

	// Short generations still yield one repeat.
	if got := concatAdaptive("long query text", "x", 5); got != "long query text x" {
		t.Errorf("concatAdaptive(short) = %q", got)
	}
}

func TestConcatInterleave(t *testing.T) {
	got := concatInterleave("q", []string{"p1", "p2"})
	if got != "q p1 q p2" {
		t.Errorf("concatInterleave() = %q, want %q", got, "q p1 q p2")
	}
	if got := concatInterleave("q", nil); got != "" {
		t.Errorf("concatInterleave(no passages) = %q, want empty", got)
	}
}

func TestMergeDedup(t *testing.T) {
	got := mergeDedup([]string{
		"solar, wind, Hydro",
		"wind; geothermal\nsolar",
		"tidal",
	})
	want := "solar wind Hydro geothermal tidal"
	if got != want {
		t.Errorf("mergeDedup() = %q, want %q", got, want)
	}
}

func TestContextBlob(t *testing.T) {
	blob, used := contextBlob([]string{"first passage", "second passage", "third"}, 2)
	if used != 2 {
		t.Errorf("contextBlob() used = %d, want 2", used)
	}
	want := "1. first passage\n2. second passage"
	if blob != want {
		t.Errorf("contextBlob() = %q, want %q", blob, want)
	}

	// k=0 means no truncation.
	_, used = contextBlob([]string{"a", "b"}, 0)
	if used != 2 {
		t.Errorf("contextBlob(k=0) used = %d, want 2", used)
	}
}

func TestNonEmpty(t *testing.T) {
	got := nonEmpty([]string{"a", "", "  ", "b"})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("nonEmpty() = %v", got)
	}
}
