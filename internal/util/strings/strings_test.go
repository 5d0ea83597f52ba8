package strings

import "testing"

func TestPluralize(t *testing.T) {
	tests := []struct {
		word  string
		count int64
		want  string
	}{
		{"file", 0, "files"},
		{"file", 1, "file"},
		{"file", 3, "files"},
	}
	for _, tt := range tests {
		if got := Pluralize(tt.word, tt.count); got != tt.want {
			t.Errorf("Pluralize(%q, %d) = %q, want %q", tt.word, tt.count, got, tt.want)
		}
	}
}
