package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  rune
	}{
		{"comma", []string{"a,b,c", "d,e,f"}, ','},
		{"tab", []string{"a\tb\tc", "d\te\tf"}, '\t'},
		{"semicolon", []string{"a;b;c", "d;e;f"}, ';'},
		{"pipe", []string{"a|b", "c|d"}, '|'},
		{"tie prefers comma", []string{"a,b;c", "d,e;f"}, ','},
		{"blank lines skipped", []string{"", "  ", "a;b", "c;d"}, ';'},
		{"empty input defaults to comma", nil, ','},
		{"only blank lines defaults to comma", []string{"", "   "}, ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDelimiter(tt.lines))
		})
	}
}
