package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short", "Hi", 0},
		{"four chars", "abcd", 1},
		{"sentence", "How do I set up my shop?", 6},
		{"multibyte counts characters", "ééééé", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short...", Excerpt("short", 10))
	assert.Equal(t, "exact...", Excerpt("exact", 5))
	assert.Equal(t, "abc...", Excerpt("abcdef", 3))
	assert.Equal(t, "...", Excerpt("abc", 0))
	assert.Equal(t, "...", Excerpt("", 500))

	long := strings.Repeat("x", 600)
	out := Excerpt(long, 500)
	assert.Len(t, out, 503)
	assert.True(t, strings.HasSuffix(out, "..."))

	assert.Equal(t, "日本...", Excerpt("日本語テキスト", 2))
}
