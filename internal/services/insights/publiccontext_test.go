package insights

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsShortStrings(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hello", truncate("hello", 5))
}

func TestTruncateNeverSplitsRunes(t *testing.T) {
	// "€" is three bytes; cutting inside it must back off to the rune start
	s := "ab€cd"
	for max := 0; max <= len(s); max++ {
		got := truncate(s, max)
		assert.True(t, utf8.ValidString(got), "max=%d produced invalid UTF-8 %q", max, got)
		assert.LessOrEqual(t, len(got), max)
	}
	assert.Equal(t, "ab", truncate(s, 3), "cut lands mid-rune and backs off")
	assert.Equal(t, "ab", truncate(s, 4))
	assert.Equal(t, "ab€", truncate(s, 5))
}

func TestTruncateLongASCII(t *testing.T) {
	s := strings.Repeat("x", 100)
	assert.Equal(t, strings.Repeat("x", 40), truncate(s, 40))
}
