package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 120))

	long := strings.Repeat("界", 200)
	out := truncate(long, 120)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("界", 120)+"…", out)
}
