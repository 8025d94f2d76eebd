package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBanner(t *testing.T) {
	banner := Banner("0123456789abcdef")

	assert.Contains(t, banner, Title)
	assert.Contains(t, banner, "session 01234567")
	assert.Contains(t, banner, "/clear")

	// the caption sits on its own line right under the title
	lines := strings.Split(banner, "\n")
	for i, line := range lines {
		if strings.Contains(line, Title) {
			assert.Contains(t, lines[i+1], Caption)
			return
		}
	}
	t.Fatal("title line not found")
}

func TestPrintError(t *testing.T) {
	var out bytes.Buffer
	PrintError(&out, "failed to load config: %v", "boom")
	assert.Equal(t, "✗ failed to load config: boom\n", out.String())
}
