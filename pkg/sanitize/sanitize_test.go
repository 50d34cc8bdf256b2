package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBody(t *testing.T) {
	assert.Equal(t, "hello", Body("  hello  "))
	assert.Equal(t, "line1\nline2", Body("line1\nline2"))
	assert.Equal(t, "ab", Body("a\x00\x07b"))
	assert.Equal(t, "", Body(" \t\n "))

	long := strings.Repeat("x", MaxBodyLength+100)
	assert.Len(t, Body(long), MaxBodyLength)
}

func TestUsername(t *testing.T) {
	assert.Equal(t, "alice", Username("  Alice  "))
	assert.Equal(t, "bob_01", Username("Bob_01"))
	assert.Equal(t, "evescriptdropme", Username("eve<script>drop;me"))
	assert.Equal(t, "", Username("!!!"))
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", Email("  Alice@Example.COM "))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Alice B", DisplayName(" Alice B "))
	assert.Equal(t, "AliceB", DisplayName("Alice\x1bB"))

	long := strings.Repeat("y", MaxDisplayNameLength*2)
	assert.Len(t, DisplayName(long), MaxDisplayNameLength)
}
