package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, params.Limit)
	assert.Equal(t, 0, params.Offset)
}

func TestParseClampsLimit(t *testing.T) {
	params, err := Parse("9999", "10")
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, params.Limit)
	assert.Equal(t, 10, params.Offset)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("abc", "")
	assert.Error(t, err)

	_, err = Parse("0", "")
	assert.Error(t, err)

	_, err = Parse("10", "-1")
	assert.Error(t, err)
}
