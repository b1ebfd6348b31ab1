package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupDevice(t *testing.T) {
	d, ok := LookupDevice("iPhone X")
	require.True(t, ok)
	assert.NotEmpty(t, d.Device().UserAgent)

	_, ok = LookupDevice("Rotary Phone")
	assert.False(t, ok)
}
