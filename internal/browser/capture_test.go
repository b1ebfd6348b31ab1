package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthToInches(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"96px", 1},
		{"48", 0.5},
		{"1in", 1},
		{"2.54cm", 1},
		{"25.4mm", 1},
		{" 10px ", 10.0 / 96},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := lengthToInches(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}

	for _, bad := range []string{"", "abc", "10pt", "px"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := lengthToInches(bad)
			assert.Error(t, err)
		})
	}
}

func TestPaperFormats(t *testing.T) {
	a4, ok := paperFormats["a4"]
	require.True(t, ok)
	assert.InDelta(t, 8.27, a4[0], 1e-9)
	assert.InDelta(t, 11.7, a4[1], 1e-9)

	letter, ok := paperFormats["letter"]
	require.True(t, ok)
	assert.Equal(t, [2]float64{8.5, 11}, letter)

	_, ok = paperFormats["b5"]
	assert.False(t, ok)
}
