package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNonEmptyString(t *testing.T) {
	t.Parallel()

	require.True(t, IsNonEmptyString("x"))
	require.True(t, IsNonEmptyString("  x  "))
	require.False(t, IsNonEmptyString(""))
	require.False(t, IsNonEmptyString(" \t\n"))
}

func TestIsFinite(t *testing.T) {
	t.Parallel()

	require.True(t, IsFinite(0))
	require.True(t, IsFinite(-3.5))
	require.False(t, IsFinite(math.NaN()))
	require.False(t, IsFinite(math.Inf(1)))
	require.False(t, IsFinite(math.Inf(-1)))
}

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"80", 80, true},
		{"1", 1, true},
		{"0", 0, false},
		{"", 0, false},
		{"-5", 0, false},
		{"+5", 0, false},
		{" 24", 0, false},
		{"24x", 0, false},
		{"3.0", 0, false},
		{"99999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParsePositiveInt(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
