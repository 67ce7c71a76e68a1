package currency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		amount    float64
		expected  int64
		expectErr bool
	}{
		{name: "whole_amount", amount: 5000, expected: 500000},
		{name: "fractional_amount", amount: 12.34, expected: 1234},
		{name: "rounds_half_up", amount: 0.005, expected: 1},
		{name: "float_representation", amount: 19.99, expected: 1999},
		{name: "zero", amount: 0, expectErr: true},
		{name: "negative", amount: -10, expectErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			minor, err := MinorUnits(tc.amount)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, minor)
		})
	}
}
