package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRationalFromString(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    Rational
		wantErr bool
	}{
		{"1/1", Rational{1, 1}, false},
		{"30000/1001", Rational{30000, 1001}, false},
		{"0/1", Rational{0, 1}, false},
		{"1/0", Rational{}, true},
		{"invalid", Rational{}, true},
	} {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			r, err := RationalFromString(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, *r)
			require.Equal(t, tc.input, r.String())
		})
	}
}
