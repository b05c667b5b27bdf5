package conversion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"FAC-000041", "FAC-000042", true},
		{"FAC-000099", "FAC-000100", true},
		{"2024-FAC-9", "2024-FAC-10", true},
		{"INV007", "INV008", true},
		{"42", "43", true},
		{"FAC-", "", false},
		{"BROUILLON", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NextNumber(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}
