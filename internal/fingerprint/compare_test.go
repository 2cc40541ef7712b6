package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "identical strings",
			a:    "energy=100.0 step=1",
			b:    "energy=100.0 step=1",
			want: true,
		},
		{
			name: "tolerant numeric match",
			a:    "energy=1.0000000001",
			b:    "energy=1.0",
			want: true,
		},
		{
			name: "numeric perturbation within epsilon on both sides of zero",
			a:    "delta=1e-11",
			b:    "delta=-1e-11",
			want: true,
		},
		{
			name: "numeric mismatch beyond epsilon",
			a:    "energy=1.0",
			b:    "energy=1.001",
			want: false,
		},
		{
			name: "non-numeric token mismatch",
			a:    "state=solid",
			b:    "state=liquid",
			want: false,
		},
		{
			name: "numeric vs non-numeric in corresponding slot",
			a:    "value=1.0",
			b:    "value=nope",
			want: false,
		},
		{
			name: "different token counts",
			a:    "a=1 b=2",
			b:    "a=1",
			want: false,
		},
		{
			name: "consecutive separators collapse to no empty tokens",
			a:    "a==1   b=2",
			b:    "a=1 b=2",
			want: true,
		},
		{
			name: "token order is significant",
			a:    "a=1 b=2",
			b:    "b=2 a=1",
			want: false,
		},
		{
			name: "empty strings match",
			a:    "",
			b:    "",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCompareIsReflexiveAndSymmetric(t *testing.T) {
	samples := []string{
		"energy=1.0 step=4",
		"",
		"state=liquid count=3",
		"a=1 b=2 c=3",
	}
	for _, s := range samples {
		assert.True(t, Compare(s, s), "Compare should be reflexive for %q", s)
	}

	pairs := [][2]string{
		{"energy=1.0", "energy=1.0000000001"},
		{"energy=1.0", "energy=2.0"},
		{"a=1", "b=1"},
	}
	for _, p := range pairs {
		assert.Equal(t, Compare(p[0], p[1]), Compare(p[1], p[0]), "Compare should be symmetric for %v", p)
	}
}
