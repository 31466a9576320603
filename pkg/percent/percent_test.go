package percent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"materialcore/pkg/domain"
	"materialcore/testutil"
)

func TestRound(t *testing.T) {
	cases := []struct {
		in       float64
		decimals int
		want     float64
	}{
		{0.125, 2, 0.13},
		{0.124999, 2, 0.12},
		{-0.125, 2, -0.13},
		{1.005, 2, 1.01},
		{60.00000000000001, 8, 60},
		{0.5, 0, 1},
		{12, 3, 12},
		{0.000000000049, 10, 0},
		{0.00000000005, 10, 0.0000000001},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Round(tc.in, tc.decimals), "Round(%v, %d)", tc.in, tc.decimals)
	}
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
	assert.Equal(t, math.Inf(1), Round(math.Inf(1), 2))
	assert.Equal(t, 0.125, Round(0.125, -1))
}

func TestToFraction(t *testing.T) {
	f, err := ToFraction(60)
	require.NoError(t, err)
	assert.Equal(t, 0.6, f)

	f, err = ToFraction(33.333333333333)
	require.NoError(t, err)
	assert.Equal(t, 0.3333333333, f)

	for _, bad := range []float64{-0.1, 100.01, math.NaN()} {
		_, err := ToFraction(bad)
		assert.ErrorIs(t, err, domain.ErrOutOfRange, "input %v", bad)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "60.0", Format(0.6))
	assert.Equal(t, "12.5", Format(0.125))
	assert.Equal(t, "100.0", Format(1))
	assert.Equal(t, "0.0", Format(0))
	assert.Equal(t, "33.33333333", Format(0.3333333333))
	assert.Equal(t, "0.0", Format(-0.0000000000001))
}

func TestParse(t *testing.T) {
	for in, want := range map[string]float64{
		"60":       0.6,
		" 12.5 % ": 0.125,
		"7,25":     0.0725,
		"100%":     1,
	} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := Parse("sixty")
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	_, err = Parse("101")
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestPercentageRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// any percentage with at most eight decimals survives a round trip
		units := rapid.Int64Range(0, 100*1e8).Draw(t, "units")
		p := float64(units) / 1e8
		f, err := ToFraction(p)
		if err != nil {
			t.Fatalf("ToFraction(%v): %v", p, err)
		}
		if got := ToPercentage(f); got != Round(p, PercentageDecimals) {
			t.Fatalf("round trip %v -> %v -> %v", p, f, got)
		}
	})
}

func TestFractionStaysInRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := rapid.Float64Range(0, 100).Draw(t, "p")
		f, err := ToFraction(p)
		if err != nil {
			t.Fatalf("ToFraction(%v): %v", p, err)
		}
		if f < 0 || f > 1 {
			t.Fatalf("fraction %v out of range for %v", f, p)
		}
		if math.Abs(f-p/100) > 0.5e-10+1e-15 {
			t.Fatalf("fraction %v too far from %v", f, p/100)
		}
	})
}

func TestPercentStaysOutOfInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InternalImportForbidden, testutil.DriverImportForbidden), "percent conversions are a leaf package")
}
