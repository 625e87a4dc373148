package currency

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1"},
		{"0.10", "0.1"},
		{"12.25", "12.25"},
		{"0.000000000000000001", "0.000000000000000001"},
		{"100", "100"},
	} {
		a, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, a.String(), tt.in)
	}
}

func TestParseTruncatesExcessPrecision(t *testing.T) {
	a, err := Parse("0.0000000000000000019")
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000001", a.String())
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "-0.5", "1.2.3"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestArithmetic(t *testing.T) {
	a := MustParse("5")
	b := MustParse("1.25")

	assert.Equal(t, "6.25", a.Add(b).String())
	assert.Equal(t, "3.75", a.Sub(b).String())
	assert.True(t, b.LessThan(a))
	assert.True(t, a.GreaterThan(b))
	assert.Equal(t, 0, a.Cmp(MustParse("5.00")))
}

func TestZeroValueIsSafe(t *testing.T) {
	var a Amount
	assert.True(t, a.IsZero())
	assert.False(t, a.IsPositive())
	assert.Equal(t, "0", a.String())
	assert.Equal(t, "1", a.Add(MustParse("1")).String())
}

func TestWeiCopies(t *testing.T) {
	a := MustParse("1")
	w := a.Wei()
	w.SetInt64(0)
	assert.Equal(t, "1", a.String())

	src := big.NewInt(5)
	b := FromWei(src)
	src.SetInt64(9)
	assert.Equal(t, "0.000000000000000005", b.String())
}
