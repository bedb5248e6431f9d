package ezo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFixed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, " 5.32", FormatFixed(5.32, 5, 2))
	assert.Equal(t, " 410.0", FormatFixed(410, 6, 1))
	assert.Equal(t, "-999", FormatFixed(NoSensorData, 0, 0))
	assert.Equal(t, "12345.678", FormatFixed(12345.678, 4, 3))
}

func TestECFormat(t *testing.T) {
	t.Parallel()

	type Case struct {
		v     float64
		width int
		prec  int
	}
	cases := []Case{
		{0, 5, 2},
		{5.32, 5, 2},
		{99.99, 5, 2},
		{150.5, 5, 1},
		{999.9, 5, 1},
		{1000, 4, 0},
		{9999, 4, 0},
		{9999.5, 6, 0},
		{10000, 5, 0},
		{99990, 5, 0},
		{150000, 6, 0},
	}
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			assert.Equal(t, c.width, ecWidth(c.v))
			assert.Equal(t, c.prec, ecPrecision(c.v))
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"?O", "EC", "TDS"}, tokenize("?O,EC,TDS\r"))
	assert.Equal(t, []string{"1", "2"}, tokenize(",1,,2,"))
	assert.Len(t, tokenize(""), 0)

	b := NewBuffer(4)
	b.Set([]byte("123456"))
	assert.Equal(t, "1234", b.String())
	assert.Equal(t, 4, b.Cap())
	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestParseNumbers(t *testing.T) {
	t.Parallel()

	f, err := parseFloat(" 7.85")
	require.NoError(t, err)
	assert.Equal(t, 7.85, f)
	_, err = parseFloat("*OK")
	assert.Error(t, err)
	_, err = parseInt("1.5")
	assert.Error(t, err)
}
