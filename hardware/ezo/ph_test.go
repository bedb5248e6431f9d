package ezo

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPHRead(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		replies []string
		expect  float64
		text    string
		cause   error
	}
	cases := []Case{
		{"ok", []string{"7.00", "*OK"}, 7, " 7.00", nil},
		{"acid", []string{"3.456", "*OK"}, 3.456, " 3.46", nil},
		{"code-instead-of-result", []string{"*ER"}, SensorCommsFailed, "-777.00", ErrCommsFailed},
		{"silent", nil, NoSensorComms, "-888.00", ErrNoComms},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			e, mt := NewTestEngine(t)
			e.SetResponseMode(TriOn)
			ph := NewPH(e)
			mt.Expect("R\r", c.replies...)
			_, err := ph.Read(context.Background())
			if c.cause == nil {
				require.NoError(t, err)
			} else {
				assert.Equal(t, c.cause, errors.Cause(err))
			}
			assert.Equal(t, c.expect, ph.PH())
			assert.Equal(t, c.text, ph.Text)
			assert.False(t, ph.Saturated())
		})
	}
}

func TestSingleValueNoData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	ph := NewPH(e)
	assert.Equal(t, []Measurement{{Name: "ph", Value: NoSensorData, Text: "-999.00"}}, ph.Measurements())
	orp := NewORP(e)
	assert.Equal(t, []Measurement{{Name: "orp", Value: NoSensorData, Text: "-999.0"}}, orp.Measurements())

	e.Link.SetOffline()
	r, err := ph.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResponseOffline, r)
	assert.Equal(t, "-999.00", ph.Text)
	assert.Equal(t, "", mt.Written())
}

func TestPHCalibrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOn)
	ph := NewPH(e)
	mt.Expect("Cal,mid,7.00\r", "*OK").
		Expect("Cal,low,4.00\r", "*OK").
		Expect("Cal,high,10.00\r", "*OK")
	assert.Equal(t, ResponseOK, ph.Calibrate(ctx, PHCalMid, 7))
	assert.Equal(t, ResponseOK, ph.Calibrate(ctx, PHCalLow, 4))
	assert.Equal(t, ResponseOK, ph.Calibrate(ctx, PHCalHigh, 10))
	assert.Equal(t, ResponseError, ph.Calibrate(ctx, PHCalPoint(9), 1))
	require.NoError(t, mt.ExpectationsWereMet())
}

func TestORP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOn)
	orp := NewORP(e)
	mt.Expect("R\r", "225.4", "*OK").
		Expect("Cal,225.0\r", "*OK").
		Expect("Cal,?\r", "?Cal,1", "*OK")
	_, err := orp.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 225.4, orp.ORP())
	assert.Equal(t, " 225.4", orp.Text)
	assert.Equal(t, []Measurement{{Name: "orp", Value: 225.4, Text: " 225.4"}}, orp.Measurements())
	assert.Equal(t, ResponseOK, orp.Calibrate(ctx, 225))
	assert.Equal(t, ResponseOK, orp.QueryCalibration(ctx))
	assert.Equal(t, CalCalibrated, orp.Calibration())
}
