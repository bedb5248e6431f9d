package ezo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDOInitializeRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	do := NewDO(e)
	expectInit(mt, "?I,DO,1.98")
	mt.Expect("C,0\r", "*OK").
		Expect("T,?\r", "?T,19.5", "*OK").
		Expect("S,?\r", "?S,50000,uS", "*OK").
		Expect("P,?\r", "?P,90.5", "*OK").
		Expect("O,?\r", "?O,%,DO", "*OK")
	require.NoError(t, do.Initialize(ctx))
	require.NoError(t, mt.ExpectationsWereMet())
	assert.Equal(t, 19.5, do.TempComp())
	assert.Equal(t, uint32(50000), do.SalComp())
	assert.Equal(t, 90.5, do.Pressure())
	assert.Equal(t, TriOn, do.Output(DOOutSaturation))

	mt.Expect("R\r", "98.6,7.85", "*OK")
	r, err := do.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResponseOK, r)
	assert.Equal(t, 98.6, do.Saturation())
	assert.Equal(t, "98.6", do.SatText)
	assert.Equal(t, 7.85, do.MGL())
	assert.Equal(t, "    7.85", do.MGLText)
	assert.Equal(t, "sat=98.6 do=    7.85", FormatMeasurements(do.Measurements()))
}

func TestDOReadMask(t *testing.T) {
	t.Parallel()

	type Case struct {
		outputs string
		reply   string
		sat     float64
		satText string
		mgl     float64
		err     bool
	}
	cases := []Case{
		{"?O,%,DO", "100.2,8.10", 100.2, "100.2", 8.1, false},
		{"?O,DO", "7.85", NoSensorData, "-999", 7.85, false},
		{"?O,%", "45.0", 45, "45.0", NoSensorData, false},
		{"?O,%,DO", "98.6", SensorCommsFailed, "-777", SensorCommsFailed, true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.outputs+"/"+c.reply, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			e, mt := NewTestEngine(t)
			e.SetResponseMode(TriOn)
			do := NewDO(e)
			mt.Expect("O,?\r", c.outputs, "*OK").
				Expect("R\r", c.reply, "*OK")
			do.QueryOutput(ctx)
			_, err := do.Read(ctx)
			if c.err {
				assert.True(t, IsCommsError(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, c.sat, do.Saturation())
			assert.Equal(t, c.satText, do.SatText)
			assert.Equal(t, c.mgl, do.MGL())
		})
	}
}

func TestDOReadFactoryMask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOn)
	do := NewDO(e)
	mt.Expect("O,?\r").
		Expect("R\r", "7.85", "*OK")
	_, err := do.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, TriOff, do.Output(DOOutSaturation))
	assert.Equal(t, TriOn, do.Output(DOOutMGL))
	assert.Equal(t, 7.85, do.MGL())

	// mask is known now, no query
	mt.Expect("R\r", "*OK")
	_, err = do.Read(ctx)
	assert.True(t, IsCommsError(err))
	assert.Equal(t, "O,?\rR\rR\r", mt.Written())
}

func TestDOCommands(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOn)
	do := NewDO(e)
	mt.Expect("S,50000\r", "*OK").
		Expect("S,37.5,PPT\r", "*OK").
		Expect("S,?\r", "?S,37.5,ppt", "*OK").
		Expect("P,90.50\r", "*OK").
		Expect("Cal\r", "*OK").
		Expect("Cal,0\r", "*OK").
		Expect("Cal,clear\r", "*OK").
		Expect("O,%,0\r", "*OK")
	assert.Equal(t, ResponseOK, do.SetSalComp(ctx, 50000))
	assert.Equal(t, ResponseOK, do.SetSalPPTComp(ctx, 37.5))
	assert.Equal(t, ResponseOK, do.QuerySalComp(ctx))
	assert.Equal(t, 37.5, do.SalPPTComp())
	assert.Equal(t, uint32(0), do.SalComp())
	assert.Equal(t, ResponseOK, do.SetPresComp(ctx, 90.5))
	assert.Equal(t, ResponseOK, do.Calibrate(ctx, DOCalAtm))
	assert.Equal(t, ResponseOK, do.Calibrate(ctx, DOCalZero))
	assert.Equal(t, ResponseOK, do.Calibrate(ctx, DOCalClear))
	assert.Equal(t, ResponseOK, do.DisableOutput(ctx, DOOutSaturation))
	require.NoError(t, mt.ExpectationsWereMet())
}
