package ezo

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvRGBInitialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	c := NewEnvRGB(e)
	mt.Expect("E\r", "12,34,56").
		Expect("I\r", "C,V1.6,6/15").
		Expect("M3\r", "RGB+lx")
	require.NoError(t, c.InitializeMode(ctx, EnvRGBAll))
	require.NoError(t, mt.ExpectationsWereMet())
	assert.True(t, e.Link.Connected())
	assert.Equal(t, Info{Kind: KindEnvRGB, Firmware: "V1.6", Date: "6/15"}, c.Info())
	assert.Equal(t, EnvRGBAll, c.Mode())
	assert.Equal(t, TriOff, c.Continuous())

	mt.Expect("R\r", "12,34,56,100,200,300,600,15,*")
	r, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResponseNotApplicable, r)
	assert.Equal(t, 34, c.Green())
	lr, lg, lb, total, beyond := c.Lux()
	assert.Equal(t, []int{100, 200, 300, 600, 15}, []int{lr, lg, lb, total, beyond})
	assert.True(t, c.Saturated())
	assert.Len(t, c.Measurements(), 8)
}

func TestEnvRGBSilent(t *testing.T) {
	t.Parallel()

	e, _ := NewTestEngine(t)
	c := NewEnvRGB(e)
	err := c.Initialize(context.Background())
	assert.Equal(t, ErrNoComms, errors.Cause(err))
}

func TestEnvRGBRead(t *testing.T) {
	t.Parallel()

	type Case struct {
		mode   EnvRGBMode
		reply  string
		values [8]int
		err    error
	}
	const D, F = NoSensorData, SensorCommsFailed
	cases := []Case{
		{EnvRGBDefault, "1,2,3", [8]int{1, 2, 3, D, D, D, D, D}, nil},
		{EnvRGBDefault, "1,2", [8]int{F, F, F, F, F, F, F, F}, ErrCommsFailed},
		{EnvRGBLux, "10,20,30,60,5", [8]int{D, D, D, 10, 20, 30, 60, 5}, nil},
		{EnvRGBLux, "10,20,30", [8]int{F, F, F, F, F, F, F, F}, ErrCommsFailed},
		{EnvRGBAll, "1,2,3,10,20,30,60,5", [8]int{1, 2, 3, 10, 20, 30, 60, 5}, nil},
		{EnvRGBAll, "1,2,3,10,x,30,60,5", [8]int{F, F, F, F, F, F, F, F}, ErrCommsFailed},
	}
	for _, c := range cases {
		c := c
		t.Run(c.mode.String()+"/"+c.reply, func(t *testing.T) {
			t.Parallel()
			e, mt := NewTestEngine(t)
			e.Link.MarkConnected()
			env := NewEnvRGB(e)
			env.mode = c.mode
			mt.Expect("R\r", c.reply)
			_, err := env.Read(context.Background())
			if c.err == nil {
				require.NoError(t, err)
			} else {
				assert.Equal(t, c.err, errors.Cause(err))
			}
			assert.Equal(t, c.values, env.values)
		})
	}
}

func TestEnvRGBSetModeMismatch(t *testing.T) {
	t.Parallel()

	e, mt := NewTestEngine(t)
	c := NewEnvRGB(e)
	mt.Expect("M2\r", "RGB")
	assert.Equal(t, ResponseError, c.SetMode(context.Background(), EnvRGBLux))
	assert.Equal(t, ResponseError, c.SetMode(context.Background(), EnvRGBMode(7)))
}
