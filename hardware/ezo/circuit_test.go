package ezo

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectInit(mt *MockTransport, info string) {
	mt.Expect("RESPONSE,?\r", "?RESPONSE,1", "*OK").
		Expect("C,0\r", "*OK").
		Expect("C,?\r", "?C,0", "*OK").
		Expect("STATUS\r", "?STATUS,P,5.038", "*OK").
		Expect("I\r", info, "*OK")
}

func TestCircuitInitialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	ph := NewPH(e)
	expectInit(mt, "?I,pH,1.96")
	require.NoError(t, ph.Initialize(ctx))
	require.NoError(t, mt.ExpectationsWereMet())

	assert.True(t, e.Link.Connected())
	assert.Equal(t, TriOn, e.ResponseMode())
	assert.Equal(t, TriOff, ph.Continuous())
	assert.Equal(t, Status{Restart: RestartPowerOn, Voltage: 5.038}, ph.Status())
	assert.Equal(t, "power-on", ph.Status().Restart.String())
	assert.Equal(t, Info{Kind: KindPH, Firmware: "1.96"}, ph.Info())
	assert.Equal(t, "Factory", ph.Info().ResetCommand())
}

func TestCircuitInitializeResponseOff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	orp := NewORP(e)
	mt.Expect("RESPONSE,?\r", "?RESPONSE,0").
		Expect("RESPONSE,1\r", "*OK").
		Expect("C,0\r", "*OK").
		Expect("C,?\r", "?C,1", "*OK").
		Expect("STATUS\r", "?STATUS,B,3.300", "*OK").
		Expect("I\r", "?I,ORP,1.5", "*OK")
	require.NoError(t, orp.Initialize(ctx))
	require.NoError(t, mt.ExpectationsWereMet())
	assert.Equal(t, TriOn, e.ResponseMode())
	assert.Equal(t, TriOn, orp.Continuous())
	assert.Equal(t, RestartBrownOut, orp.Status().Restart)
	assert.Equal(t, "X", orp.Info().ResetCommand())
}

func TestCircuitInitializeSilent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	ph := NewPH(e)
	err := ph.Initialize(ctx)
	require.Error(t, err)
	assert.Equal(t, ErrNoComms, errors.Cause(err))
	assert.True(t, IsCommsError(err))
	assert.Equal(t, "RESPONSE,?\r", mt.Written())

	e.Link.SetOffline()
	err = ph.Initialize(ctx)
	assert.Equal(t, ErrNoComms, errors.Cause(err))
}

func TestCircuitOffline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	c := NewEC(e)
	e.Link.SetOffline()
	for _, r := range []Response{
		c.Sleep(ctx),
		c.Wake(ctx),
		c.QueryInfo(ctx),
		c.QueryStatus(ctx),
		c.EnableLED(ctx),
		c.SetTempComp(ctx, 20),
		c.DisableResponse(ctx),
		c.FixBaudRate(ctx, 9600),
		c.QueryOutput(ctx),
	} {
		assert.Equal(t, ResponseOffline, r)
	}
	r, err := c.Read(ctx)
	assert.Equal(t, ResponseOffline, r)
	assert.NoError(t, err)
	assert.Equal(t, "", mt.Written())
	assert.Equal(t, float64(NoSensorData), c.EC())
}

func TestCircuitCommands(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		command string
		replies []string
		fun     func(*Circuit, context.Context) Response
		expect  Response
		check   func(testing.TB, *Circuit)
	}
	cases := []Case{
		{"led-on", "L,1\r", []string{"*OK"}, (*Circuit).EnableLED, ResponseOK, nil},
		{"led-query", "L,?\r", []string{"?L,0", "*OK"}, (*Circuit).QueryLED, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, TriOff, c.LED()) }},
		{"name-query", "NAME,?\r", []string{"?NAME,tank1", "*OK"}, (*Circuit).QueryName, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, "tank1", c.Name()) }},
		{"name-query-empty", "NAME,?\r", []string{"?NAME", "*OK"}, (*Circuit).QueryName, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, "", c.Name()) }},
		{"name-set", "NAME,tank1\r", []string{"*OK"},
			func(c *Circuit, ctx context.Context) Response { return c.SetName(ctx, "tank1") }, ResponseOK, nil},
		{"cal-query", "Cal,?\r", []string{"?Cal,2", "*OK"}, (*Circuit).QueryCalibration, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, CalDouble, c.Calibration()) }},
		{"cal-clear", "Cal,clear\r", []string{"*OK"}, (*Circuit).ClearCalibration, ResponseOK, nil},
		{"temp-set", "T,19.5\r", []string{"*OK"},
			func(c *Circuit, ctx context.Context) Response { return c.SetTempComp(ctx, 19.5) }, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, 19.5, c.TempComp()) }},
		{"temp-query", "T,?\r", []string{"?T,21.3", "*OK"}, (*Circuit).QueryTempComp, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, 21.3, c.TempComp()) }},
		{"temp-query-garbage", "T,?\r", []string{"?X", "*OK"}, (*Circuit).QueryTempComp, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, DefaultTempComp, c.TempComp()) }},
		{"sleep", "SLEEP\r", []string{"*SL"}, (*Circuit).Sleep, ResponseSleep, nil},
		{"wake", "\r", []string{"*WA"}, (*Circuit).Wake, ResponseWake, nil},
		{"reset", "X\r", []string{"*OK"}, (*Circuit).Reset, ResponseOK, nil},
		{"continuous-on", "C,1\r", []string{"*OK"}, (*Circuit).EnableContinuous, ResponseOK, nil},
		{"unknown-command", "L,1\r", []string{"*ER"}, (*Circuit).EnableLED, ResponseError, nil},
		{"response-query", "RESPONSE,?\r", []string{"?RESPONSE,1", "*OK"}, (*Circuit).QueryResponse, ResponseOK,
			func(t testing.TB, c *Circuit) { assert.Equal(t, TriOn, c.Engine().ResponseMode()) }},
		{"response-disable", "RESPONSE,0\r", nil, (*Circuit).DisableResponse, ResponseNotApplicable,
			func(t testing.TB, c *Circuit) { assert.Equal(t, TriOff, c.Engine().ResponseMode()) }},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			e, mt := NewTestEngine(t)
			e.SetResponseMode(TriOn)
			circuit := newCircuit(e, KindPH)
			mt.Expect(c.command, c.replies...)
			r := c.fun(&circuit, ctx)
			assert.Equal(t, c.expect.String(), r.String())
			require.NoError(t, mt.ExpectationsWereMet())
			if c.check != nil {
				c.check(t, &circuit)
			}
		})
	}
}

func TestCircuitEnableResponseFromOff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	c := newCircuit(e, KindEC)
	e.SetResponseMode(TriOff)
	mt.Expect("RESPONSE,1\r", "*OK")
	assert.Equal(t, ResponseOK, c.EnableResponse(ctx))
	assert.Equal(t, TriOn, e.ResponseMode())

	// silent device keeps previous mode
	e.SetResponseMode(TriOff)
	assert.Equal(t, ResponseUnknown, c.EnableResponse(ctx))
	assert.Equal(t, TriOff, e.ResponseMode())
}

func TestCircuitInvalidArgs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	c := newCircuit(e, KindPH)
	assert.Equal(t, ResponseError, c.SetBaudRate(ctx, 4800))
	assert.Equal(t, ResponseError, c.SetName(ctx, ""))
	assert.Equal(t, ResponseError, c.SetName(ctx, "name with space"))
	assert.Equal(t, ResponseError, c.SetName(ctx, "seventeen-chars-x"))
	assert.Equal(t, ResponseError, c.SetI2CAddress(ctx, 0))
	assert.Equal(t, ResponseError, c.SetI2CAddress(ctx, 128))
	assert.Equal(t, "", mt.Written())
}

func TestCircuitSetBaudRate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOn)
	require.NoError(t, e.Begin(9600))
	c := newCircuit(e, KindDO)
	mt.Expect("SERIAL,38400\r", "*OK")
	assert.Equal(t, ResponseOK, c.SetBaudRate(ctx, 38400))
	assert.Equal(t, 38400, mt.Baud())
	assert.Equal(t, 38400, e.Link.Baud())
}

func TestCircuitFixBaudRate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOn)
	c := newCircuit(e, KindPH)
	// circuit is at 1200, the first scanned rate
	mt.Expect("\r", "*ER").
		Expect("C,0\r", "*OK").
		Expect("SERIAL,9600\r", "*OK")
	assert.Equal(t, ResponseOK, c.FixBaudRate(ctx, 9600))
	assert.Equal(t, 9600, mt.Baud())
	require.NoError(t, mt.ExpectationsWereMet())
}

func TestCircuitFixBaudRateScansAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOff)
	c := newCircuit(e, KindPH)
	assert.Equal(t, ResponseUnknown, c.FixBaudRate(ctx, 9600))
	// every rate tried, final Begin is to desired rate after last SERIAL command
	assert.Equal(t, len(baudScan), countSubstr(mt.Written(), "SERIAL,9600\r"))
}

func TestCircuitSetI2CAddress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, mt := NewTestEngine(t)
	e.SetResponseMode(TriOn)
	c := newCircuit(e, KindPH)

	mt.Expect("I2C,99\r")
	c.SetI2CAddress(ctx, 99)
	assert.False(t, e.I2CMode(), "no bus attached")

	bus := &MockI2C{Status: 1}
	e.UseI2C(bus, 0)
	mt.Expect("I2C,99\r")
	c.SetI2CAddress(ctx, 99)
	assert.True(t, e.I2CMode())
	assert.Equal(t, uint8(99), e.I2CAddress())

	assert.Equal(t, ResponseSuccess, c.QueryResponse(ctx))
	assert.Equal(t, ResponseNotApplicable, c.QueryContinuous(ctx))
	assert.Equal(t, ResponseNotApplicable, c.EnableContinuous(ctx))
	assert.Equal(t, ResponseSuccess, c.Sleep(ctx))
	assert.Equal(t, []string{"SLEEP"}, bus.Writes)
}

func TestInfoResetCommand(t *testing.T) {
	t.Parallel()

	type Case struct {
		line   string
		expect string
	}
	cases := []Case{
		{"?I,pH,1.96", "Factory"},
		{"?I,pH,1.80", "X"},
		{"?I,EC,1.75", "Factory"},
		{"?I,EC,1.7", "X"},
		{"?I,DO,1.65", "Factory"},
		{"?I,ORP,1.0", "X"},
		{"?I,RGB,1.0", "Factory"},
		{"?I,RTD,2.01", "X"},
		{"?I,pH,garbage", "X"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.line, func(t *testing.T) {
			info, err := ParseInfo(c.line)
			require.NoError(t, err)
			assert.Equal(t, c.expect, info.ResetCommand())
		})
	}

	_, err := ParseInfo("?I,toaster,1.0")
	assert.Error(t, err)
	_, err = ParseInfo("7.00")
	assert.True(t, errors.IsNotValid(err))
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseStatus("?STATUS,W,4.990")
	require.NoError(t, err)
	assert.Equal(t, RestartWatchdog, s.Restart)
	assert.Equal(t, 4.99, s.Voltage)
	_, err = ParseStatus("?STATUS,P")
	assert.Error(t, err)
	_, err = ParseStatus("?STATUS,P,x")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindPH, ParseKind("ph"))
	assert.Equal(t, KindTemp, ParseKind("temp"))
	assert.Equal(t, KindTemp, ParseKind("RTD"))
	assert.Equal(t, KindEnvRGB, ParseKind("env-rgb"))
	assert.Equal(t, KindUnknown, ParseKind(""))
}

func countSubstr(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
