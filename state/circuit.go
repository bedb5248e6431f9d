package state

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atlas/config"
	"github.com/temoto/atlas/engine"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/hardware/power"
	"github.com/temoto/atlas/hardware/uart"
	"github.com/temoto/atlas/log2"
	"github.com/temoto/atlas/tele"
)

const powerCyclePause = 1 * time.Second

// Circuit is one configured sensor with its engine and optional power line.
// Not safe for concurrent use, one goroutine drives all exchanges.
type Circuit struct {
	Name   string
	Config *config.CircuitConfig
	Engine *ezo.Engine
	Common *ezo.Circuit
	Sensor ezo.Sensor
	Power  *power.Line
	Log    *log2.Log

	g       *Global
	initFun func(ctx context.Context) error
}

// Circuit opens configured circuit on first use.
func (g *Global) Circuit(name string) (*Circuit, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	if c, ok := g.circuits[name]; ok {
		return c, nil
	}
	cc, ok := g.Config.Circuit(name)
	if !ok {
		return nil, errors.NotFoundf("circuit=%s", name)
	}
	c, err := g.openCircuit(cc)
	if err != nil {
		return nil, errors.Annotatef(err, "circuit=%s", name)
	}
	g.circuits[name] = c
	return c, nil
}

func (g *Global) openTransport(cc *config.CircuitConfig) (ezo.Transport, error) {
	if g.XXX_OpenTransport != nil {
		return g.XXX_OpenTransport(cc)
	}
	switch cc.Driver {
	case config.DriverFile:
		return uart.NewFile(cc.Device), nil
	case config.DriverSerial:
		return uart.NewSerial(cc.Device), nil
	case config.DriverI2C:
		return nil, nil
	}
	return nil, errors.NotSupportedf("driver=%s", cc.Driver)
}

// caller holds g.lk
func (g *Global) bus(name string) (ezo.I2CBus, error) {
	if b, ok := g.buses[name]; ok {
		return b, nil
	}
	var b ezo.I2CBus
	var err error
	if g.XXX_OpenBus != nil {
		b, err = g.XXX_OpenBus(name)
	} else {
		b, err = uart.OpenI2C(name)
	}
	if err != nil {
		return nil, err
	}
	g.buses[name] = b
	return b, nil
}

func (g *Global) openCircuit(cc *config.CircuitConfig) (*Circuit, error) {
	level := log2.LInfo
	if g.Config.LogDebug || cc.Debug {
		level = log2.LDebug
	}
	log := g.Log.Clone(level).WithPrefix(cc.Name + ": ")

	t, err := g.openTransport(cc)
	if err != nil {
		return nil, err
	}
	c := &Circuit{Name: cc.Name, Config: cc, Log: log, g: g}
	c.Engine = ezo.NewEngine(log, t, g.Clock)
	if !cc.IsOnline() {
		c.Engine.Link.SetOffline()
	}

	switch cc.ParseKind() {
	case ezo.KindPH:
		s := ezo.NewPH(c.Engine)
		c.Sensor, c.Common, c.initFun = s, &s.Circuit, s.Initialize
	case ezo.KindORP:
		s := ezo.NewORP(c.Engine)
		c.Sensor, c.Common, c.initFun = s, &s.Circuit, s.Initialize
	case ezo.KindEC:
		s := ezo.NewEC(c.Engine)
		c.Sensor, c.Common, c.initFun = s, &s.Circuit, s.Initialize
	case ezo.KindDO:
		s := ezo.NewDO(c.Engine)
		c.Sensor, c.Common, c.initFun = s, &s.Circuit, s.Initialize
	case ezo.KindRGB:
		s := ezo.NewRGB(c.Engine)
		s.Config = cc.RGBConfig()
		c.Sensor, c.Common, c.initFun = s, &s.Circuit, s.Initialize
	case ezo.KindEnvRGB:
		s := ezo.NewEnvRGB(c.Engine)
		mode := ezo.EnvRGBMode(cc.Mode)
		c.Sensor, c.Common = s, &s.Circuit
		c.initFun = func(ctx context.Context) error { return s.InitializeMode(ctx, mode) }
	default:
		return nil, errors.NotSupportedf("kind=%s", cc.Kind)
	}

	timing := c.Engine.Timing()
	timing.ResultTimeout = cc.ResultTimeout(timing.ResultTimeout)
	c.Engine.SetTiming(timing)
	c.Common.SetReadDelay(cc.ResultDelay())

	if cc.Driver == config.DriverI2C {
		bus, err := g.bus(cc.I2CBus)
		if err != nil {
			return nil, errors.Annotatef(err, "i2c_bus=%s", cc.I2CBus)
		}
		c.Engine.UseI2C(bus, uint8(cc.I2CAddress))
	} else if err := c.Engine.Begin(c.baud()); err != nil {
		c.Engine.Close()
		return nil, err
	}

	if cc.Power.Enabled() {
		settle := time.Duration(cc.Power.SettleMs) * time.Millisecond
		if c.Power, err = power.Open(cc.Power.Chip, uint32(cc.Power.Line), settle, log); err != nil {
			c.Engine.Close()
			return nil, err
		}
	}
	return c, nil
}

// baud prefers config, then last known working rate, then factory default.
func (self *Circuit) baud() int {
	if self.Config.Baud != 0 {
		return self.Config.Baud
	}
	if kc, ok := self.g.Known.Get(self.Name); ok && kc.Baud != 0 {
		return kc.Baud
	}
	return self.Config.BaudDefault()
}

// Initialize powers circuit if needed and runs driver setup.
func (self *Circuit) Initialize(ctx context.Context) error {
	if self.Power != nil && !self.Power.IsOn() {
		if err := self.Power.On(ctx); err != nil {
			return errors.Annotate(err, "power on")
		}
	}
	if err := self.initFun(ctx); err != nil {
		return err
	}
	self.remember()
	return nil
}

func (self *Circuit) remember() {
	info := self.Common.Info()
	kc := KnownCircuit{Baud: self.Engine.Link.Baud(), Kind: info.Kind.String(), Firmware: info.Firmware}
	if self.Engine.I2CMode() {
		kc.Baud = 0
	}
	if self.g.Known.Set(self.Name, kc) {
		if err := self.g.Known.Persist.Store(); err != nil {
			self.Log.Error(err)
		}
	}
}

// Read takes one reading. Parse failure is reported in Reading.Err.
func (self *Circuit) Read(ctx context.Context) *tele.Reading {
	r, err := self.Sensor.Read(ctx)
	reading := &tele.Reading{
		Circuit:   self.Name,
		Kind:      self.Common.Kind(),
		Response:  r,
		Values:    self.Sensor.Measurements(),
		Saturated: self.Sensor.Saturated(),
		Err:       err,
		Time:      time.Now(),
	}
	if err != nil {
		self.Log.Errorf("read response=%s err=%v", r, err)
	} else {
		self.Log.Infof("%s", ezo.FormatMeasurements(reading.Values))
	}
	return reading
}

// Recover tries to bring silent circuit back: power cycle when possible,
// otherwise find its serial rate, then Initialize.
func (self *Circuit) Recover(ctx context.Context) error {
	switch {
	case self.Power != nil:
		if err := self.Power.Cycle(ctx, powerCyclePause); err != nil {
			return errors.Annotate(err, "power cycle")
		}
	case !self.Engine.I2CMode() && self.Engine.Link.Online():
		desired := self.baud()
		if r := self.Common.FixBaudRate(ctx, desired); r != ezo.ResponseOK {
			self.Log.Errorf("baud rate scan response=%s", r)
		}
	}
	return self.Initialize(ctx)
}

func (self *Circuit) Close() error {
	err := self.Engine.Close()
	if self.Power != nil {
		if perr := self.Power.Close(); err == nil {
			err = perr
		}
	}
	return err
}

// ResponseError maps failed protocol outcome to error for action sequences.
func ResponseError(r ezo.Response) error {
	switch r {
	case ezo.ResponseOK, ezo.ResponseNotApplicable, ezo.ResponseSuccess, ezo.ResponseWake, ezo.ResponseSleep:
		return nil
	}
	return errors.Errorf("response=%s", r)
}

func (g *Global) circuitAction(name, action string, fun func(ctx context.Context, c *Circuit) error) {
	full := name + "." + action
	g.Engine.Register(full, engine.Func{Name: full, F: func(ctx context.Context) error {
		c, err := g.Circuit(name)
		if err != nil {
			return err
		}
		return fun(ctx, c)
	}})
}

func (g *Global) commonAction(name, action string, fun func(c *ezo.Circuit, ctx context.Context) ezo.Response) {
	g.circuitAction(name, action, func(ctx context.Context, c *Circuit) error {
		r := fun(c.Common, ctx)
		result := c.Engine.Result().String()
		c.Log.Infof("%s result=%q response=%s", action, result, r)
		return ResponseError(r)
	})
}

func (g *Global) registerCircuitActions(name string) {
	g.circuitAction(name, "init", func(ctx context.Context, c *Circuit) error { return c.Initialize(ctx) })
	g.circuitAction(name, "read", func(ctx context.Context, c *Circuit) error {
		reading := c.Read(ctx)
		if reading.Err != nil {
			return reading.Err
		}
		return g.Tele.Publish(reading)
	})
	g.circuitAction(name, "recover", func(ctx context.Context, c *Circuit) error { return c.Recover(ctx) })
	g.circuitAction(name, "online", func(ctx context.Context, c *Circuit) error {
		c.Engine.Link.SetOnline()
		return nil
	})
	g.circuitAction(name, "offline", func(ctx context.Context, c *Circuit) error {
		c.Engine.Link.SetOffline()
		return nil
	})
	g.commonAction(name, "info", (*ezo.Circuit).QueryInfo)
	g.commonAction(name, "status", (*ezo.Circuit).QueryStatus)
	g.commonAction(name, "led_on", (*ezo.Circuit).EnableLED)
	g.commonAction(name, "led_off", (*ezo.Circuit).DisableLED)
	g.commonAction(name, "sleep", (*ezo.Circuit).Sleep)
	g.commonAction(name, "wake", (*ezo.Circuit).Wake)
	g.commonAction(name, "cal_query", (*ezo.Circuit).QueryCalibration)
	g.commonAction(name, "cal_clear", (*ezo.Circuit).ClearCalibration)
	g.commonAction(name, "temp_query", (*ezo.Circuit).QueryTempComp)
}
