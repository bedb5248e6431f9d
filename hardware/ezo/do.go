package ezo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/juju/errors"
)

const DefaultPressureKPa = 101.325

// DO output channels in reply order: percent saturation, then mg/L.
type DOOutput uint8

const (
	DOOutSaturation DOOutput = iota
	DOOutMGL
)

type DOCalCommand uint8

const (
	DOCalAtm DOCalCommand = iota
	DOCalZero
	DOCalClear
	DOCalQuery
)

// DO is dissolved oxygen circuit.
type DO struct {
	Circuit
	outputs outputSet

	sat, mgl         float64
	SatText, MGLText string
	pressure         float64
	salUS            uint32
	salPPT           float64
}

func NewDO(e *Engine) *DO {
	self := &DO{
		Circuit:  newCircuit(e, KindDO),
		outputs:  newOutputSet("%", "DO").withFactory(int(DOOutMGL)),
		pressure: DefaultPressureKPa,
	}
	self.setAll(NoSensorData)
	return self
}

func (self *DO) Initialize(ctx context.Context) error {
	if err := self.initialize(ctx); err != nil {
		return err
	}
	self.DisableContinuous(ctx)
	self.QueryTempComp(ctx)
	self.QuerySalComp(ctx)
	self.QueryPresComp(ctx)
	self.QueryOutput(ctx)
	self.e.Log.Debugf("DO initialization done outputs=%s", self.outputs.query())
	return ctx.Err()
}

func (self *DO) Saturation() float64 { return self.sat }
func (self *DO) MGL() float64        { return self.mgl }
func (self *DO) Pressure() float64   { return self.pressure }
func (self *DO) SalComp() uint32     { return self.salUS }
func (self *DO) SalPPTComp() float64 { return self.salPPT }

func (self *DO) Output(o DOOutput) Tristate { return self.outputs.get(int(o)) }

func (self *DO) EnableOutput(ctx context.Context, o DOOutput) Response {
	return self.send(ctx, self.outputs.command(int(o), true), false)
}

func (self *DO) DisableOutput(ctx context.Context, o DOOutput) Response {
	return self.send(ctx, self.outputs.command(int(o), false), false)
}

// QueryOutput reply "?O,%,DO".
func (self *DO) QueryOutput(ctx context.Context) Response {
	r := self.send(ctx, "O,?\r", true)
	self.outputs.parseQuery(self.e.Result().Tokens())
	return r
}

// SetSalComp sets salinity compensation in uS.
func (self *DO) SetSalComp(ctx context.Context, us uint32) Response {
	self.salUS, self.salPPT = us, 0
	return self.send(ctx, fmt.Sprintf("S,%d\r", us), false)
}

func (self *DO) SetSalPPTComp(ctx context.Context, ppt float64) Response {
	self.salUS, self.salPPT = 0, ppt
	return self.send(ctx, fmt.Sprintf("S,%.1f,PPT\r", ppt), false)
}

// QuerySalComp reply "?S,<value>,<uS|ppt>".
func (self *DO) QuerySalComp(ctx context.Context) Response {
	r := self.send(ctx, "S,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 3 && tag(ts[0], "?S") {
		switch {
		case tag(ts[2], "uS"):
			if v, err := strconv.ParseUint(ts[1], 10, 32); err == nil {
				self.salUS, self.salPPT = uint32(v), 0
			}
		case tag(ts[2], "ppt"):
			if v, err := parseFloat(ts[1]); err == nil {
				self.salUS, self.salPPT = 0, v
			}
		}
		self.e.Log.Debugf("salinity compensation uS=%d ppt=%.1f", self.salUS, self.salPPT)
	}
	return r
}

func (self *DO) SetPresComp(ctx context.Context, kpa float64) Response {
	self.pressure = kpa
	return self.send(ctx, fmt.Sprintf("P,%.2f\r", kpa), false)
}

// QueryPresComp reply "?P,<kPa>".
func (self *DO) QueryPresComp(ctx context.Context) Response {
	r := self.send(ctx, "P,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?P") {
		if v, err := parseFloat(ts[1]); err == nil {
			self.pressure = v
		}
	}
	self.e.Log.Debugf("pressure compensation=%.2f", self.pressure)
	return r
}

func (self *DO) Calibrate(ctx context.Context, cmd DOCalCommand) Response {
	switch cmd {
	case DOCalAtm:
		return self.send(ctx, "Cal\r", false)
	case DOCalZero:
		return self.send(ctx, "Cal,0\r", false)
	case DOCalClear:
		return self.ClearCalibration(ctx)
	case DOCalQuery:
		return self.QueryCalibration(ctx)
	}
	return ResponseUnknown
}

func (self *DO) Read(ctx context.Context) (Response, error) {
	ensureOutputs(ctx, self.e, &self.outputs, self.QueryOutput)
	r := self.e.SendCommand(ctx, "R\r", true, self.readDelay, true)
	if r == ResponseOffline {
		return r, nil
	}
	return r, errors.Annotate(self.parseReading(self.e.Result().Tokens()), "DO reading")
}

func (self *DO) parseReading(ts []string) error {
	vs, err := parseMasked(self.e.Link, &self.outputs, ts)
	if err != nil {
		self.setAll(vs[0])
		return err
	}
	if self.Output(DOOutSaturation).On() {
		v := vs[DOOutSaturation]
		width := 5
		if v < 100 {
			width = 4
		}
		self.sat, self.SatText = v, FormatFixed(v, width, 1)
	}
	if self.Output(DOOutMGL).On() {
		self.mgl, self.MGLText = vs[DOOutMGL], FormatFixed(vs[DOOutMGL], 8, 2)
	}
	return nil
}

func (self *DO) setAll(v float64) {
	self.sat, self.mgl = v, v
	self.SatText, self.MGLText = FormatFixed(v, 0, 0), FormatFixed(v, 0, 0)
}

func (self *DO) Measurements() []Measurement {
	return enabledMeasurements(&self.outputs, []Measurement{
		{Name: "sat", Value: self.sat, Text: self.SatText},
		{Name: "do", Value: self.mgl, Text: self.MGLText},
	})
}

func (self *DO) Saturated() bool { return false }
