package ezo

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

// EC output channels in device reply order.
type ECOutput uint8

const (
	ECOutEC ECOutput = iota
	ECOutTDS
	ECOutSalinity
	ECOutSG
)

type ECCalCommand uint8

const (
	ECCalClear ECCalCommand = iota
	ECCalDry
	ECCalOne
	ECCalLow
	ECCalHigh
	ECCalQuery
)

// EC is conductivity circuit. Reply carries up to four values: EC uS/cm, TDS mg/L, salinity PSU, specific gravity.
type EC struct {
	Circuit
	outputs outputSet
	k       float64

	ec, tds, sal, sg         float64
	ECText, TDS, SAL, SGText string
}

func NewEC(e *Engine) *EC {
	self := &EC{
		Circuit: newCircuit(e, KindEC),
		outputs: newOutputSet("EC", "TDS", "S", "SG").withFactory(0, 1, 2, 3),
		k:       -1,
	}
	self.setAll(NoSensorData)
	return self
}

func (self *EC) Initialize(ctx context.Context) error {
	if err := self.initialize(ctx); err != nil {
		return err
	}
	self.QueryCalibration(ctx)
	self.QueryK(ctx)
	self.QueryTempComp(ctx)
	self.QueryOutput(ctx)
	self.e.Log.Debugf("EC initialization done outputs=%s", self.outputs.query())
	return ctx.Err()
}

func (self *EC) EC() float64              { return self.ec }
func (self *EC) TDSValue() float64        { return self.tds }
func (self *EC) Salinity() float64        { return self.sal }
func (self *EC) SpecificGravity() float64 { return self.sg }
func (self *EC) K() float64               { return self.k }

func (self *EC) Output(o ECOutput) Tristate { return self.outputs.get(int(o)) }

func (self *EC) EnableOutput(ctx context.Context, o ECOutput) Response {
	return self.send(ctx, self.outputs.command(int(o), true), false)
}

func (self *EC) DisableOutput(ctx context.Context, o ECOutput) Response {
	return self.send(ctx, self.outputs.command(int(o), false), false)
}

// QueryOutput reply "?O,EC,TDS,S,SG" lists enabled channels.
func (self *EC) QueryOutput(ctx context.Context) Response {
	r := self.send(ctx, "O,?\r", true)
	self.outputs.parseQuery(self.e.Result().Tokens())
	return r
}

func (self *EC) SetK(ctx context.Context, k float64) Response {
	return self.send(ctx, fmt.Sprintf("K,%4.1f\r", k), false)
}

// QueryK reply "?K,<k>".
func (self *EC) QueryK(ctx context.Context) Response {
	r := self.send(ctx, "K,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?K") {
		if k, err := parseFloat(ts[1]); err == nil {
			self.k = k
			self.e.Log.Debugf("EC K=%v", k)
		}
	}
	return r
}

func (self *EC) Calibrate(ctx context.Context, cmd ECCalCommand, standard uint32) Response {
	var c string
	switch cmd {
	case ECCalClear:
		c = "Cal,clear\r"
	case ECCalDry:
		c = "Cal,dry\r"
	case ECCalOne:
		c = fmt.Sprintf("Cal,one,%d\r", standard)
	case ECCalLow:
		c = fmt.Sprintf("Cal,low,%d\r", standard)
	case ECCalHigh:
		c = fmt.Sprintf("Cal,high,%d\r", standard)
	case ECCalQuery:
		return self.QueryCalibration(ctx)
	default:
		return ResponseUnknown
	}
	return self.send(ctx, c, false)
}

func (self *EC) Read(ctx context.Context) (Response, error) {
	ensureOutputs(ctx, self.e, &self.outputs, self.QueryOutput)
	r := self.e.SendCommand(ctx, "R\r", true, self.readDelay, true)
	if r == ResponseOffline {
		return r, nil
	}
	return r, errors.Annotate(self.parseReading(self.e.Result().Tokens()), "EC reading")
}

// parseReading refreshes only enabled channels, disabled keep previous values.
func (self *EC) parseReading(ts []string) error {
	vs, err := parseMasked(self.e.Link, &self.outputs, ts)
	if err != nil {
		self.setAll(vs[0])
		return err
	}
	if self.Output(ECOutEC).On() {
		v := vs[ECOutEC]
		self.ec, self.ECText = v, FormatFixed(v, ecWidth(v), ecPrecision(v))
	}
	if self.Output(ECOutTDS).On() {
		self.tds, self.TDS = vs[ECOutTDS], FormatFixed(vs[ECOutTDS], 6, 1)
	}
	if self.Output(ECOutSalinity).On() {
		self.sal, self.SAL = vs[ECOutSalinity], FormatFixed(vs[ECOutSalinity], 7, 2)
	}
	if self.Output(ECOutSG).On() {
		v := vs[ECOutSG]
		if v < 10 {
			self.sg, self.SGText = v, FormatFixed(v, 5, 3)
		} else {
			self.sg, self.SGText = v, FormatFixed(v, 7, 2)
		}
	}
	return nil
}

func (self *EC) setAll(v float64) {
	self.ec, self.tds, self.sal, self.sg = v, v, v, v
	t := FormatFixed(v, 0, 0)
	self.ECText, self.TDS, self.SAL, self.SGText = t, t, t, t
}

func (self *EC) Measurements() []Measurement {
	all := []Measurement{
		{Name: "ec", Value: self.ec, Text: self.ECText},
		{Name: "tds", Value: self.tds, Text: self.TDS},
		{Name: "sal", Value: self.sal, Text: self.SAL},
		{Name: "sg", Value: self.sg, Text: self.SGText},
	}
	return enabledMeasurements(&self.outputs, all)
}

func (self *EC) Saturated() bool { return false }

func ecWidth(v float64) int {
	switch {
	case v <= 999.9:
		return 5
	case v >= 1000 && v <= 9999:
		return 4
	case v >= 10000 && v <= 99990:
		return 5
	default:
		return 6
	}
}

func ecPrecision(v float64) int {
	switch {
	case v <= 99.99:
		return 2
	case v <= 999.9:
		return 1
	default:
		return 0
	}
}

// parseMasked assigns tokens in order to enabled channels.
// Result has one value per channel, NoSensorData for disabled ones.
// Empty reply or fewer tokens than enabled channels is comms failure and every value is the failure sentinel.
func parseMasked(link *Link, outputs *outputSet, ts []string) ([]float64, error) {
	vs := make([]float64, len(outputs.names))
	need := outputs.enabled()
	if len(ts) == 0 || len(ts) < need {
		sentinel, err := commsFailure(link, "tokens=%d expected=%d", len(ts), need)
		for i := range vs {
			vs[i] = sentinel
		}
		return vs, err
	}
	next := 0
	for i := range vs {
		if !outputs.get(i).On() {
			vs[i] = NoSensorData
			continue
		}
		v, err := parseFloat(ts[next])
		if err != nil {
			sentinel, cerr := commsFailure(link, "channel=%s token=%q", outputs.names[i], ts[next])
			for j := range vs {
				vs[j] = sentinel
			}
			return vs, cerr
		}
		vs[i] = v
		next++
	}
	return vs, nil
}

func enabledMeasurements(outputs *outputSet, all []Measurement) []Measurement {
	ms := make([]Measurement, 0, len(all))
	for i, m := range all {
		if outputs.get(i).On() {
			ms = append(ms, m)
		}
	}
	return ms
}
