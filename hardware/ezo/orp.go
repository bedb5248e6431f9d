package ezo

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

// ORP is oxidation reduction potential circuit, value in mV.
type ORP struct {
	Circuit
	orp  float64
	Text string
}

func NewORP(e *Engine) *ORP {
	return &ORP{Circuit: newCircuit(e, KindORP), orp: NoSensorData, Text: FormatFixed(NoSensorData, 6, 1)}
}

func (self *ORP) Initialize(ctx context.Context) error {
	err := self.initialize(ctx)
	self.e.Log.Debugf("ORP initialization done err=%v", err)
	return err
}

func (self *ORP) ORP() float64 { return self.orp }

func (self *ORP) Read(ctx context.Context) (Response, error) {
	r := self.e.SendCommand(ctx, "R\r", true, self.readDelay, true)
	if r == ResponseOffline {
		return r, nil
	}
	v, err := parseSingle(self.e.Link, self.e.Result().Tokens())
	self.orp, self.Text = v, FormatFixed(v, 6, 1)
	return r, errors.Annotate(err, "ORP reading")
}

func (self *ORP) Measurements() []Measurement {
	return []Measurement{{Name: "orp", Value: self.orp, Text: self.Text}}
}

func (self *ORP) Saturated() bool { return false }

func (self *ORP) Calibrate(ctx context.Context, mv float64) Response {
	return self.send(ctx, fmt.Sprintf("Cal,%.1f\r", mv), false)
}
