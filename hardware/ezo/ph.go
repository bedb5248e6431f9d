package ezo

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

type PHCalPoint uint8

const (
	PHCalMid PHCalPoint = iota
	PHCalLow
	PHCalHigh
)

var phCalNames = [...]string{"mid", "low", "high"}

type PH struct {
	Circuit
	ph   float64
	Text string
}

func NewPH(e *Engine) *PH {
	return &PH{Circuit: newCircuit(e, KindPH), ph: NoSensorData, Text: FormatFixed(NoSensorData, 5, 2)}
}

func (self *PH) Initialize(ctx context.Context) error {
	err := self.initialize(ctx)
	self.e.Log.Debugf("pH initialization done err=%v", err)
	return err
}

func (self *PH) PH() float64 { return self.ph }

func (self *PH) Read(ctx context.Context) (Response, error) {
	r := self.e.SendCommand(ctx, "R\r", true, self.readDelay, true)
	if r == ResponseOffline {
		return r, nil
	}
	v, err := parseSingle(self.e.Link, self.e.Result().Tokens())
	self.ph, self.Text = v, FormatFixed(v, 5, 2)
	return r, errors.Annotate(err, "pH reading")
}

func (self *PH) Measurements() []Measurement {
	return []Measurement{{Name: "ph", Value: self.ph, Text: self.Text}}
}

func (self *PH) Saturated() bool { return false }

func (self *PH) Calibrate(ctx context.Context, point PHCalPoint, value float64) Response {
	if int(point) >= len(phCalNames) {
		return ResponseError
	}
	return self.send(ctx, fmt.Sprintf("Cal,%s,%.2f\r", phCalNames[point], value), false)
}

// parseSingle is the reply parser of single value circuits (pH, ORP).
func parseSingle(link *Link, ts []string) (float64, error) {
	if len(ts) < 1 {
		return commsFailure(link, "empty reply")
	}
	v, err := parseFloat(ts[0])
	if err != nil {
		sentinel, cerr := commsFailure(link, "token=%q", ts[0])
		return sentinel, cerr
	}
	return v, nil
}
