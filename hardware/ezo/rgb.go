package ezo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/juju/errors"
)

// RGB output channels.
type RGBOutput uint8

const (
	RGBOutRGB RGBOutput = iota
	RGBOutProx
	RGBOutLux
	RGBOutCIE
)

// IR LED power for proximity detection.
type IRPower uint8

const (
	IRUnknown IRPower = iota
	IRLow
	IRMedium
	IRHigh
)

var irCodes = [...]string{"", "L", "M", "H"}

// RGBConfig is applied by Initialize after common setup.
type RGBConfig struct {
	Brightness int      // LED 0-100 %
	Auto       Tristate // LED auto brightness
	Proximity  int      // 0 disabled, 1 enabled, 2-1023 trigger distance
	IR         IRPower
}

var DefaultRGBConfig = RGBConfig{Brightness: 0, Auto: TriOn, Proximity: 0, IR: IRLow}

// RGB is EZO colour circuit.
// Reading groups are identified by tag: untagged "R,G,B", "P,<prox>", "Lux,<lux>", "xyY,<x>,<y>,<Y>".
type RGB struct {
	Circuit
	Config  RGBConfig
	outputs outputSet

	brightness int
	auto       Tristate
	proximity  int
	ir         IRPower
	matching   Tristate
	gamma      float64

	red, green, blue, prox, lux int
	cieX, cieY                  float64
	cieBigY                     int
	saturated                   bool
	Texts                       RGBTexts
}

type RGBTexts struct {
	Red, Green, Blue, Prox, Lux, CIEx, CIEy, CIEY string
}

func NewRGB(e *Engine) *RGB {
	e.SetTiming(ColorTiming)
	self := &RGB{
		Circuit:    newCircuit(e, KindRGB),
		Config:     DefaultRGBConfig,
		outputs:    newOutputSet("RGB", "PROX", "LUX", "CIE").withFactory(int(RGBOutRGB)),
		brightness: -1,
		proximity:  -1,
	}
	self.setAll(NoSensorData)
	return self
}

func (self *RGB) Initialize(ctx context.Context) error {
	if err := self.initialize(ctx); err != nil {
		return err
	}
	self.Configure(ctx, self.Config)
	self.QueryOutput(ctx)
	self.e.Log.Debugf("RGB initialization done outputs=%s", self.outputs.query())
	return ctx.Err()
}

// Configure changes LED and proximity settings only where device differs from c.
func (self *RGB) Configure(ctx context.Context, c RGBConfig) {
	self.QueryLEDBrightness(ctx)
	if self.brightness != c.Brightness || self.auto != c.Auto {
		self.SetLEDBrightness(ctx, c.Brightness, c.Auto.On())
	}
	self.QueryProximity(ctx)
	if self.proximity != c.Proximity {
		switch c.Proximity {
		case 0:
			self.DisableProximity(ctx)
		case 1:
			self.EnableProximity(ctx)
		default:
			self.SetProximityDistance(ctx, c.Proximity)
		}
	}
	if self.ir != c.IR && c.IR != IRUnknown {
		self.SetProximityLED(ctx, c.IR)
	}
}

func (self *RGB) Output(o RGBOutput) Tristate { return self.outputs.get(int(o)) }

func (self *RGB) EnableOutput(ctx context.Context, o RGBOutput) Response {
	return self.send(ctx, self.outputs.command(int(o), true), false)
}

func (self *RGB) DisableOutput(ctx context.Context, o RGBOutput) Response {
	return self.send(ctx, self.outputs.command(int(o), false), false)
}

// QueryOutput reply "?O,RGB,PROX,LUX,CIE".
func (self *RGB) QueryOutput(ctx context.Context) Response {
	r := self.send(ctx, "O,?\r", true)
	self.outputs.parseQuery(self.e.Result().Tokens())
	return r
}

func (self *RGB) Calibrate(ctx context.Context) Response {
	return self.send(ctx, "Cal\r", false)
}

func (self *RGB) LEDBrightness() (int, Tristate) { return self.brightness, self.auto }

// SetLEDBrightness "L,<pct>[,T]", T enables auto brightness.
func (self *RGB) SetLEDBrightness(ctx context.Context, pct int, auto bool) Response {
	if pct < 0 || pct > 100 {
		return ResponseError
	}
	c := fmt.Sprintf("L,%d\r", pct)
	if auto {
		c = fmt.Sprintf("L,%d,T\r", pct)
	}
	r := self.send(ctx, c, true)
	if r == ResponseOK {
		self.brightness, self.auto = pct, TristateFrom(auto)
	}
	return r
}

// QueryLEDBrightness reply "?L,<pct>[,T]".
func (self *RGB) QueryLEDBrightness(ctx context.Context) Response {
	r := self.send(ctx, "L,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?L") {
		if v, err := strconv.Atoi(ts[1]); err == nil {
			self.brightness = v
		}
		self.auto = TristateFrom(len(ts) >= 3 && tag(ts[2], "T"))
	}
	return r
}

func (self *RGB) Proximity() (int, IRPower) { return self.proximity, self.ir }

func (self *RGB) DisableProximity(ctx context.Context) Response {
	return self.setProximity(ctx, 0)
}

func (self *RGB) EnableProximity(ctx context.Context) Response {
	return self.setProximity(ctx, 1)
}

func (self *RGB) setProximity(ctx context.Context, v int) Response {
	r := self.send(ctx, fmt.Sprintf("P,%d\r", v), false)
	if r == ResponseOK {
		self.proximity = v
	}
	return r
}

// SetProximityDistance sets trigger distance 2-1023.
func (self *RGB) SetProximityDistance(ctx context.Context, distance int) Response {
	if distance < 2 || distance > 1023 {
		return ResponseError
	}
	return self.setProximity(ctx, distance)
}

func (self *RGB) SetProximityLED(ctx context.Context, p IRPower) Response {
	if p == IRUnknown || int(p) >= len(irCodes) {
		return ResponseError
	}
	r := self.send(ctx, "P,"+irCodes[p]+"\r", false)
	if r == ResponseOK {
		self.ir = p
	}
	return r
}

// QueryProximity reply "?P,<distance>,<H|M|L>".
func (self *RGB) QueryProximity(ctx context.Context) Response {
	r := self.send(ctx, "P,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?P") {
		if v, err := strconv.Atoi(ts[1]); err == nil {
			self.proximity = v
		}
		self.ir = IRUnknown
		if len(ts) >= 3 {
			for i, code := range irCodes {
				if i != 0 && tag(ts[2], code) {
					self.ir = IRPower(i)
				}
			}
		}
	}
	return r
}

func (self *RGB) Matching() Tristate { return self.matching }

func (self *RGB) EnableMatching(ctx context.Context) Response {
	return self.send(ctx, "M,1\r", false)
}

func (self *RGB) DisableMatching(ctx context.Context) Response {
	return self.send(ctx, "M,0\r", false)
}

// QueryMatching reply "?M,<0|1>".
func (self *RGB) QueryMatching(ctx context.Context) Response {
	r := self.send(ctx, "M,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?M") {
		self.matching = parseFlag(ts[1])
	}
	return r
}

func (self *RGB) Gamma() float64 { return self.gamma }

// SetGamma correction 0.01-4.99.
func (self *RGB) SetGamma(ctx context.Context, g float64) Response {
	if g < 0.01 || g > 4.99 {
		return ResponseError
	}
	return self.send(ctx, fmt.Sprintf("g,%4.3f\r", g), false)
}

// QueryGamma reply "?G,<gamma>".
func (self *RGB) QueryGamma(ctx context.Context) Response {
	r := self.send(ctx, "G,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?G") {
		if v, err := parseFloat(ts[1]); err == nil {
			self.gamma = v
		}
	}
	return r
}

func (self *RGB) Red() int        { return self.red }
func (self *RGB) Green() int      { return self.green }
func (self *RGB) Blue() int       { return self.blue }
func (self *RGB) Prox() int       { return self.prox }
func (self *RGB) Lux() int        { return self.lux }
func (self *RGB) CIEx() float64   { return self.cieX }
func (self *RGB) CIEy() float64   { return self.cieY }
func (self *RGB) CIEY() int       { return self.cieBigY }
func (self *RGB) Saturated() bool { return self.saturated }

func (self *RGB) Read(ctx context.Context) (Response, error) {
	ensureOutputs(ctx, self.e, &self.outputs, self.QueryOutput)
	r := self.e.SendCommand(ctx, "R\r", true, self.readDelay, true)
	if r == ResponseOffline {
		return r, nil
	}
	return r, errors.Annotate(self.parseReading(self.e.Result().Tokens()), "RGB reading")
}

type rgbReading struct {
	red, green, blue, prox, lux, cieBigY int
	cieX, cieY                           float64
	seen                                 [4]bool
	saturated                            bool
}

// parseRGBTokens dispatches on group tag rather than position.
func parseRGBTokens(ts []string) (rgbReading, error) {
	var rd rgbReading
	take := func(i, n int, group string) ([]string, error) {
		if i+n > len(ts) {
			return nil, errors.NotValidf("%s group short tokens=%d", group, len(ts)-i)
		}
		return ts[i : i+n], nil
	}
	for i := 0; i < len(ts); {
		t := ts[i]
		switch {
		case t == "*":
			rd.saturated = true
			i++
		case tag(t, "P"):
			g, err := take(i+1, 1, "P")
			if err != nil {
				return rd, err
			}
			if rd.prox, err = parseInt(g[0]); err != nil {
				return rd, err
			}
			rd.seen[RGBOutProx] = true
			i += 2
		case tag(t, "Lux"):
			g, err := take(i+1, 1, "Lux")
			if err != nil {
				return rd, err
			}
			if rd.lux, err = parseInt(g[0]); err != nil {
				return rd, err
			}
			rd.seen[RGBOutLux] = true
			i += 2
		case tag(t, "xyY"):
			g, err := take(i+1, 3, "xyY")
			if err != nil {
				return rd, err
			}
			if rd.cieX, err = parseFloat(g[0]); err != nil {
				return rd, err
			}
			if rd.cieY, err = parseFloat(g[1]); err != nil {
				return rd, err
			}
			if rd.cieBigY, err = parseInt(g[2]); err != nil {
				return rd, err
			}
			rd.seen[RGBOutCIE] = true
			i += 4
		default:
			// RGB group has no tag
			g, err := take(i, 3, "RGB")
			if err != nil {
				return rd, err
			}
			if rd.red, err = parseInt(g[0]); err != nil {
				return rd, err
			}
			if rd.green, err = parseInt(g[1]); err != nil {
				return rd, err
			}
			if rd.blue, err = parseInt(g[2]); err != nil {
				return rd, err
			}
			rd.seen[RGBOutRGB] = true
			i += 3
		}
	}
	return rd, nil
}

func (self *RGB) parseReading(ts []string) error {
	rd, err := parseRGBTokens(ts)
	if len(ts) == 0 {
		err = errors.NotValidf("empty reply")
	}
	if err == nil {
		for i := range rd.seen {
			if self.outputs.get(i).On() && !rd.seen[i] {
				err = errors.NotValidf("missing group %s", self.outputs.names[i])
				break
			}
		}
	}
	if err != nil {
		sentinel, cerr := commsFailure(self.e.Link, "%v", err)
		self.setAll(int(sentinel))
		return cerr
	}
	self.saturated = rd.saturated
	if rd.seen[RGBOutRGB] {
		self.red, self.green, self.blue = rd.red, rd.green, rd.blue
		self.Texts.Red = fmt.Sprintf("%3d", rd.red)
		self.Texts.Green = fmt.Sprintf("%3d", rd.green)
		self.Texts.Blue = fmt.Sprintf("%3d", rd.blue)
	}
	if rd.seen[RGBOutProx] {
		self.prox, self.Texts.Prox = rd.prox, fmt.Sprintf("%4d", rd.prox)
	}
	if rd.seen[RGBOutLux] {
		self.lux, self.Texts.Lux = rd.lux, fmt.Sprintf("%5d", rd.lux)
	}
	if rd.seen[RGBOutCIE] {
		self.cieX, self.cieY, self.cieBigY = rd.cieX, rd.cieY, rd.cieBigY
		self.Texts.CIEx = FormatFixed(rd.cieX, 5, 3)
		self.Texts.CIEy = FormatFixed(rd.cieY, 5, 3)
		self.Texts.CIEY = fmt.Sprintf("%5d", rd.cieBigY)
	}
	return nil
}

func (self *RGB) setAll(v int) {
	self.red, self.green, self.blue, self.prox, self.lux, self.cieBigY = v, v, v, v, v, v
	self.cieX, self.cieY = float64(v), float64(v)
	s := strconv.Itoa(v)
	self.Texts = RGBTexts{s, s, s, s, s, s, s, s}
}

func (self *RGB) Measurements() []Measurement {
	ms := make([]Measurement, 0, 8)
	if self.Output(RGBOutRGB).On() {
		ms = append(ms,
			Measurement{Name: "red", Value: float64(self.red), Text: self.Texts.Red},
			Measurement{Name: "green", Value: float64(self.green), Text: self.Texts.Green},
			Measurement{Name: "blue", Value: float64(self.blue), Text: self.Texts.Blue})
	}
	if self.Output(RGBOutProx).On() {
		ms = append(ms, Measurement{Name: "prox", Value: float64(self.prox), Text: self.Texts.Prox})
	}
	if self.Output(RGBOutLux).On() {
		ms = append(ms, Measurement{Name: "lux", Value: float64(self.lux), Text: self.Texts.Lux})
	}
	if self.Output(RGBOutCIE).On() {
		ms = append(ms,
			Measurement{Name: "cie_x", Value: self.cieX, Text: self.Texts.CIEx},
			Measurement{Name: "cie_y", Value: self.cieY, Text: self.Texts.CIEy},
			Measurement{Name: "cie_Y", Value: float64(self.cieBigY), Text: self.Texts.CIEY})
	}
	return ms
}
