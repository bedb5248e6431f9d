package ezo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// EnvRGBMode selects reading groups of legacy ENV-RGB circuit.
type EnvRGBMode uint8

const (
	EnvRGBUnknown EnvRGBMode = iota
	EnvRGBDefault            // R,G,B
	EnvRGBLux                // lx_R,lx_G,lx_B,lx_total,lx_beyond
	EnvRGBAll                // both
)

const EnvRGBDefaultBaud = 38400

var envRGBModeEcho = [...]string{"", "RGB", "lx", "RGB+lx"}

// minimal reply "0,0,0" and friends
var envRGBMinLen = [...]int{0, 5, 9, 15}
var envRGBTokens = [...]int{0, 3, 5, 8}

func (self EnvRGBMode) String() string {
	if self == EnvRGBUnknown || int(self) >= len(envRGBModeEcho) {
		return "?"
	}
	return envRGBModeEcho[self]
}

// EnvRGB is the legacy ENV-RGB colour circuit. It predates EZO response codes,
// commands expect only a result line.
type EnvRGB struct {
	Circuit
	mode      EnvRGBMode
	saturated bool

	// red green blue, lux red green blue total beyond
	values [8]int
	Texts  [8]string
}

var envRGBNames = [...]string{"red", "green", "blue", "lx_red", "lx_green", "lx_blue", "lx_total", "lx_beyond"}

func NewEnvRGB(e *Engine) *EnvRGB {
	e.SetTiming(ColorTiming)
	e.SetResponseMode(TriOff)
	self := &EnvRGB{Circuit: newCircuit(e, KindEnvRGB)}
	self.setRange(0, 8, NoSensorData)
	return self
}

func (self *EnvRGB) Mode() EnvRGBMode { return self.mode }
func (self *EnvRGB) Saturated() bool  { return self.saturated }

func (self *EnvRGB) Red() int   { return self.values[0] }
func (self *EnvRGB) Green() int { return self.values[1] }
func (self *EnvRGB) Blue() int  { return self.values[2] }

// Lux returns red, green, blue, total and beyond visible spectrum illuminance.
func (self *EnvRGB) Lux() (r, g, b, total, beyond int) {
	v := self.values
	return v[3], v[4], v[5], v[6], v[7]
}

func (self *EnvRGB) send(ctx context.Context, command string, expectResult bool) Response {
	return self.e.SendCommand(ctx, command, expectResult, 0, false)
}

// Initialize flushes, stops continuous mode, queries info and sets mode if known.
func (self *EnvRGB) Initialize(ctx context.Context) error {
	return self.InitializeMode(ctx, self.mode)
}

func (self *EnvRGB) InitializeMode(ctx context.Context, mode EnvRGBMode) error {
	if self.e.Link.Offline() {
		return errors.Annotate(ErrNoComms, "link offline")
	}
	self.setRange(0, 8, NoSensorData)
	self.e.Flush()
	self.DisableContinuous(ctx)
	self.QueryInfo(ctx)
	if !self.e.Link.Connected() {
		return errors.Annotatef(ErrNoComms, "initialize kind=%s", self.kind)
	}
	if mode != EnvRGBUnknown {
		if r := self.SetMode(ctx, mode); r != ResponseOK {
			return errors.Errorf("ENV-RGB set mode=%s failed", mode)
		}
	}
	return ctx.Err()
}

func (self *EnvRGB) EnableContinuous(ctx context.Context) Response {
	return self.send(ctx, "C\r", false)
}

// DisableContinuous waits for one last set of values and discards it.
func (self *EnvRGB) DisableContinuous(ctx context.Context) Response {
	r := self.send(ctx, "E\r", false)
	self.e.Wait(ctx, 1100*time.Millisecond)
	self.e.Flush()
	self.continuous = TriOff
	return r
}

// SetMode "M<n>", device echoes group names. Unwanted groups are reset to NoSensorData.
func (self *EnvRGB) SetMode(ctx context.Context, mode EnvRGBMode) Response {
	if mode == EnvRGBUnknown || int(mode) >= len(envRGBModeEcho) {
		return ResponseError
	}
	self.mode = mode
	r := self.send(ctx, fmt.Sprintf("M%d\r", mode), true)
	if r == ResponseOffline {
		return r
	}
	if strings.TrimSpace(self.e.Result().String()) != envRGBModeEcho[mode] {
		return ResponseError
	}
	switch mode {
	case EnvRGBDefault:
		self.setRange(3, 8, NoSensorData)
	case EnvRGBLux:
		self.setRange(0, 3, NoSensorData)
	case EnvRGBAll:
		self.setRange(0, 8, NoSensorData)
	}
	return ResponseOK
}

// QueryInfo reply "C,V<version>,<date>". Valid reply latches Link connected.
func (self *EnvRGB) QueryInfo(ctx context.Context) Response {
	r := self.send(ctx, "I\r", true)
	if r == ResponseOffline {
		return r
	}
	ts := self.e.Result().Tokens()
	if len(ts) < 2 || ts[0] != "C" || !strings.HasPrefix(ts[1], "V") {
		self.e.Log.Debugf("ENV-RGB info not recognized: %q", self.e.Result().String())
		return ResponseUnknown
	}
	self.e.Link.MarkConnected()
	self.info = Info{Kind: KindEnvRGB, Firmware: ts[1]}
	if len(ts) >= 3 {
		self.info.Date = ts[2]
	}
	return ResponseOK
}

func (self *EnvRGB) Read(ctx context.Context) (Response, error) {
	r := self.e.SendCommand(ctx, "R\r", true, self.readDelay, false)
	if r == ResponseOffline {
		return r, nil
	}
	return r, errors.Annotate(self.parseReading(self.e.Result().String()), "ENV-RGB reading")
}

func (self *EnvRGB) parseReading(line string) error {
	mode := self.mode
	if mode == EnvRGBUnknown {
		mode = EnvRGBDefault
	}
	ts := tokenize(line)
	var err error
	values := make([]int, 0, 8)
	self.saturated = false
	for _, t := range ts {
		if strings.HasPrefix(t, "*") {
			self.saturated = true
			continue
		}
		v, perr := parseInt(t)
		if perr != nil {
			err = perr
			break
		}
		values = append(values, v)
	}
	if err == nil && (len(line) < envRGBMinLen[mode] || len(values) < envRGBTokens[mode]) {
		err = errors.NotValidf("short reply mode=%s len=%d tokens=%d", mode, len(line), len(values))
	}
	if err != nil {
		sentinel, cerr := commsFailure(self.e.Link, "%v", err)
		self.setRange(0, 8, int(sentinel))
		return cerr
	}
	lo := 0
	if mode == EnvRGBLux {
		lo = 3
	}
	for i, v := range values[:envRGBTokens[mode]] {
		self.values[lo+i] = v
		self.Texts[lo+i] = fmt.Sprintf("%4d", v)
	}
	return nil
}

func (self *EnvRGB) setRange(from, to, v int) {
	for i := from; i < to; i++ {
		self.values[i] = v
		self.Texts[i] = strconv.Itoa(v)
	}
}

func (self *EnvRGB) Measurements() []Measurement {
	lo, hi := 0, 3
	switch self.mode {
	case EnvRGBLux:
		lo, hi = 3, 8
	case EnvRGBAll:
		hi = 8
	}
	ms := make([]Measurement, 0, hi-lo)
	for i := lo; i < hi; i++ {
		ms = append(ms, Measurement{Name: envRGBNames[i], Value: float64(self.values[i]), Text: self.Texts[i]})
	}
	return ms
}
