package ezo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

type CalibrationStatus uint8

const (
	CalUnknown    CalibrationStatus = iota
	CalCalibrated                   // ORP only
	CalNotCalibrated
	CalSingle
	CalDouble
	CalTriple // pH only
)

func (self CalibrationStatus) String() string {
	return [...]string{"unknown", "calibrated", "not-calibrated", "single", "double", "triple"}[self]
}

const (
	DefaultTempComp = 25.1
	NameMaxLength   = 16
	I2CMinAddress   = 1
	I2CMaxAddress   = 127
)

var BaudRates = []int{300, 1200, 2400, 9600, 19200, 38400, 57600, 115200}

// baud rates to scan by FixBaudRate, most likely first
var baudScan = []int{1200, 38400, 9600, 19200, 57600, 2400, 300, 115200}

// Circuit implements commands common to all EZO circuits.
// Specific drivers embed it and add reading parser and command vocabulary.
type Circuit struct {
	e    *Engine
	kind Kind

	info        Info
	name        string
	continuous  Tristate
	led         Tristate
	calibration CalibrationStatus
	status      Status
	tempComp    float64
	readDelay   time.Duration
}

func newCircuit(e *Engine, kind Kind) Circuit {
	return Circuit{
		e:          e,
		kind:       kind,
		info:       Info{Kind: kind, Firmware: "0.0"},
		name:       "UNKNOWN",
		continuous: TriUnknown,
		led:        TriUnknown,
	}
}

func (self *Circuit) Engine() *Engine { return self.e }
func (self *Circuit) Kind() Kind      { return self.kind }

func (self *Circuit) Info() Info                     { return self.info }
func (self *Circuit) Name() string                   { return self.name }
func (self *Circuit) Continuous() Tristate           { return self.continuous }
func (self *Circuit) LED() Tristate                  { return self.led }
func (self *Circuit) Calibration() CalibrationStatus { return self.calibration }
func (self *Circuit) Status() Status                 { return self.status }
func (self *Circuit) TempComp() float64              { return self.tempComp }

// SetReadDelay sets forced wait between result arrival and line read for readings.
func (self *Circuit) SetReadDelay(d time.Duration) { self.readDelay = d }

func (self *Circuit) send(ctx context.Context, command string, expectResult bool) Response {
	return self.e.SendCommand(ctx, command, expectResult, 0, true)
}

func (self *Circuit) EnableContinuous(ctx context.Context) Response {
	if self.e.I2CMode() {
		return ResponseNotApplicable
	}
	return self.send(ctx, "C,1\r", false)
}

func (self *Circuit) DisableContinuous(ctx context.Context) Response {
	if self.e.I2CMode() {
		self.continuous = TriOff
		return ResponseOK
	}
	return self.send(ctx, "C,0\r", false)
}

// QueryContinuous reply "?C,<n>", n=0 off, n>0 on (seconds interval in newer firmware).
func (self *Circuit) QueryContinuous(ctx context.Context) Response {
	if self.e.I2CMode() {
		self.continuous = TriOff
		return ResponseNotApplicable
	}
	r := self.send(ctx, "C,?\r", true)
	self.continuous = TriUnknown
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?C") {
		if n, err := strconv.Atoi(ts[1]); err == nil {
			self.continuous = TristateFrom(n != 0)
		}
	}
	return r
}

// QueryCalibration reply "?Cal,<n>".
func (self *Circuit) QueryCalibration(ctx context.Context) Response {
	r := self.send(ctx, "Cal,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?Cal") {
		self.calibration = CalUnknown
		switch ts[1] {
		case "0":
			self.calibration = CalNotCalibrated
		case "1":
			if self.kind == KindORP {
				self.calibration = CalCalibrated
			} else {
				self.calibration = CalSingle
			}
		case "2":
			self.calibration = CalDouble
		case "3":
			self.calibration = CalTriple
		}
	}
	return r
}

func (self *Circuit) ClearCalibration(ctx context.Context) Response {
	return self.send(ctx, "Cal,clear\r", false)
}

// SetI2CAddress switches the circuit to I2C mode, it reboots and stops talking serial.
// Engine continues with I2C strategy only if a bus was attached by UseI2C.
func (self *Circuit) SetI2CAddress(ctx context.Context, addr int) Response {
	if addr < I2CMinAddress || addr > I2CMaxAddress {
		return ResponseError
	}
	r := self.send(ctx, fmt.Sprintf("I2C,%d\r", addr), false)
	if r != ResponseError && r != ResponseOffline && self.e.bus != nil {
		self.e.UseI2C(self.e.bus, uint8(addr))
	}
	return r
}

func (self *Circuit) EnableLED(ctx context.Context) Response {
	return self.send(ctx, "L,1\r", false)
}

func (self *Circuit) DisableLED(ctx context.Context) Response {
	return self.send(ctx, "L,0\r", false)
}

func (self *Circuit) QueryLED(ctx context.Context) Response {
	r := self.send(ctx, "L,?\r", true)
	self.led = TriUnknown
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?L") {
		self.led = parseFlag(ts[1])
	}
	return r
}

func (self *Circuit) SetName(ctx context.Context, name string) Response {
	if len(name) == 0 || len(name) > NameMaxLength || strings.ContainsAny(name, ",\r\n ") {
		return ResponseError
	}
	return self.send(ctx, fmt.Sprintf("NAME,%s\r", name), false)
}

// QueryName reply "?NAME,<name>", device omits name when not set.
func (self *Circuit) QueryName(ctx context.Context) Response {
	r := self.send(ctx, "NAME,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 1 && tag(ts[0], "?NAME") {
		self.name = ""
		if len(ts) >= 2 {
			self.name = ts[1]
		}
	}
	return r
}

// QueryInfo also selects reset command for the firmware.
// Valid reply latches Link connected.
func (self *Circuit) QueryInfo(ctx context.Context) Response {
	r := self.send(ctx, "I\r", true)
	info, err := ParseInfo(self.e.Result().String())
	if err != nil {
		self.e.Log.Debugf("query info: %v", err)
		return r
	}
	self.e.Link.MarkConnected()
	if self.kind != KindUnknown && info.Kind != self.kind {
		self.e.Log.Errorf("device kind=%s expected=%s", info.Kind, self.kind)
	}
	self.info = info
	self.e.Log.Debugf("device kind=%s firmware=%s reset=%s", info.Kind, info.Firmware, info.ResetCommand())
	return r
}

func (self *Circuit) EnableResponse(ctx context.Context) Response {
	if self.e.I2CMode() {
		return ResponseSuccess
	}
	// expect *OK even when response codes were off
	prev := self.e.ResponseMode()
	self.e.SetResponseMode(TriOn)
	r := self.send(ctx, "RESPONSE,1\r", false)
	if r != ResponseOK {
		self.e.SetResponseMode(prev)
	}
	return r
}

// DisableResponse expects no response code since device stops sending them.
func (self *Circuit) DisableResponse(ctx context.Context) Response {
	if self.e.I2CMode() {
		return ResponseFailed
	}
	r := self.e.SendCommand(ctx, "RESPONSE,0\r", false, 0, false)
	if r != ResponseOffline {
		self.e.SetResponseMode(TriOff)
	}
	return r
}

// QueryResponse reply "?RESPONSE,<0|1>", updates Engine response mode.
// Valid reply latches Link connected even when device has response codes off.
func (self *Circuit) QueryResponse(ctx context.Context) Response {
	if self.e.I2CMode() {
		self.e.SetResponseMode(TriOn)
		return ResponseSuccess
	}
	r := self.send(ctx, "RESPONSE,?\r", true)
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?RESPONSE") {
		mode := parseFlag(ts[1])
		self.e.SetResponseMode(mode)
		if mode.Known() {
			self.e.Link.MarkConnected()
		}
	}
	self.e.Log.Debugf("response mode=%s", self.e.ResponseMode())
	return r
}

func (self *Circuit) SetBaudRate(ctx context.Context, baud int) Response {
	valid := false
	for _, b := range BaudRates {
		valid = valid || b == baud
	}
	if !valid {
		return ResponseError
	}
	r := self.send(ctx, fmt.Sprintf("SERIAL,%d\r", baud), false)
	if r == ResponseOffline {
		return r
	}
	if err := self.e.Begin(baud); err != nil {
		self.e.Log.Error(err)
	}
	// *RS *RE follow after baud change
	self.e.DelayUntilData(ctx, 500*time.Millisecond)
	self.e.Flush()
	return r
}

// FixBaudRate scans known baud rates until circuit accepts switch to desired.
func (self *Circuit) FixBaudRate(ctx context.Context, desired int) Response {
	if self.e.Link.Offline() {
		return ResponseOffline
	}
	r := ResponseUnknown
	for _, b := range baudScan {
		if ctx.Err() != nil {
			break
		}
		self.e.Log.Debugf("trying baud rate=%d", b)
		if err := self.e.Begin(b); err != nil {
			self.e.Log.Error(err)
			continue
		}
		if err := self.e.WriteRaw('\r'); err != nil {
			self.e.Log.Error(err)
		}
		self.DisableContinuous(ctx)
		self.e.DelayUntilData(ctx, 500*time.Millisecond)
		self.e.Flush()
		if r = self.SetBaudRate(ctx, desired); r == ResponseOK {
			self.e.Log.Infof("baud rate fixed from=%d to=%d", b, desired)
			break
		}
	}
	self.e.Wait(ctx, time.Second)
	self.e.Flush()
	return r
}

func (self *Circuit) Sleep(ctx context.Context) Response {
	return self.send(ctx, "SLEEP\r", false)
}

// Wake sends any character, expects *WA.
func (self *Circuit) Wake(ctx context.Context) Response {
	self.e.Flush()
	return self.send(ctx, "\r", false)
}

func (self *Circuit) QueryStatus(ctx context.Context) Response {
	r := self.send(ctx, "STATUS\r", true)
	s, err := ParseStatus(self.e.Result().String())
	if err != nil {
		self.e.Log.Debugf("query status: %v", err)
	}
	self.status = s
	return r
}

// Reset sends factory reset. Call Initialize after.
func (self *Circuit) Reset(ctx context.Context) Response {
	return self.send(ctx, self.info.ResetCommand()+"\r", false)
}

func (self *Circuit) SetTempComp(ctx context.Context, celsius float64) Response {
	self.tempComp = celsius
	return self.send(ctx, "T,"+strings.TrimSpace(FormatFixed(celsius, 4, 1))+"\r", false)
}

// QueryTempComp reply "?T,<celsius>"; DefaultTempComp when reply missing.
func (self *Circuit) QueryTempComp(ctx context.Context) Response {
	r := self.send(ctx, "T,?\r", true)
	self.tempComp = DefaultTempComp
	ts := self.e.Result().Tokens()
	if len(ts) >= 2 && tag(ts[0], "?T") {
		if v, err := parseFloat(ts[1]); err == nil {
			self.tempComp = v
		}
	}
	self.e.Log.Debugf("temperature compensation=%.1f", self.tempComp)
	return r
}

// initialize runs common setup. Returns error if circuit did not reply.
func (self *Circuit) initialize(ctx context.Context) error {
	if self.e.Link.Offline() {
		return errors.Annotate(ErrNoComms, "link offline")
	}
	self.e.Wait(ctx, self.e.Timing().InitDelay)
	self.e.Flush()
	self.QueryResponse(ctx)
	if !self.e.Link.Connected() {
		return errors.Annotatef(ErrNoComms, "initialize kind=%s", self.kind)
	}
	if self.e.ResponseMode() != TriOn {
		self.EnableResponse(ctx)
	}
	self.DisableContinuous(ctx)
	self.QueryContinuous(ctx)
	self.QueryStatus(ctx)
	self.QueryInfo(ctx)
	return ctx.Err()
}
