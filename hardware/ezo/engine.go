package ezo

import (
	"context"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atlas/log2"
)

type Timing struct {
	ResultTimeout   time.Duration // wait for first byte of result line
	ResponseSettle  time.Duration // fixed delay before response code peek
	ResponseTimeout time.Duration // wait for first byte of response line
	I2CDelay        time.Duration // processing delay before I2C read
	InitDelay       time.Duration // circuit boot time before Initialize flush
}

var DefaultTiming = Timing{
	ResultTimeout:   5000 * time.Millisecond,
	ResponseSettle:  300 * time.Millisecond,
	ResponseTimeout: 1000 * time.Millisecond,
	I2CDelay:        300 * time.Millisecond,
	InitDelay:       2000 * time.Millisecond,
}

// Colour sensing takes longer.
var ColorTiming = Timing{
	ResultTimeout:   10000 * time.Millisecond,
	ResponseSettle:  DefaultTiming.ResponseSettle,
	ResponseTimeout: DefaultTiming.ResponseTimeout,
	I2CDelay:        DefaultTiming.I2CDelay,
	InitDelay:       DefaultTiming.InitDelay,
}

// Engine runs command/response exchanges over one Transport.
// Exactly one exchange at a time, no internal synchronization.
// Serial is the primary strategy; non-zero I2C address selects the I2C strategy.
type Engine struct {
	Log  *log2.Log
	Link *Link

	t        Transport
	clock    Clock
	timing   Timing
	result   *Buffer
	response *Buffer

	responseMode Tristate
	lastResponse Response

	bus     I2CBus
	i2cAddr uint8
	i2cBuf  []byte
}

func NewEngine(log *log2.Log, t Transport, clock Clock) *Engine {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Engine{
		Log:          log,
		Link:         NewLink(log),
		t:            t,
		clock:        clock,
		timing:       DefaultTiming,
		result:       NewBuffer(ResultBufferSize),
		response:     NewBuffer(ResponseBufferSize),
		lastResponse: ResponseNotApplicable,
	}
}

// Begin sets local baud rate and discards pending input.
func (self *Engine) Begin(baud int) error {
	self.Link.setBaud(baud)
	if self.t == nil {
		return nil
	}
	if err := self.t.Begin(baud); err != nil {
		return errors.Annotatef(err, "transport begin baud=%d", baud)
	}
	self.Flush()
	return nil
}

func (self *Engine) Close() error {
	if self.t == nil {
		return nil
	}
	return self.t.Close()
}

func (self *Engine) Timing() Timing     { return self.timing }
func (self *Engine) SetTiming(t Timing) { self.timing = t }
func (self *Engine) Clock() Clock       { return self.clock }

// Result is the last captured result line.
func (self *Engine) Result() *Buffer { return self.result }

func (self *Engine) LastResponse() Response        { return self.lastResponse }
func (self *Engine) ResponseMode() Tristate        { return self.responseMode }
func (self *Engine) SetResponseMode(mode Tristate) { self.responseMode = mode }

// UseI2C selects I2C strategy for addr 1..127; addr=0 returns to serial.
func (self *Engine) UseI2C(bus I2CBus, addr uint8) {
	self.bus = bus
	self.i2cAddr = addr
	if self.i2cBuf == nil {
		self.i2cBuf = make([]byte, ResultBufferSize+1)
	}
}

func (self *Engine) I2CAddress() uint8 { return self.i2cAddr }
func (self *Engine) I2CMode() bool     { return self.i2cAddr != 0 }

// Flush discards pending input, returns number of bytes dropped.
func (self *Engine) Flush() int {
	if self.Link.Offline() || self.t == nil || self.I2CMode() {
		return 0
	}
	n := 0
	for self.t.Available() > 0 {
		if _, err := self.t.ReadByte(); err != nil {
			break
		}
		n++
	}
	if n > 0 {
		self.Log.Debugf("flushed %d bytes", n)
	}
	return n
}

// DelayUntilData polls until a byte is available or timeout.
func (self *Engine) DelayUntilData(ctx context.Context, timeout time.Duration) (byte, bool) {
	if self.Link.Offline() || self.t == nil {
		return 0, false
	}
	start := self.clock.Now()
	for {
		if b, ok := self.t.Peek(); ok {
			return b, true
		}
		if ctx.Err() != nil || self.clock.Now()-start > timeout {
			return 0, false
		}
		self.clock.Yield()
	}
}

// Wait is forced delay. Context cancel ends it early.
func (self *Engine) Wait(ctx context.Context, d time.Duration) {
	start := self.clock.Now()
	for self.clock.Now()-start < d {
		if ctx.Err() != nil {
			return
		}
		self.clock.Yield()
	}
}

// WriteRaw and ReadRaw bypass the protocol, for console passthrough.
func (self *Engine) WriteRaw(b byte) error {
	if self.Link.Offline() {
		return errors.Errorf("link offline")
	}
	return self.t.WriteByte(b)
}

func (self *Engine) ReadRaw() (byte, error) {
	if self.Link.Offline() {
		return 0, errors.Errorf("link offline")
	}
	return self.t.ReadByte()
}

// SendCommand writes command and optionally reads result line and response code.
// Offline link fails fast with ResponseOffline: no I/O, result buffer untouched.
// Timeouts are soft: empty result and ResponseUnknown.
func (self *Engine) SendCommand(ctx context.Context, command string, expectResult bool, resultDelay time.Duration, expectResponse bool) Response {
	if self.Link.Offline() {
		return ResponseOffline
	}
	if len(command) > CommandMaxLength {
		self.Log.Errorf("command too long len=%d max=%d command=%q", len(command), CommandMaxLength, command)
		return ResponseError
	}
	if self.I2CMode() {
		self.lastResponse = self.exchangeI2C(ctx, command, expectResult, resultDelay, expectResponse)
	} else {
		self.lastResponse = self.exchangeSerial(ctx, command, expectResult, resultDelay, expectResponse)
	}
	return self.lastResponse
}

func (self *Engine) exchangeSerial(ctx context.Context, command string, expectResult bool, resultDelay time.Duration, expectResponse bool) Response {
	if self.Log.Enabled(log2.LDebug) {
		self.Log.Debugf("sending command: %s", strings.Replace(command, "\r", "<CR>", -1))
	}
	for i := 0; i < len(command); i++ {
		if err := self.t.WriteByte(command[i]); err != nil {
			self.Log.Errorf("write command=%q err=%v", command, err)
			return ResponseUnknown
		}
	}

	if expectResult {
		self.result.Reset()
		if _, ok := self.DelayUntilData(ctx, self.timing.ResultTimeout); ok {
			self.Wait(ctx, resultDelay)
			if err := self.result.readLine(self.t, '\r'); err != nil {
				self.Log.Error(errors.Annotatef(err, "command=%q", command))
			}
			self.Log.Debugf("got %d byte result: %s", self.result.Len(), self.result.String())
		} else {
			self.Log.Debugf("no data found while waiting for result command=%q", strings.TrimSpace(command))
		}
		// device may answer with status line instead of data
		if code := ClassifySerial(self.result.Bytes()); code != ResponseUnknown {
			self.result.Reset()
			self.Link.MarkConnected()
			if expectResponse {
				return code
			}
			return ResponseNotApplicable
		}
	}

	if !expectResponse {
		return ResponseNotApplicable
	}
	self.Wait(ctx, self.timing.ResponseSettle)
	if b, ok := self.t.Peek(); (ok && b == '*') || self.responseMode != TriOff {
		return self.readResponse(ctx)
	}
	return ResponseUnknown
}

func (self *Engine) readResponse(ctx context.Context) Response {
	self.response.Reset()
	self.DelayUntilData(ctx, self.timing.ResponseTimeout)
	if err := self.response.readLine(self.t, '\r'); err != nil {
		self.Log.Error(err)
	}
	code := ResponseNotApplicable
	if self.responseMode != TriOff {
		code = ClassifySerial(self.response.Bytes())
		if code.Recognized() {
			self.Link.MarkConnected()
		}
	}
	self.Log.Debugf("got response: %s = %s mode=%s", self.response.String(), code.String(), self.responseMode.String())
	return code
}

// exchangeI2C: command without CR, wait processing delay, read status byte and zero terminated payload.
func (self *Engine) exchangeI2C(ctx context.Context, command string, expectResult bool, resultDelay time.Duration, expectResponse bool) Response {
	if self.bus == nil {
		self.Log.Errorf("i2c address=%d without bus", self.i2cAddr)
		return ResponseNotApplicable
	}
	addr := uint16(self.i2cAddr)
	payload := strings.TrimRight(command, "\r")
	self.Log.Debugf("i2c addr=%d sending command: %s", addr, payload)
	if err := self.bus.Tx(addr, []byte(payload), nil); err != nil {
		self.Log.Errorf("i2c addr=%d write command=%q err=%v", addr, payload, err)
		return ResponseI2CUnknown
	}
	if !expectResult && !expectResponse {
		return ResponseNotApplicable
	}

	self.Wait(ctx, self.timing.I2CDelay+resultDelay)
	r := self.i2cBuf
	for i := range r {
		r[i] = 0
	}
	if err := self.bus.Tx(addr, nil, r); err != nil {
		self.Log.Errorf("i2c addr=%d read err=%v", addr, err)
		return ResponseI2CUnknown
	}
	code := ClassifyI2C(r[0])
	if code.Recognized() {
		self.Link.MarkConnected()
	}
	if expectResult {
		end := 1
		for end < len(r) && r[end] != 0 {
			end++
		}
		self.result.Set(r[1:end])
		self.Log.Debugf("i2c got %d byte result: %s", self.result.Len(), self.result.String())
	}
	self.Log.Debugf("i2c status=%d = %s", r[0], code.String())
	return code
}
