package ezo

// Public API to script circuit replies in tests of your code.
import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atlas/log2"
)

// MockClock advances only by Yield and Advance.
type MockClock struct {
	mu   sync.Mutex
	now  time.Duration
	Step time.Duration
}

func NewMockClock() *MockClock { return &MockClock{Step: time.Millisecond} }

func (self *MockClock) Now() time.Duration {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.now
}

func (self *MockClock) Yield() { self.Advance(self.Step) }

func (self *MockClock) Advance(d time.Duration) {
	self.mu.Lock()
	self.now += d
	self.mu.Unlock()
}

type mockExpect struct {
	command string
	delay   time.Duration
	reply   []byte
}

type mockChunk struct {
	at time.Duration
	b  []byte
}

// MockTransport plays scripted replies when expected command is written.
// Unexpected commands get no reply, like a silent circuit.
type MockTransport struct {
	t      testing.TB
	clock  Clock
	mu     sync.Mutex
	expect []mockExpect
	input  []mockChunk
	cur    []byte
	out    strings.Builder
	baud   int
	Closed bool
}

func NewMockTransport(t testing.TB, clock Clock) *MockTransport {
	return &MockTransport{t: t, clock: clock}
}

// Expect queues replies for command. Each reply gets '\r' terminator.
func (self *MockTransport) Expect(command string, replies ...string) *MockTransport {
	return self.ExpectDelayed(command, 0, replies...)
}

func (self *MockTransport) ExpectDelayed(command string, delay time.Duration, replies ...string) *MockTransport {
	var reply []byte
	for _, r := range replies {
		reply = append(reply, r...)
		reply = append(reply, '\r')
	}
	self.mu.Lock()
	self.expect = append(self.expect, mockExpect{command: command, delay: delay, reply: reply})
	self.mu.Unlock()
	return self
}

// Feed makes raw bytes available immediately.
func (self *MockTransport) Feed(s string) {
	self.mu.Lock()
	self.input = append(self.input, mockChunk{at: self.clock.Now(), b: []byte(s)})
	self.mu.Unlock()
}

// Written returns everything written so far.
func (self *MockTransport) Written() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.out.String()
}

func (self *MockTransport) Baud() int { return self.baud }

func (self *MockTransport) ExpectationsWereMet() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.expect) != 0 {
		names := make([]string, len(self.expect))
		for i, e := range self.expect {
			names[i] = fmt.Sprintf("%q", e.command)
		}
		return errors.Errorf("not written commands: %s", strings.Join(names, " "))
	}
	return nil
}

func (self *MockTransport) Begin(baud int) error {
	self.baud = baud
	return nil
}

func (self *MockTransport) Close() error {
	self.Closed = true
	return nil
}

func (self *MockTransport) WriteByte(b byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.out.WriteByte(b)
	self.cur = append(self.cur, b)
	if len(self.expect) != 0 && string(self.cur) == self.expect[0].command {
		e := self.expect[0]
		self.expect = self.expect[1:]
		self.cur = self.cur[:0]
		if len(e.reply) != 0 {
			self.input = append(self.input, mockChunk{at: self.clock.Now() + e.delay, b: e.reply})
		}
		return nil
	}
	if b == '\r' {
		self.t.Logf("mock transport: unexpected command %q", string(self.cur))
		self.cur = self.cur[:0]
	}
	return nil
}

// ready returns bytes available now. Caller holds mu.
func (self *MockTransport) ready() []byte {
	now := self.clock.Now()
	for len(self.input) != 0 && len(self.input[0].b) == 0 {
		self.input = self.input[1:]
	}
	if len(self.input) == 0 || self.input[0].at > now {
		return nil
	}
	return self.input[0].b
}

func (self *MockTransport) Peek() (byte, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if b := self.ready(); len(b) != 0 {
		return b[0], true
	}
	return 0, false
}

func (self *MockTransport) Available() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	now := self.clock.Now()
	n := 0
	for _, c := range self.input {
		if c.at > now {
			break
		}
		n += len(c.b)
	}
	return n
}

func (self *MockTransport) ReadByte() (byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	b := self.ready()
	if len(b) == 0 {
		return 0, errors.NewTimeout(nil, "mock transport read")
	}
	self.input[0].b = b[1:]
	return b[0], nil
}

func (self *MockTransport) ReadBytesUntil(delim byte, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		b, err := self.ReadByte()
		if err != nil {
			if n == 0 {
				return 0, err
			}
			break
		}
		if b == delim {
			break
		}
		buf[n] = b
		n++
	}
	return n, nil
}

// MockI2C answers every read with fixed status byte and payload.
type MockI2C struct {
	Status  byte
	Payload string
	Writes  []string
	Err     error
}

func (self *MockI2C) Tx(addr uint16, w, r []byte) error {
	if self.Err != nil {
		return self.Err
	}
	if len(w) != 0 {
		self.Writes = append(self.Writes, string(w))
	}
	if len(r) != 0 {
		r[0] = self.Status
		copy(r[1:], self.Payload)
	}
	return nil
}

// NewTestEngine returns Engine on mock transport with mock clock, debug logged to t.
func NewTestEngine(t testing.TB) (*Engine, *MockTransport) {
	clock := NewMockClock()
	mt := NewMockTransport(t, clock)
	e := NewEngine(log2.NewTest(t, log2.LDebug), mt, clock)
	return e, mt
}
