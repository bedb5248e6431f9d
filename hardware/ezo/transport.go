package ezo

import (
	"runtime"
	"time"
)

// Transport is the byte stream to one circuit.
// ReadBytesUntil reads into buf until delim (not stored), buf is full or transport read timeout.
// Timeout with zero bytes read is reported as error satisfying errors.IsTimeout.
type Transport interface {
	Begin(baud int) error
	WriteByte(b byte) error
	Peek() (byte, bool)
	Available() int
	ReadByte() (byte, error)
	ReadBytesUntil(delim byte, buf []byte) (int, error)
	Close() error
}

// I2CBus matches periph.io conn/i2c.Bus.Tx.
type I2CBus interface {
	Tx(addr uint16, w, r []byte) error
}

// Clock is monotonic time source plus suspension point for wait loops.
// Engine calls Yield in every poll iteration, so a hosted clock may sleep
// while a bare metal clock returns immediately.
type Clock interface {
	Now() time.Duration
	Yield()
}

type SystemClock struct {
	start time.Time
	Tick  time.Duration
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now(), Tick: time.Millisecond}
}

func (self *SystemClock) Now() time.Duration { return time.Since(self.start) }
func (self *SystemClock) Yield()             { time.Sleep(self.Tick) }

// SpinClock busy polls, Yield only lets other goroutines run.
type SpinClock struct{ start time.Time }

func NewSpinClock() *SpinClock { return &SpinClock{start: time.Now()} }

func (self *SpinClock) Now() time.Duration { return time.Since(self.start) }
func (self *SpinClock) Yield()             { runtime.Gosched() }
