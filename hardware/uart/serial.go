package uart

import (
	"io"
	"sync"
	"time"

	"github.com/juju/errors"
	"go.bug.st/serial"
)

// port is the part of serial.Port used here.
type port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

var serialOpen = func(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

const pumpReadTimeout = 100 * time.Millisecond

// Serial is portable serial port. Background reader fills input buffer,
// so Available and Peek never block.
type Serial struct {
	name    string
	open    func(name string, mode *serial.Mode) (port, error)
	Timeout time.Duration // single byte read

	mu     sync.Mutex
	port   port
	buf    []byte
	err    error
	notify chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewSerial(name string) *Serial {
	return &Serial{name: name, open: serialOpen, Timeout: DefaultTimeout, notify: make(chan struct{}, 1)}
}

func (self *Serial) Begin(baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if self.port != nil && self.pumpStopped() {
		// reader quit on error, device may be back under same name
		_ = self.Close()
	}
	self.mu.Lock()
	self.err = nil
	self.mu.Unlock()
	if self.port == nil {
		p, err := self.open(self.name, mode)
		if err != nil {
			return errors.Annotatef(err, "serial open %s", self.name)
		}
		if err = p.SetReadTimeout(pumpReadTimeout); err != nil {
			p.Close()
			return errors.Annotatef(err, "serial %s read timeout", self.name)
		}
		self.port = p
		self.stopCh = make(chan struct{})
		self.doneCh = make(chan struct{})
		go self.pump(p, self.stopCh, self.doneCh)
	} else if err := self.port.SetMode(mode); err != nil {
		return errors.Annotatef(err, "serial %s baud=%d", self.name, baud)
	}
	err := self.port.ResetInputBuffer()
	self.mu.Lock()
	self.buf = self.buf[:0]
	self.mu.Unlock()
	return errors.Annotate(err, "serial flush")
}

func (self *Serial) pumpStopped() bool {
	select {
	case <-self.doneCh:
		return true
	default:
		return false
	}
}

func (self *Serial) pump(p port, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	b := make([]byte, 64)
	for {
		n, err := p.Read(b)
		select {
		case <-stopCh:
			return
		default:
		}
		self.mu.Lock()
		self.buf = append(self.buf, b[:n]...)
		if err != nil {
			self.err = err
		}
		self.mu.Unlock()
		if n > 0 || err != nil {
			select {
			case self.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

func (self *Serial) Close() error {
	if self.port == nil {
		return nil
	}
	close(self.stopCh)
	err := self.port.Close()
	<-self.doneCh
	self.port = nil
	return err
}

func (self *Serial) WriteByte(b byte) error {
	if self.port == nil {
		return errors.Errorf("serial %s not open", self.name)
	}
	_, err := self.port.Write([]byte{b})
	return err
}

func (self *Serial) Available() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.buf)
}

func (self *Serial) Peek() (byte, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.buf) == 0 {
		return 0, false
	}
	return self.buf[0], true
}

func (self *Serial) ReadByte() (byte, error) {
	timer := time.NewTimer(self.Timeout)
	defer timer.Stop()
	for {
		self.mu.Lock()
		if len(self.buf) != 0 {
			b := self.buf[0]
			self.buf = self.buf[1:]
			self.mu.Unlock()
			return b, nil
		}
		err := self.err
		self.mu.Unlock()
		if err != nil {
			return 0, errors.Annotatef(err, "serial %s read", self.name)
		}
		select {
		case <-self.notify:
		case <-timer.C:
			return 0, errors.Timeoutf("serial %s read", self.name)
		}
	}
}

func (self *Serial) ReadBytesUntil(delim byte, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		b, err := self.ReadByte()
		if err != nil {
			if n > 0 && errors.IsTimeout(err) {
				return n, nil
			}
			return n, err
		}
		if b == delim {
			break
		}
		buf[n] = b
		n++
	}
	return n, nil
}
