package uart

import (
	"os"
	"syscall"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const DefaultTimeout = 20 * time.Millisecond

var bauds = map[int]uint32{
	300:    unix.B300,
	1200:   unix.B1200,
	2400:   unix.B2400,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// File is tty device driven by termios ioctls, 8N1 raw mode.
type File struct {
	path    string
	f       *os.File
	fd      int
	peek    byte
	peeked  bool
	Timeout time.Duration // single byte read
}

func NewFile(path string) *File { return &File{path: path, Timeout: DefaultTimeout} }

func (self *File) Begin(baud int) error {
	speed, ok := bauds[baud]
	if !ok {
		return errors.NotSupportedf("baud=%d", baud)
	}
	if self.f == nil {
		f, err := os.OpenFile(self.path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
		if err != nil {
			return errors.Annotatef(err, "uart open %s", self.path)
		}
		self.use(f)
	}
	if err := setRaw(self.fd, speed); err != nil {
		return errors.Annotatef(err, "uart termios %s baud=%d", self.path, baud)
	}
	self.peeked = false
	return errors.Annotate(unix.IoctlSetInt(self.fd, unix.TCFLSH, unix.TCIFLUSH), "uart flush")
}

func (self *File) use(f *os.File) {
	self.f = f
	self.fd = int(f.Fd())
}

func setRaw(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETSF, t)
}

func (self *File) Close() error {
	if self.f == nil {
		return nil
	}
	err := self.f.Close()
	self.f = nil
	return err
}

func (self *File) WriteByte(b byte) error {
	_, err := self.f.Write([]byte{b})
	return err
}

func (self *File) Available() int {
	n, err := unix.IoctlGetInt(self.fd, unix.TIOCINQ)
	if err != nil {
		n = 0
	}
	if self.peeked {
		n++
	}
	return n
}

func (self *File) Peek() (byte, bool) {
	if self.peeked {
		return self.peek, true
	}
	b, err := self.read(0)
	if err != nil {
		return 0, false
	}
	self.peek, self.peeked = b, true
	return b, true
}

func (self *File) ReadByte() (byte, error) {
	if self.peeked {
		self.peeked = false
		return self.peek, nil
	}
	return self.read(self.Timeout)
}

func (self *File) ReadBytesUntil(delim byte, buf []byte) (int, error) {
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

func (self *File) read(timeout time.Duration) (byte, error) {
	if err := waitRead(self.fd, timeout); err != nil {
		return 0, err
	}
	var b [1]byte
	n, err := unix.Read(self.fd, b[:])
	if err != nil {
		return 0, errors.Annotate(err, "uart read")
	}
	if n == 0 {
		return 0, errors.Timeoutf("uart read")
	}
	return b[0], nil
}

func waitRead(fd int, timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Annotate(err, "uart poll")
		}
		if n == 0 {
			return errors.Timeoutf("uart read")
		}
		return nil
	}
}
