package uart

import (
	"io"
	"os"
	"strings"
	"sync"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

// Bus matches ezo.I2CBus.
type Bus interface {
	io.Closer
	Tx(addr uint16, w, r []byte) error
}

// OpenI2C opens raw i2c-dev when name is a device path ("/dev/i2c-1"),
// otherwise periph.io registry name ("1", "I2C1").
func OpenI2C(name string) (Bus, error) {
	if strings.HasPrefix(name, "/dev/") {
		b := NewI2CDev(name)
		if err := b.init(); err != nil {
			return nil, errors.Annotatef(err, "i2c open %s", name)
		}
		return b, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "i2c open %s", name)
	}
	return bus, nil
}

// as defined in /usr/include/linux/i2c-dev.h
const (
	cI2C_RDWR  = 0x0707
	cI2C_M_RD  = 0x0001
	cI2C_M_LEN = 2
)

type i2c_msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs uintptr
	nmsg uint32
}

// I2CDev is Linux /dev/i2c-N bus with combined write/read transfer.
type I2CDev struct {
	path        string
	file        *os.File
	lk          sync.Mutex
	initialized bool
}

func NewI2CDev(path string) *I2CDev { return &I2CDev{path: path} }

func (self *I2CDev) init() error {
	if self.initialized {
		return nil
	}
	var err error
	if self.file, err = os.OpenFile(self.path, os.O_RDWR, os.ModeExclusive); err != nil {
		return err
	}
	self.initialized = true
	return nil
}

func (self *I2CDev) Tx(addr uint16, w, r []byte) error {
	self.lk.Lock()
	defer self.lk.Unlock()

	if err := self.init(); err != nil {
		return err
	}

	nmsg := uint32(0)
	msgs := [cI2C_M_LEN]i2c_msg{}
	if len(w) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: addr, flags: 0,
			buf: uintptr(unsafe.Pointer(&w[0])), len: uint16(len(w)),
		}
		nmsg++
	}
	if len(r) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: addr, flags: cI2C_M_RD,
			buf: uintptr(unsafe.Pointer(&r[0])), len: uint16(len(r)),
		}
		nmsg++
	}
	if nmsg == 0 {
		return errors.Errorf("i2c Tx both w=r=empty nothing to do")
	}

	rdwr := i2c_rdwr_ioctl_data{
		msgs: uintptr(unsafe.Pointer(&msgs[0])),
		nmsg: nmsg,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL,
		self.file.Fd(), uintptr(cI2C_RDWR), uintptr(unsafe.Pointer(&rdwr)))
	if errno != 0 {
		return errors.Annotatef(errno, "i2c Tx addr=%d", addr)
	}
	return nil
}

func (self *I2CDev) Close() error {
	self.lk.Lock()
	defer self.lk.Unlock()
	if !self.initialized {
		return nil
	}
	self.initialized = false
	return self.file.Close()
}
