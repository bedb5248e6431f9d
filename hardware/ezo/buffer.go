package ezo

import (
	"strings"

	"github.com/juju/errors"
)

const (
	ResultBufferSize   = 50
	ResponseBufferSize = 10
	CommandMaxLength   = 32
)

// Buffer holds one reply line without delimiter.
// Owned by Engine; content is valid until the next exchange.
type Buffer struct {
	b []byte
	n int
}

func NewBuffer(size int) *Buffer { return &Buffer{b: make([]byte, size)} }

func (self *Buffer) Reset() { self.n = 0 }

func (self *Buffer) Len() int { return self.n }

func (self *Buffer) Cap() int { return len(self.b) }

// Bytes aliases internal storage. Do not keep after next exchange.
func (self *Buffer) Bytes() []byte { return self.b[:self.n] }

func (self *Buffer) String() string { return string(self.b[:self.n]) }

// Set replaces content, truncating to capacity.
func (self *Buffer) Set(p []byte) {
	self.n = copy(self.b, p)
}

// Tokens splits on ',' and '\r', skipping empty tokens.
func (self *Buffer) Tokens() []string { return tokenize(self.String()) }

func (self *Buffer) readLine(t Transport, delim byte) error {
	n, err := t.ReadBytesUntil(delim, self.b)
	self.n = n
	if err != nil && !errors.IsTimeout(err) {
		return errors.Annotate(err, "read line")
	}
	return nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\r' || r == '\n' })
}
