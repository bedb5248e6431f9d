package ezo

import "github.com/temoto/atlas/log2"

// Link gates all I/O of one circuit handle.
// online is controlled by caller, e.g. when several circuits share one serial port through a multiplexer.
// connected is a latch: set on first recognized reply, never cleared.
type Link struct {
	Log       *log2.Log
	online    bool
	connected bool
	baud      int
}

func NewLink(log *log2.Log) *Link {
	return &Link{Log: log, online: true}
}

func (self *Link) SetOnline()  { self.online = true }
func (self *Link) SetOffline() { self.online = false }

func (self *Link) Online() bool  { return self.online }
func (self *Link) Offline() bool { return !self.online }

func (self *Link) MarkConnected() {
	if self.connected {
		return
	}
	self.connected = true
	self.Log.Infof("link connected baud=%d", self.baud)
}

func (self *Link) Connected() bool { return self.connected }

func (self *Link) Baud() int { return self.baud }

func (self *Link) setBaud(b int) { self.baud = b }
