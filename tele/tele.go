package tele

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/temoto/atlas/helpers"
	"github.com/temoto/atlas/log2"
	tele_config "github.com/temoto/atlas/tele/config"
	"github.com/temoto/spq"
)

const (
	defaultNetworkTimeout = 30 * time.Second
	defaultRetryMin       = 1 * time.Second
	defaultRetryMax       = 1 * time.Minute
)

const (
	StateOnline  = "online"
	StateOffline = "offline"
)

type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willTopic string, willPayload []byte) error
	Publish(topic string, retained bool, payload []byte) bool
	Close()
}

// Tele contract:
// - Init() fails only with invalid config or spool open error, network issues ignored
// - with spool, Publish blocks at most for disk write and readings are delivered at least once
// - without spool, Publish blocks for network and failed readings are lost
type Tele struct {
	enabled   bool
	log       *log2.Log
	transport Transporter
	q         *spq.Queue
	stopCh    chan struct{}
	doneCh    chan struct{}
	prefix    string
	format    string
	backoff   *helpers.Backoff
	stat      Stat

	retryMin time.Duration
	retryMax time.Duration
}

type Stat struct {
	Published uint32
	Failed    uint32
	Dropped   uint32
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.enabled = teleConfig.Enabled
	self.log = log.Clone(log2.LInfo)
	if teleConfig.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}

	self.prefix = teleConfig.TopicPrefix
	if self.prefix == "" {
		self.prefix = "atlas"
	}
	self.format = teleConfig.Format
	if self.retryMin == 0 {
		self.retryMin = defaultRetryMin
	}
	if self.retryMax == 0 {
		self.retryMax = defaultRetryMax
	}
	self.backoff = helpers.NewBackoff(self.retryMin, self.retryMax, 2, self.log)
	self.stopCh = make(chan struct{})
	self.doneCh = make(chan struct{})

	if teleConfig.PersistPath != "" {
		var err error
		self.q, err = spq.Open(teleConfig.PersistPath)
		if err != nil {
			self.enabled = false
			return errors.Annotate(err, "tele queue")
		}
	}

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, self.log, teleConfig, self.StateTopic(), []byte(StateOffline)); err != nil {
		self.enabled = false
		if self.q != nil {
			if qerr := self.q.Close(); qerr != nil {
				self.log.Errorf("tele queue close err=%v", qerr)
			}
			self.q = nil
		}
		return errors.Annotate(err, "tele transport")
	}

	if self.q != nil {
		go self.qworker()
	} else {
		close(self.doneCh)
	}
	// broker may be unreachable yet, transport repeats state on connect
	if err := self.send(self.StateTopic(), true, []byte(StateOnline)); err != nil {
		self.log.Errorf("tele state err=%v", err)
	}
	return nil
}

func (self *Tele) Close() {
	if !self.enabled {
		return
	}
	close(self.stopCh)
	if self.q != nil {
		if err := self.q.Close(); err != nil {
			self.log.Errorf("tele queue close err=%v", err)
		}
	}
	<-self.doneCh
	self.transport.Close()
}

func (self *Tele) Enabled() bool { return self.enabled }

func (self *Tele) Stat() Stat {
	return Stat{
		Published: atomic.LoadUint32(&self.stat.Published),
		Failed:    atomic.LoadUint32(&self.stat.Failed),
		Dropped:   atomic.LoadUint32(&self.stat.Dropped),
	}
}

func (self *Tele) StateTopic() string { return self.prefix + "/state" }

func (self *Tele) ReadingTopic(circuit string) string {
	return fmt.Sprintf("%s/%s/reading", self.prefix, circuit)
}

// Publish sends reading to "<prefix>/<circuit>/reading".
func (self *Tele) Publish(r *Reading) error {
	if !self.enabled {
		return nil
	}
	payload, err := Encode(self.format, r)
	if err != nil {
		return errors.Annotatef(err, "circuit=%s", r.Circuit)
	}
	return self.send(self.ReadingTopic(r.Circuit), false, payload)
}

func (self *Tele) send(topic string, retained bool, payload []byte) error {
	if self.q != nil {
		b, err := packItem(topic, retained, payload)
		if err == nil {
			err = self.q.Push(b)
		}
		return errors.Annotatef(err, "tele spool topic=%s", topic)
	}
	if !self.transport.Publish(topic, retained, payload) {
		atomic.AddUint32(&self.stat.Failed, 1)
		return errors.Errorf("tele publish topic=%s failed", topic)
	}
	atomic.AddUint32(&self.stat.Published, 1)
	return nil
}

const itemRetained uint64 = 1

func packItem(topic string, retained bool, payload []byte) ([]byte, error) {
	buf := proto.NewBuffer(make([]byte, 0, len(topic)+len(payload)+8))
	var flags uint64
	if retained {
		flags |= itemRetained
	}
	if err := buf.EncodeVarint(flags); err != nil {
		return nil, err
	}
	if err := buf.EncodeStringBytes(topic); err != nil {
		return nil, err
	}
	if err := buf.EncodeRawBytes(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unpackItem(b []byte) (topic string, retained bool, payload []byte, err error) {
	buf := proto.NewBuffer(b)
	var flags uint64
	if flags, err = buf.DecodeVarint(); err != nil {
		return
	}
	if topic, err = buf.DecodeStringBytes(); err != nil {
		return
	}
	if payload, err = buf.DecodeRawBytes(true); err != nil {
		return
	}
	retained = flags&itemRetained != 0
	return
}

func (self *Tele) qworker() {
	defer close(self.doneCh)
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			del, err := self.qhandle(b)
			if err != nil {
				self.log.Errorf("tele qhandle b=%x err=%v", b, err)
			}
			if del {
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("tele qhandle Delete b=%x err=%v", b, err)
				}
				self.backoff.Reset()
				continue
			}
			if err = self.q.DeletePush(box); err != nil {
				self.log.Errorf("tele qhandle DeletePush b=%x err=%v", b, err)
			}
			self.backoff.Failure()
			if !self.sleep(self.backoff.DelayBefore()) {
				return
			}

		case spq.ErrClosed:
			select {
			case <-self.stopCh: // success path
			default:
				self.log.Errorf("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL tele spq err=%v", err)
			if !self.sleep(self.retryMax) {
				return
			}
		}
	}
}

// qhandle returns true when item is done: delivered or broken beyond retry.
func (self *Tele) qhandle(b []byte) (bool, error) {
	if len(b) == 0 {
		atomic.AddUint32(&self.stat.Dropped, 1)
		return true, errors.NotValidf("tele spq peek=empty")
	}
	topic, retained, payload, err := unpackItem(b)
	if err != nil {
		atomic.AddUint32(&self.stat.Dropped, 1)
		return true, errors.Annotate(err, "tele unpack")
	}
	if !self.transport.Publish(topic, retained, payload) {
		atomic.AddUint32(&self.stat.Failed, 1)
		return false, nil
	}
	atomic.AddUint32(&self.stat.Published, 1)
	return true, nil
}

func (self *Tele) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-self.stopCh:
		return false
	}
}
