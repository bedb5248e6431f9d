// Package poll periodically reads every configured circuit and publishes readings.
package poll

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/helpers"
	"github.com/temoto/atlas/log2"
	"github.com/temoto/atlas/state"
	"github.com/temoto/atlas/tele"
)

// Consecutive comms failures before Recover.
const recoverAfter = 3

type Stat struct {
	Reads    uint32
	Errors   uint32
	Recovers uint32
}

type Poller struct {
	g        *state.Global
	alive    *alive.Alive
	log      *log2.Log
	interval time.Duration
	stat     Stat
}

func New(g *state.Global) *Poller {
	return &Poller{
		g:        g,
		alive:    alive.NewAlive(),
		log:      g.Log,
		interval: g.Config.PollInterval(),
	}
}

func (self *Poller) Stat() Stat {
	return Stat{
		Reads:    atomic.LoadUint32(&self.stat.Reads),
		Errors:   atomic.LoadUint32(&self.stat.Errors),
		Recovers: atomic.LoadUint32(&self.stat.Recovers),
	}
}

// Run starts one goroutine per circuit and blocks until Stop or global Alive stops.
func (self *Poller) Run(ctx context.Context) error {
	names := self.g.CircuitNames()
	if len(names) == 0 {
		return errors.NotValidf("no circuits configured")
	}
	go helpers.AliveSub(self.g.Alive, self.alive)
	for _, name := range names {
		c, err := self.g.Circuit(name)
		if err != nil {
			self.alive.Stop()
			self.alive.Wait()
			return err
		}
		self.alive.Add(1)
		go self.loop(ctx, c)
	}
	self.alive.Wait()
	return nil
}

func (self *Poller) Stop() { self.alive.Stop() }

func (self *Poller) loop(ctx context.Context, c *state.Circuit) {
	defer self.alive.Done()
	backoff := helpers.NewBackoff(self.g.Config.RetryMin(), self.g.Config.RetryMax(), 2, c.Log)
	ready := false
	fails := 0
	for self.alive.IsRunning() {
		if !ready {
			if !self.sleep(backoff.DelayBefore()) {
				return
			}
			if err := c.Initialize(ctx); err != nil {
				backoff.Failure()
				c.Log.Errorf("initialize err=%v next retry in %v", err, backoff.Next())
				continue
			}
			backoff.Reset()
			ready = true
		}

		r, err := self.Once(ctx, c)
		switch {
		case err == nil:
			fails = 0
		case ezo.IsCommsError(r.Err):
			fails++
			if fails >= recoverAfter {
				atomic.AddUint32(&self.stat.Recovers, 1)
				c.Log.Errorf("no valid reading %d times, recover", fails)
				if err := c.Recover(ctx); err != nil {
					c.Log.Errorf("recover err=%v", err)
					ready = false
				}
				fails = 0
			}
		default:
			c.Log.Error(err)
		}
		if !self.sleep(self.interval) {
			return
		}
	}
}

// Once takes one reading and publishes it, including failed ones.
func (self *Poller) Once(ctx context.Context, c *state.Circuit) (*tele.Reading, error) {
	r := c.Read(ctx)
	atomic.AddUint32(&self.stat.Reads, 1)
	if r.Err != nil {
		atomic.AddUint32(&self.stat.Errors, 1)
	}
	if err := self.g.Tele.Publish(r); err != nil {
		self.log.Errorf("tele publish circuit=%s err=%v", c.Name, err)
	}
	if r.Err == nil && r.Response == ezo.ResponseOffline {
		return r, errors.Errorf("circuit=%s offline", c.Name)
	}
	return r, r.Err
}

func (self *Poller) sleep(d time.Duration) bool {
	if d <= 0 {
		return self.alive.IsRunning()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-self.alive.StopChan():
		return false
	}
}
