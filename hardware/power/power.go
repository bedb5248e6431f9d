// Package power switches circuit supply through a GPIO output line.
// Used to hard reset a circuit which stopped responding.
package power

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atlas/log2"
	"github.com/temoto/gpio-cdev-go"
)

const consumerLabel = "atlas"

type Line struct {
	log    *log2.Log
	chip   gpio.Chiper
	lines  gpio.Lineser
	set    gpio.LineSetFunc
	offset uint32
	settle time.Duration
	on     bool
}

func Open(chipName string, offset uint32, settle time.Duration, log *log2.Log) (*Line, error) {
	chip, err := gpio.Open(chipName, consumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", chipName)
	}
	l, err := New(chip, offset, settle, log)
	if err != nil {
		chip.Close()
		return nil, err
	}
	return l, nil
}

func New(chip gpio.Chiper, offset uint32, settle time.Duration, log *log2.Log) (*Line, error) {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, offset)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio line=%d", offset)
	}
	return &Line{
		log:    log,
		chip:   chip,
		lines:  lines,
		set:    lines.SetFunc(offset),
		offset: offset,
		settle: settle,
	}, nil
}

func (self *Line) IsOn() bool { return self.on }

// On powers circuit and waits for it to boot.
func (self *Line) On(ctx context.Context) error {
	if err := self.write(1); err != nil {
		return err
	}
	self.on = true
	return sleep(ctx, self.settle)
}

func (self *Line) Off() error {
	if err := self.write(0); err != nil {
		return err
	}
	self.on = false
	return nil
}

// Cycle is Off, pause, On.
func (self *Line) Cycle(ctx context.Context, pause time.Duration) error {
	self.log.Infof("power cycle line=%d", self.offset)
	if err := self.Off(); err != nil {
		return err
	}
	if err := sleep(ctx, pause); err != nil {
		return err
	}
	return self.On(ctx)
}

func (self *Line) Close() error {
	err1 := self.lines.Close()
	err2 := self.chip.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (self *Line) write(v byte) error {
	self.set(v)
	if err := self.lines.Flush(); err != nil {
		return errors.Annotatef(err, "gpio line=%d set=%d", self.offset, v)
	}
	self.log.Debugf("power line=%d set=%d", self.offset, v)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
