package ezo

import (
	"context"
	"fmt"
)

// outputSet is the output-enable mask of a circuit: one Tristate per channel in device order.
type outputSet struct {
	names   []string
	state   []Tristate
	factory []bool
}

func newOutputSet(names ...string) outputSet {
	return outputSet{names: names, state: make([]Tristate, len(names)), factory: make([]bool, len(names))}
}

// withFactory marks channels enabled on a device after factory reset.
func (self outputSet) withFactory(on ...int) outputSet {
	for _, i := range on {
		self.factory[i] = true
	}
	return self
}

func (self *outputSet) get(i int) Tristate { return self.state[i] }

// enabled counts channels in TriOn. TriUnknown is treated as not enabled.
func (self *outputSet) enabled() int {
	n := 0
	for _, s := range self.state {
		if s.On() {
			n++
		}
	}
	return n
}

// unknown reports whether any channel state was never read from device.
func (self *outputSet) unknown() bool {
	for _, s := range self.state {
		if s == TriUnknown {
			return true
		}
	}
	return false
}

// assumeFactory fills unknown channels with factory defaults.
func (self *outputSet) assumeFactory() {
	for i, s := range self.state {
		if s == TriUnknown {
			self.state[i] = TriOff
			if self.factory[i] {
				self.state[i] = TriOn
			}
		}
	}
}

// ensureOutputs queries mask before reading when it is unknown.
// Silent device leaves factory default mask.
func ensureOutputs(ctx context.Context, e *Engine, outputs *outputSet, query func(context.Context) Response) {
	if !outputs.unknown() || e.Link.Offline() {
		return
	}
	query(ctx)
	if outputs.unknown() {
		outputs.assumeFactory()
		e.Log.Errorf("output mask query failed, assume factory default %s", outputs.query())
	}
}

func (self *outputSet) command(i int, enable bool) string {
	v := 0
	if enable {
		v = 1
	}
	return fmt.Sprintf("O,%s,%d\r", self.names[i], v)
}

// parseQuery decodes "?O,<names...>"; returns false and keeps state when reply is not an output query.
func (self *outputSet) parseQuery(tokens []string) bool {
	if len(tokens) == 0 || !tag(tokens[0], "?O") {
		return false
	}
	for i := range self.state {
		self.state[i] = TriOff
	}
	for _, t := range tokens[1:] {
		for i, name := range self.names {
			if tag(t, name) {
				self.state[i] = TriOn
			}
		}
	}
	return true
}

// query renders device reply for current mask, inverse of parseQuery.
func (self *outputSet) query() string {
	s := "?O"
	for i, name := range self.names {
		if self.state[i].On() {
			s += "," + name
		}
	}
	return s
}
