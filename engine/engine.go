// Package engine keeps named actions and runs action sequences typed in console or scheduled by poller.
package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/atlas/log2"
)

type Engine struct {
	Log     *log2.Log
	lk      sync.Mutex
	actions map[string]Doer
}

func NewEngine(log *log2.Log) *Engine {
	return &Engine{
		Log:     log,
		actions: make(map[string]Doer, 64),
	}
}

func (self *Engine) Register(action string, d Doer) {
	self.lk.Lock()
	self.actions[action] = d
	self.lk.Unlock()
}

func (self *Engine) RegisterNewFunc(name string, fun func(ctx context.Context) error) {
	self.Register(name, Func{Name: name, F: fun})
}

// Resolve returns nil for unknown action.
func (self *Engine) Resolve(action string) Doer {
	self.lk.Lock()
	defer self.lk.Unlock()
	return self.actions[action]
}

// List returns sorted action names, for completion.
func (self *Engine) List() []string {
	self.lk.Lock()
	names := make([]string, 0, len(self.actions))
	for name := range self.actions {
		names = append(names, name)
	}
	self.lk.Unlock()
	sort.Strings(names)
	return names
}

// ParseText builds sequence from whitespace separated action names.
// Words not registered are passed to fallback, nil fallback makes them an error.
func (self *Engine) ParseText(name, text string, fallback func(word string) (Doer, error)) (*Seq, error) {
	words := strings.Fields(text)
	seq := NewSeq(name)
	for _, word := range words {
		d := self.Resolve(word)
		if d == nil {
			if fallback == nil {
				return nil, errors.NotFoundf("action=%s", word)
			}
			var err error
			if d, err = fallback(word); err != nil {
				return nil, errors.Annotatef(err, "action=%s", word)
			}
		}
		seq.Append(d)
	}
	return seq, nil
}

// Exec validates and runs d with engine log in context.
func (self *Engine) Exec(ctx context.Context, d Doer) error {
	if err := d.Validate(); err != nil {
		return errors.Annotate(err, "validate")
	}
	if log2.ContextValueLogger(ctx) == nil {
		ctx = log2.WithContext(ctx, self.Log)
	}
	self.Log.Debugf("engine execute %s", d.String())
	return d.Do(ctx)
}
