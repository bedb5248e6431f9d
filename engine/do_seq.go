package engine

import (
	"context"

	"github.com/juju/errors"
	"github.com/temoto/atlas/helpers"
)

// Sequence executor.
// Error in one action aborts the rest.
// Build with NewSeq().Append()
type Seq struct {
	name  string
	_b    [8]Doer
	items []Doer
}

func NewSeq(name string) *Seq {
	self := &Seq{name: name}
	self.items = self._b[:0]
	return self
}

func (self *Seq) Append(d Doer) *Seq {
	self.items = append(self.items, d)
	return self
}

func (self *Seq) Len() int { return len(self.items) }

func (self *Seq) Validate() error {
	errs := make([]error, 0, len(self.items))
	for _, d := range self.items {
		if err := d.Validate(); err != nil {
			errs = append(errs, errors.Annotatef(err, "node=%s validate", d.String()))
		}
	}
	return helpers.FoldErrors(errs)
}

func (self *Seq) Do(ctx context.Context) error {
	for _, d := range self.items {
		if err := d.Do(ctx); err != nil {
			return errors.Annotate(err, d.String())
		}
	}
	return nil
}

func (self *Seq) String() string {
	return self.name
}
