// Package state holds process wide runtime: config, logger, action engine,
// telemetry and lazily opened circuits.
package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atlas/config"
	"github.com/temoto/atlas/engine"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/helpers"
	"github.com/temoto/atlas/log2"
	"github.com/temoto/atlas/tele"
)

type Global struct {
	Alive  *alive.Alive
	Config *config.Config
	Engine *engine.Engine
	Known  *Known
	Log    *log2.Log
	Tele   *tele.Tele
	// nil means ezo.SystemClock, tests set ezo.MockClock
	Clock ezo.Clock

	// test code sets these before first Circuit()
	XXX_OpenTransport func(cc *config.CircuitConfig) (ezo.Transport, error)
	XXX_OpenBus       func(name string) (ezo.I2CBus, error)

	lk       sync.Mutex
	circuits map[string]*Circuit
	buses    map[string]ezo.I2CBus
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive:    alive.NewAlive(),
		Engine:   engine.NewEngine(log),
		Known:    NewKnown(),
		Log:      log,
		Tele:     new(tele.Tele),
		circuits: make(map[string]*Circuit),
		buses:    make(map[string]ezo.I2CBus),
	}
	ctx := context.Background()
	ctx = log2.WithContext(ctx, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *config.Config) error {
	g.Config = cfg
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}

	root := g.Config.Persist.Root
	if root != "" && g.Config.Tele.PersistPath == "" {
		g.Config.Tele.PersistPath = filepath.Join(root, "tele")
	}
	if err := g.Tele.Init(ctx, g.Log, g.Config.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}

	errs := make([]error, 0)
	{
		err := g.Known.Persist.Init("known", g.Known, root, root != "", g.Log)
		if err == nil {
			err = g.Known.Persist.Load()
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	for i := range cfg.Circuits {
		g.registerCircuitActions(cfg.Circuits[i].Name)
	}
	for _, a := range cfg.Aliases {
		g.registerAlias(a)
	}
	g.Engine.Register("help", engine.Func0{Name: "help", F: func() error {
		g.Log.Infof("actions: %s", strings.Join(g.Engine.List(), " "))
		return nil
	}})

	return helpers.FoldErrors(errs)
}

func (g *Global) MustInit(ctx context.Context, cfg *config.Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
	}
}

// ParseWord handles words which are not registered actions:
// "sN" sleeps N milliseconds.
func ParseWord(word string) (engine.Doer, error) {
	if len(word) >= 2 && word[0] == 's' {
		if i, err := strconv.ParseUint(word[1:], 10, 32); err == nil {
			return engine.Sleep{Duration: time.Duration(i) * time.Millisecond}, nil
		}
	}
	return nil, errors.NotFoundf("action=%s", word)
}

// aliasPathKey holds names of aliases being executed, outermost first.
const aliasPathKey = "run/alias-path"

func (g *Global) registerAlias(a config.AliasConfig) {
	name, scenario := a.Name, a.Scenario
	// parsed at run time, alias may refer to aliases defined later
	g.Engine.Register(name, engine.Func{Name: name, F: func(ctx context.Context) error {
		path, _ := ctx.Value(aliasPathKey).([]string)
		for _, p := range path {
			if p == name {
				return errors.NotValidf("alias loop %s>%s", strings.Join(path, ">"), name)
			}
		}
		next := make([]string, len(path), len(path)+1)
		copy(next, path)
		ctx = context.WithValue(ctx, aliasPathKey, append(next, name))

		seq, err := g.Engine.ParseText(name, scenario, ParseWord)
		if err != nil {
			return g.Engine.Exec(ctx, engine.Fail{E: errors.Annotatef(err, "alias=%s", name)})
		}
		return g.Engine.Exec(ctx, seq)
	}})
}

// CircuitNames in config order.
func (g *Global) CircuitNames() []string {
	names := make([]string, len(g.Config.Circuits))
	for i := range g.Config.Circuits {
		names[i] = g.Config.Circuits[i].Name
	}
	return names
}

func (g *Global) Close() error {
	g.lk.Lock()
	names := make([]string, 0, len(g.circuits))
	for name := range g.circuits {
		names = append(names, name)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, g.circuits[name].Close())
		delete(g.circuits, name)
	}
	for name, bus := range g.buses {
		if c, ok := bus.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
		delete(g.buses, name)
	}
	g.lk.Unlock()
	g.Tele.Close()
	return helpers.FoldErrors(errs)
}
