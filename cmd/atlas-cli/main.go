package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/atlas/config"
	"github.com/temoto/atlas/engine"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/helpers/cli"
	"github.com/temoto/atlas/log2"
	"github.com/temoto/atlas/state"
)

const usage = `syntax: commands separated by whitespace
(main)
- R        take reading, show measurements
- I        query device info
- :TEXT    send TEXT as raw command, show result and response code
- sN       pause N milliseconds
- online   enable I/O
- offline  disable I/O, commands return OL
- flush    discard pending input
- NAME     any action from config, see "help"

(meta)
- log=yes  enable debug logging
- log=no   disable debug logging
- loop=N   repeat N times all commands on this line
`

var log = log2.NewStderr(log2.LDebug)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := cmdline.String("config", "", "optional config file, flags override its circuit")
	circuitName := cmdline.String("circuit", "cli", "circuit name from config")
	devicePath := cmdline.String("device", "/dev/ttyAMA0", "")
	driver := cmdline.String("driver", config.DriverFile, "file|serial|i2c")
	baud := cmdline.Int("baud", 0, "0 means factory default for kind")
	kind := cmdline.String("kind", "ph", "ph|orp|ec|do|rgb|env-rgb")
	i2cBus := cmdline.String("i2c-bus", "", "periph bus name or /dev/i2c-N")
	i2cAddr := cmdline.Int("i2c-addr", 0, "")
	cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.ReadConfig(log, config.NewOsFullReader(), *configPath)
	} else {
		cfg = new(config.Config)
		cfg.Circuits = []config.CircuitConfig{{
			Name:       *circuitName,
			Kind:       *kind,
			Driver:     *driver,
			Device:     *devicePath,
			Baud:       *baud,
			I2CBus:     *i2cBus,
			I2CAddress: *i2cAddr,
		}}
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	ctx, g := state.NewContext(log)
	g.MustInit(ctx, cfg)
	defer g.Close()
	c, err := g.Circuit(*circuitName)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	ctx = context.WithValue(ctx, circuitKey, c)

	cli.MainLoop(cli.Config{
		Tag:         "atlas-cli",
		Log:         log,
		Exec:        newExecutor(ctx),
		Complete:    newCompleter(ctx),
		OnInterrupt: func() { g.Close() },
	})
}

const circuitKey = "run/cli-circuit"

func getCircuit(ctx context.Context) *state.Circuit {
	return ctx.Value(circuitKey).(*state.Circuit)
}

var doUsage = engine.Func0{Name: "usage", F: func() error {
	log.Infof(usage)
	return nil
}}
var doLogYes = engine.Func{Name: "log=yes", F: func(ctx context.Context) error {
	getCircuit(ctx).Log.SetLevel(log2.LDebug)
	return nil
}}
var doLogNo = engine.Func{Name: "log=no", F: func(ctx context.Context) error {
	getCircuit(ctx).Log.SetLevel(log2.LError)
	return nil
}}
var doOnline = engine.Func{Name: "online", F: func(ctx context.Context) error {
	getCircuit(ctx).Engine.Link.SetOnline()
	return nil
}}
var doOffline = engine.Func{Name: "offline", F: func(ctx context.Context) error {
	getCircuit(ctx).Engine.Link.SetOffline()
	return nil
}}
var doFlush = engine.Func{Name: "flush", F: func(ctx context.Context) error {
	n := getCircuit(ctx).Engine.Flush()
	log.Infof("flushed %d bytes", n)
	return nil
}}
var doRead = engine.Func{Name: "R", F: func(ctx context.Context) error {
	r := getCircuit(ctx).Read(ctx)
	log.Infof("< %s response=%s", ezo.FormatMeasurements(r.Values), r.Response)
	return r.Err
}}
var doInfo = engine.Func{Name: "I", F: func(ctx context.Context) error {
	c := getCircuit(ctx)
	r := c.Common.QueryInfo(ctx)
	info := c.Common.Info()
	log.Infof("< kind=%s firmware=%s response=%s", info.Kind, info.Firmware, r)
	return state.ResponseError(r)
}}

func newRaw(text string) engine.Doer {
	return engine.Func{Name: ":" + text, F: func(ctx context.Context) error {
		c := getCircuit(ctx)
		r := c.Engine.SendCommand(ctx, text+"\r", true, 0, true)
		log.Infof("< %q response=%s", c.Engine.Result().String(), r)
		return nil
	}}
}

func newCompleter(ctx context.Context) func(d prompt.Document) []prompt.Suggest {
	g := state.GetGlobal(ctx)
	suggests := []prompt.Suggest{
		{Text: "R", Description: "take reading"},
		{Text: "I", Description: "device info"},
		{Text: ":", Description: "raw command, e.g. :Cal,?"},
		{Text: "sN", Description: "pause for N ms"},
		{Text: "loop=N", Description: "repeat line N times"},
		{Text: "online", Description: "enable I/O"},
		{Text: "offline", Description: "disable I/O"},
		{Text: "flush", Description: "discard pending input"},
		{Text: "log=yes", Description: "debug logging"},
		{Text: "log=no", Description: "errors only"},
	}
	for _, action := range g.Engine.List() {
		suggests = append(suggests, prompt.Suggest{Text: action, Description: "action"})
	}

	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		d, err := parseLine(ctx, line)
		if err != nil {
			g.Log.Errorf(errors.ErrorStack(err))
			return
		}
		if err = g.Engine.Exec(ctx, d); err != nil {
			g.Log.Errorf(errors.ErrorStack(err))
		}
	}
}

func parseLine(ctx context.Context, line string) (engine.Doer, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return engine.Nothing{}, nil
	}

	// pre-parse special commands
	loopn := uint(0)
	wordsRest := make([]string, 0, len(words))
	for _, word := range words {
		switch {
		case word == "help":
			return engine.NewSeq("help").Append(doUsage).Append(state.GetGlobal(ctx).Engine.Resolve("help")), nil
		case strings.HasPrefix(word, "loop="):
			if loopn != 0 {
				return nil, errors.Errorf("multiple loop commands, expected at most one")
			}
			i, err := strconv.ParseUint(word[5:], 10, 32)
			if err != nil {
				return nil, errors.Annotatef(err, "word=%s", word)
			}
			loopn = uint(i)
		default:
			wordsRest = append(wordsRest, word)
		}
	}

	tx := engine.NewSeq("input:" + line)
	for _, word := range wordsRest {
		d, err := parseCommand(ctx, word)
		if err != nil {
			return nil, err
		}
		tx.Append(d)
	}

	if loopn != 0 {
		return engine.RepeatN{N: loopn, D: tx}, nil
	}
	return tx, nil
}

func parseCommand(ctx context.Context, word string) (engine.Doer, error) {
	switch word {
	case "log=yes":
		return doLogYes, nil
	case "log=no":
		return doLogNo, nil
	case "online":
		return doOnline, nil
	case "offline":
		return doOffline, nil
	case "flush":
		return doFlush, nil
	case "R", "r":
		return doRead, nil
	case "I", "i":
		return doInfo, nil
	}
	if word[0] == ':' {
		if len(word) == 1 {
			return nil, errors.NotValidf("raw command=empty")
		}
		return newRaw(word[1:]), nil
	}
	if d := state.GetGlobal(ctx).Engine.Resolve(word); d != nil {
		return d, nil
	}
	d, err := state.ParseWord(word)
	if err != nil {
		return nil, errors.Annotate(err, fmt.Sprintf("invalid command: '%s'", word))
	}
	return d, nil
}
