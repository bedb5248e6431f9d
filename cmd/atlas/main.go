package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/temoto/atlas/cmd/atlas/poll"
	"github.com/temoto/atlas/cmd/atlas/read"
	"github.com/temoto/atlas/cmd/atlas/subcmd"
	"github.com/temoto/atlas/cmd/atlas/tele"
	"github.com/temoto/atlas/config"
	"github.com/temoto/atlas/log2"
	"github.com/temoto/atlas/state"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	poll.Mod,
	read.Mod,
	tele.Mod,
}

func main() {
	flagset := flag.NewFlagSet("atlas", flag.ContinueOnError)
	configPath := flagset.String("config", "atlas.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: atlas [option...] command\n\nOptions:\n")
		flagset.PrintDefaults()
		fmt.Fprintf(flagset.Output(), "\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %s\n", m.Name)
		}
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	command := "poll"
	if flagset.NArg() > 0 {
		command = flagset.Arg(0)
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	cfg := config.MustReadConfig(log, config.NewOsFullReader(), *configPath)
	log.Debugf("config=%+v", cfg)

	ctx, g := state.NewContext(log)
	go stopOnSignal(g)
	if err := mod.Main(ctx, cfg); err != nil {
		g.Error(err)
		g.Close()
		os.Exit(1)
	}
	if err := g.Close(); err != nil {
		log.Error(err)
	}
}

func stopOnSignal(g *state.Global) {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigch
	g.Log.Infof("signal %v, stopping", s)
	g.Alive.Stop()
}
