// Package cli runs interactive command console or, when stdin is not terminal, executes piped lines.
package cli

import (
	"bufio"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
	"github.com/temoto/atlas/log2"
)

type Config struct {
	Tag         string
	Log         *log2.Log
	Exec        func(line string)
	Complete    func(d prompt.Document) []prompt.Suggest
	OnInterrupt func() // optional, called before exit on SIGINT SIGTERM
}

func MainLoop(c Config) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		s := <-signalCh
		c.Log.Infof("%s: signal %v, exit", c.Tag, s)
		if c.OnInterrupt != nil {
			c.OnInterrupt()
		}
		os.Exit(1)
	}()

	if isatty.IsTerminal(os.Stdin.Fd()) {
		complete := c.Complete
		if complete == nil {
			complete = func(prompt.Document) []prompt.Suggest { return nil }
		}
		prompt.New(c.Exec, complete,
			prompt.OptionPrefix(c.Tag+"> "),
			prompt.OptionTitle(c.Tag),
		).Run()
		return
	}
	RunLines(bufio.NewScanner(os.Stdin), c.Exec)
}

// RunLines executes every non-empty trimmed line from scanner.
func RunLines(s *bufio.Scanner, exec func(line string)) {
	for s.Scan() {
		if line := strings.TrimSpace(s.Text()); line != "" {
			exec(line)
		}
	}
}
