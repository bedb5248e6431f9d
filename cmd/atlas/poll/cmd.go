package poll

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/atlas/cmd/atlas/subcmd"
	"github.com/temoto/atlas/config"
	"github.com/temoto/atlas/poll"
	"github.com/temoto/atlas/state"
)

var Mod = subcmd.Mod{Name: "poll", Main: Main}

const statInterval = 10 * time.Minute

func Main(ctx context.Context, cfg *config.Config) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, cfg); err != nil {
		return errors.Annotate(err, "init")
	}

	p := poll.New(g)
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("polling circuits=%v interval=%v", g.CircuitNames(), cfg.PollInterval())
	go logStat(g, p)
	return p.Run(ctx)
}

func logStat(g *state.Global, p *poll.Poller) {
	t := time.NewTicker(statInterval)
	defer t.Stop()
	stopCh := g.Alive.StopChan()
	for {
		select {
		case <-t.C:
			g.Log.Infof("stat poll=%+v tele=%+v", p.Stat(), g.Tele.Stat())
		case <-stopCh:
			return
		}
	}
}
