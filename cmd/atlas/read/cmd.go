// Initialize and read every configured circuit once.
package read

import (
	"context"
	"fmt"

	"github.com/temoto/atlas/cmd/atlas/subcmd"
	"github.com/temoto/atlas/config"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/helpers"
	"github.com/temoto/atlas/state"
)

var Mod = subcmd.Mod{Name: "read", Main: Main}

func Main(ctx context.Context, cfg *config.Config) error {
	g := state.GetGlobal(ctx)
	cfg.Tele.Enabled = false
	if err := g.Init(ctx, cfg); err != nil {
		return err
	}

	errs := make([]error, 0)
	for _, name := range g.CircuitNames() {
		c, err := g.Circuit(name)
		if err == nil {
			err = c.Initialize(ctx)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r := c.Read(ctx)
		info := c.Common.Info()
		fmt.Printf("%s\t%s\t%s\t%s\n", name, info.Kind, info.Firmware, ezo.FormatMeasurements(r.Values))
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return helpers.FoldErrors(errs)
}
