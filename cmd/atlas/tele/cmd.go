// Decode reading payloads copied from MQTT, one per line, hex or JSON.
package tele

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/temoto/atlas/cmd/atlas/subcmd"
	"github.com/temoto/atlas/config"
	"github.com/temoto/atlas/helpers/cli"
	"github.com/temoto/atlas/log2"
	"github.com/temoto/atlas/state"
	tele_api "github.com/temoto/atlas/tele"
	tele_config "github.com/temoto/atlas/tele/config"
)

const modName = "tele-decode"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, cfg *config.Config) error {
	g := state.GetGlobal(ctx)
	cli.MainLoop(cli.Config{
		Tag:  modName,
		Log:  g.Log,
		Exec: newExecutor(g.Log),
	})
	return nil
}

func newExecutor(log *log2.Log) func(string) {
	return func(line string) {
		format := tele_config.FormatProto
		var b []byte
		if strings.HasPrefix(line, "{") {
			format = tele_config.FormatJSON
			b = []byte(line)
		} else {
			// mosquitto_sub wrongly strips leading zero in hex format
			if len(line)%2 == 1 {
				line = "0" + line
			}
			var err error
			if b, err = hex.DecodeString(line); err != nil {
				log.Errorf("hex.Decode err=%v", err)
				return
			}
		}

		st, err := tele_api.Decode(format, b)
		if err != nil {
			log.Errorf("decode format=%s err=%v", format, err)
			return
		}
		log.Info(proto.MarshalTextString(st))
	}
}
