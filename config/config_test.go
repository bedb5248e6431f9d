package config

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, 0, len(c.Circuits))
			assert.Equal(t, 10*time.Second, c.PollInterval())
			assert.Equal(t, time.Second, c.RetryMin())
			assert.Equal(t, 5*time.Minute, c.RetryMax())
		}, ""},

		{"circuits", `
log_debug = true
poll { interval_sec = 3 retry_max_ms = 60000 }
circuit "tank-ph" { kind = "ph" driver = "file" device = "/dev/ttyS1" result_timeout_ms = 7000 }
circuit "tank-do" {
	kind = "do"
	driver = "serial"
	device = "/dev/ttyUSB0"
	baud = 38400
	online = false
	power { chip = "gpiochip0" line = 17 settle_ms = 500 }
}`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.LogDebug)
				assert.Equal(t, 3*time.Second, c.PollInterval())
				assert.Equal(t, time.Minute, c.RetryMax())
				require.Equal(t, 2, len(c.Circuits))
				ph := c.Circuits[0]
				assert.Equal(t, "tank-ph", ph.Name)
				assert.Equal(t, ezo.KindPH, ph.ParseKind())
				assert.Equal(t, 9600, ph.BaudDefault())
				assert.True(t, ph.IsOnline())
				assert.False(t, ph.Power.Enabled())
				assert.Equal(t, 7*time.Second, ph.ResultTimeout(time.Second))
				do, ok := c.Circuit("tank-do")
				require.True(t, ok)
				assert.Equal(t, 38400, do.BaudDefault())
				assert.False(t, do.IsOnline())
				assert.True(t, do.Power.Enabled())
				assert.Equal(t, 17, do.Power.Line)
				assert.Equal(t, time.Second, do.ResultTimeout(time.Second))
			}, ""},

		{"alias", `
alias "cal-mid" { scenario = "cal-clear sleep(1s)" }
alias "cal-clear" { scenario = "raw" }`,
			func(t testing.TB, c *Config) {
				require.Equal(t, 2, len(c.Aliases))
				assert.Equal(t, "cal-mid", c.Aliases[0].Name)
				assert.Equal(t, "cal-clear sleep(1s)", c.Aliases[0].Scenario)
			}, ""},

		{"include-yaml", `
circuit "env" { kind = "env-rgb" driver = "file" device = "/dev/ttyS2" mode = 3 }
include "colour.yaml" {}`,
			func(t testing.TB, c *Config) {
				require.Equal(t, 2, len(c.Circuits))
				assert.Equal(t, ezo.EnvRGBDefaultBaud, c.Circuits[0].BaudDefault())
				rgb := c.Circuits[1]
				assert.Equal(t, "vat-colour", rgb.Name)
				assert.Equal(t, 112, rgb.I2CAddress)
				rc := rgb.RGBConfig()
				assert.Equal(t, 40, rc.Brightness)
				assert.Equal(t, ezo.TriOff, rc.Auto)
				assert.Equal(t, ezo.IRHigh, rc.IR)
				assert.Equal(t, 250*time.Millisecond, rgb.ResultDelay())
			}, ""},

		{"include-normalize", `
poll { interval_sec = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "poll-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 7*time.Second, c.PollInterval())
			}, ""},

		{"include-overwrites", `
poll { interval_sec = 1 }
circuit "a" { kind = "orp" driver = "file" device = "/dev/a" }
include "poll-7" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 7*time.Second, c.PollInterval())
				require.Equal(t, 1, len(c.Circuits))
				assert.Equal(t, "/dev/b", c.Circuits[0].Device)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-kind", `circuit "x" { kind = "bogus" driver = "file" device = "/dev/x" }`, nil, "circuit=x kind=bogus"},
		{"error-driver", `circuit "x" { kind = "ph" driver = "usb" }`, nil, "circuit=x driver=usb"},
		{"error-device", `circuit "x" { kind = "ph" driver = "serial" }`, nil, "circuit=x driver=serial device=empty"},
		{"error-baud", `circuit "x" { kind = "ph" driver = "file" device = "/dev/x" baud = 4800 }`, nil, "circuit=x baud=4800"},
		{"error-i2c-address", `circuit "x" { kind = "ec" driver = "i2c" i2c_address = 200 }`, nil, "circuit=x i2c_address=200"},
		{"error-tele-format", `tele { format = "xml" }`, nil, "tele format=xml"},
		{"error-tele-broker", `tele { enable = true }`, nil, "mqtt_broker=empty"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline": c.input,
				"empty":       "",
				"poll-7": `poll { interval_sec = 7 }
circuit "a" { kind = "orp" driver = "file" device = "/dev/b" }`,
				"include-loop": `include "include-loop" {}`,
				"colour.yaml": `
circuit:
  - name: vat-colour
    kind: rgb
    driver: i2c
    i2c_bus: "1"
    i2c_address: 112
    result_delay_ms: 250
    rgb:
      brightness: 40
      led_auto: false
      ir: h
`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, mkCheck(c))
	}
}

func TestReadConfigOs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "atlas.hcl"), []byte(`
poll { interval_sec = 2 }
include "local.yml" { optional = true }
include "site.yaml" {}
`), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "site.yaml"), []byte(`
circuit:
  - name: pool-orp
    kind: orp
    driver: serial
    device: /dev/ttyAMA0
`), 0644))

	log := log2.NewTest(t, log2.LDebug)
	cfg, err := ReadConfig(log, NewOsFullReader(), filepath.Join(dir, "atlas.hcl"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	require.Equal(t, 1, len(cfg.Circuits))
	assert.Equal(t, "/dev/ttyAMA0", cfg.Circuits[0].Device)
}

func TestMergeCircuits(t *testing.T) {
	t.Parallel()

	old := []CircuitConfig{{Name: "a", Device: "1"}, {Name: "b", Device: "2"}}
	next := []CircuitConfig{{Name: "b", Device: "3"}, {Name: "c", Device: "4"}}
	result := mergeCircuits(old, next)
	require.Equal(t, 3, len(result))
	assert.Equal(t, "1", result[0].Device)
	assert.Equal(t, "3", result[1].Device)
	assert.Equal(t, "c", result[2].Name)
}
