package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/helpers"
	"github.com/temoto/atlas/log2"
	tele_config "github.com/temoto/atlas/tele/config"
	"gopkg.in/yaml.v3"
)

const (
	DriverFile   = "file"
	DriverSerial = "serial"
	DriverI2C    = "i2c"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultRetryMin     = 1 * time.Second
	defaultRetryMax     = 5 * time.Minute
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include" yaml:"include"`

	LogDebug bool `hcl:"log_debug" yaml:"log_debug"`

	Circuits []CircuitConfig `hcl:"circuit" yaml:"circuit"`
	Aliases  []AliasConfig   `hcl:"alias" yaml:"alias"`

	Poll struct {
		IntervalSec int `hcl:"interval_sec" yaml:"interval_sec"`
		RetryMinMs  int `hcl:"retry_min_ms" yaml:"retry_min_ms"`
		RetryMaxMs  int `hcl:"retry_max_ms" yaml:"retry_max_ms"`
	} `hcl:"poll" yaml:"poll"`

	Persist struct {
		Root string `hcl:"root" yaml:"root"`
	} `hcl:"persist" yaml:"persist"`

	Tele tele_config.Config `hcl:"tele" yaml:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key" yaml:"name"`
	Optional bool   `hcl:"optional" yaml:"optional"`
}

type CircuitConfig struct { //nolint:maligned
	Name            string `hcl:"name,key" yaml:"name"`
	Kind            string `hcl:"kind" yaml:"kind"`
	Driver          string `hcl:"driver" yaml:"driver"`
	Device          string `hcl:"device" yaml:"device"`
	Baud            int    `hcl:"baud" yaml:"baud"`
	I2CBus          string `hcl:"i2c_bus" yaml:"i2c_bus"`
	I2CAddress      int    `hcl:"i2c_address" yaml:"i2c_address"`
	ResultTimeoutMs int    `hcl:"result_timeout_ms" yaml:"result_timeout_ms"`
	ResultDelayMs   int    `hcl:"result_delay_ms" yaml:"result_delay_ms"`
	Online          *bool  `hcl:"online" yaml:"online"`
	Debug           bool   `hcl:"debug" yaml:"debug"`

	Power PowerConfig `hcl:"power" yaml:"power"`

	// env-rgb only: 1=RGB 2=lux 3=both
	Mode int `hcl:"mode" yaml:"mode"`

	RGB struct {
		Brightness int    `hcl:"brightness" yaml:"brightness"`
		LEDAuto    *bool  `hcl:"led_auto" yaml:"led_auto"`
		Proximity  int    `hcl:"proximity" yaml:"proximity"`
		IR         string `hcl:"ir" yaml:"ir"`
	} `hcl:"rgb" yaml:"rgb"`
}

type PowerConfig struct {
	Chip     string `hcl:"chip" yaml:"chip"`
	Line     int    `hcl:"line" yaml:"line"`
	SettleMs int    `hcl:"settle_ms" yaml:"settle_ms"`
}

func (self PowerConfig) Enabled() bool { return self.Chip != "" }

type AliasConfig struct {
	Name     string `hcl:"name,key" yaml:"name"`
	Scenario string `hcl:"scenario" yaml:"scenario"`
}

func (self *CircuitConfig) IsOnline() bool { return self.Online == nil || *self.Online }

func (self *CircuitConfig) ParseKind() ezo.Kind { return ezo.ParseKind(self.Kind) }

func (self *CircuitConfig) ResultTimeout(def time.Duration) time.Duration {
	return helpers.IntMillisecondDefault(self.ResultTimeoutMs, def)
}

func (self *CircuitConfig) ResultDelay() time.Duration {
	return time.Duration(self.ResultDelayMs) * time.Millisecond
}

// BaudDefault is EZO factory rate unless configured.
func (self *CircuitConfig) BaudDefault() int {
	if self.Baud != 0 {
		return self.Baud
	}
	if self.ParseKind() == ezo.KindEnvRGB {
		return ezo.EnvRGBDefaultBaud
	}
	return 9600
}

func (self *CircuitConfig) RGBConfig() ezo.RGBConfig {
	rc := ezo.DefaultRGBConfig
	if self.RGB.Brightness != 0 {
		rc.Brightness = self.RGB.Brightness
	}
	if self.RGB.LEDAuto != nil {
		rc.Auto = ezo.TriOff
		if *self.RGB.LEDAuto {
			rc.Auto = ezo.TriOn
		}
	}
	if self.RGB.Proximity != 0 {
		rc.Proximity = self.RGB.Proximity
	}
	switch strings.ToUpper(self.RGB.IR) {
	case "L":
		rc.IR = ezo.IRLow
	case "M":
		rc.IR = ezo.IRMedium
	case "H":
		rc.IR = ezo.IRHigh
	}
	return rc
}

func (self *CircuitConfig) Validate() error {
	errs := make([]error, 0, 4)
	if self.Name == "" {
		errs = append(errs, errors.NotValidf("circuit name=empty"))
	}
	switch self.ParseKind() {
	case ezo.KindPH, ezo.KindORP, ezo.KindEC, ezo.KindDO, ezo.KindRGB, ezo.KindEnvRGB:
	default:
		errs = append(errs, errors.NotValidf("circuit=%s kind=%s", self.Name, self.Kind))
	}
	switch self.Driver {
	case DriverFile, DriverSerial:
		if self.Device == "" {
			errs = append(errs, errors.NotValidf("circuit=%s driver=%s device=empty", self.Name, self.Driver))
		}
		if !validBaud(self.BaudDefault()) {
			errs = append(errs, errors.NotValidf("circuit=%s baud=%d", self.Name, self.Baud))
		}
	case DriverI2C:
		if self.I2CAddress < 1 || self.I2CAddress > 127 {
			errs = append(errs, errors.NotValidf("circuit=%s i2c_address=%d", self.Name, self.I2CAddress))
		}
	default:
		errs = append(errs, errors.NotValidf("circuit=%s driver=%s", self.Name, self.Driver))
	}
	if self.Mode < 0 || self.Mode > int(ezo.EnvRGBAll) {
		errs = append(errs, errors.NotValidf("circuit=%s mode=%d", self.Name, self.Mode))
	}
	return helpers.FoldErrors(errs)
}

func validBaud(b int) bool {
	for _, x := range ezo.BaudRates {
		if x == b {
			return true
		}
	}
	return false
}

func (c *Config) Circuit(name string) (*CircuitConfig, bool) {
	for i := range c.Circuits {
		if c.Circuits[i].Name == name {
			return &c.Circuits[i], true
		}
	}
	return nil, false
}

func (c *Config) PollInterval() time.Duration {
	return helpers.IntSecondDefault(c.Poll.IntervalSec, defaultPollInterval)
}
func (c *Config) RetryMin() time.Duration {
	return helpers.IntMillisecondDefault(c.Poll.RetryMinMs, defaultRetryMin)
}
func (c *Config) RetryMax() time.Duration {
	return helpers.IntMillisecondDefault(c.Poll.RetryMaxMs, defaultRetryMax)
}

func (c *Config) Validate() error {
	errs := make([]error, 0, len(c.Circuits))
	for i := range c.Circuits {
		if err := c.Circuits[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Tele.Format {
	case "", tele_config.FormatProto, tele_config.FormatJSON:
	default:
		errs = append(errs, errors.NotValidf("tele format=%s", c.Tele.Format))
	}
	if c.Tele.Enabled && c.Tele.MqttBroker == "" {
		errs = append(errs, errors.NotValidf("tele enabled but mqtt_broker=empty"))
	}
	return helpers.FoldErrors(errs)
}

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (c *Config) unmarshal(name string, bs []byte) error {
	// repeated blocks accumulate across sources
	circuits, aliases := c.Circuits, c.Aliases
	c.Circuits, c.Aliases = nil, nil
	var err error
	if isYAML(name) {
		err = yaml.Unmarshal(bs, c)
	} else {
		err = hcl.Unmarshal(bs, c)
	}
	c.Circuits = mergeCircuits(circuits, c.Circuits)
	c.Aliases = mergeAliases(aliases, c.Aliases)
	return err
}

// later definition of same name replaces earlier one in place
func mergeCircuits(old, next []CircuitConfig) []CircuitConfig {
	result := old
outer:
	for _, n := range next {
		for i := range result {
			if result[i].Name == n.Name {
				result[i] = n
				continue outer
			}
		}
		result = append(result, n)
	}
	return result
}

func mergeAliases(old, next []AliasConfig) []AliasConfig {
	result := old
outer:
	for _, n := range next {
		for i := range result {
			if result[i].Name == n.Name {
				result[i] = n
				continue outer
			}
		}
		result = append(result, n)
	}
	return result
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = c.unmarshal(source.Name, bs)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads names in order, later sources override earlier ones.
// Relative includes are resolved against directory of the first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
