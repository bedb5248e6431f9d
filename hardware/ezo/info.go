package ezo

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindDO
	KindEC
	KindORP
	KindPH
	KindRGB
	KindTemp
	KindEnvRGB // legacy colour circuit, not EZO
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindDO:      "DO",
	KindEC:      "EC",
	KindORP:     "ORP",
	KindPH:      "PH",
	KindRGB:     "RGB",
	KindTemp:    "RTD",
	KindEnvRGB:  "ENV-RGB",
}

func (self Kind) String() string { return kindNames[self] }

// ParseKind accepts device info names and config names (ph, do, env-rgb).
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if k != KindUnknown && strings.EqualFold(s, name) {
			return k
		}
	}
	if strings.EqualFold(s, "temp") {
		return KindTemp
	}
	return KindUnknown
}

// Info is parsed device information reply.
type Info struct {
	Kind     Kind
	Firmware string
	Date     string // legacy circuits only
}

// ParseInfo decodes EZO "?I,<kind>,<firmware>".
func ParseInfo(line string) (Info, error) {
	ts := tokenize(line)
	if len(ts) < 3 || !tag(ts[0], "?I") {
		return Info{}, errors.NotValidf("device info %q", line)
	}
	info := Info{Kind: ParseKind(ts[1]), Firmware: ts[2]}
	if info.Kind == KindUnknown {
		return info, errors.NotValidf("device info kind %q", ts[1])
	}
	return info, nil
}

// minFactoryFirmware is first firmware where reset command is "Factory" instead of "X".
var minFactoryFirmware = map[Kind]float64{
	KindDO:  1.65,
	KindEC:  1.75,
	KindORP: 1.65,
	KindPH:  1.85,
}

// ResetCommand selects factory reset command for device kind and firmware.
func (self Info) ResetCommand() string {
	if self.Kind == KindRGB {
		return "Factory"
	}
	min, ok := minFactoryFirmware[self.Kind]
	if !ok {
		return "X"
	}
	fw, err := strconv.ParseFloat(self.Firmware, 64)
	if err == nil && fw >= min {
		return "Factory"
	}
	return "X"
}
