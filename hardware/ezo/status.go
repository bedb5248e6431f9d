package ezo

import "github.com/juju/errors"

type RestartCode uint8

const (
	RestartNone RestartCode = iota // no reply
	RestartPowerOn
	RestartSoftware
	RestartBrownOut
	RestartWatchdog
	RestartUnknown
)

func (self RestartCode) String() string {
	switch self {
	case RestartPowerOn:
		return "power-on"
	case RestartSoftware:
		return "software"
	case RestartBrownOut:
		return "brown-out"
	case RestartWatchdog:
		return "watchdog"
	case RestartUnknown:
		return "unknown"
	}
	return "none"
}

type Status struct {
	Restart RestartCode
	Voltage float64
}

// ParseStatus decodes "?STATUS,<P|S|B|W|U>,<voltage>".
func ParseStatus(line string) (Status, error) {
	ts := tokenize(line)
	if len(ts) < 3 || !tag(ts[0], "?STATUS") {
		return Status{}, errors.NotValidf("status %q", line)
	}
	s := Status{}
	switch ts[1] {
	case "P":
		s.Restart = RestartPowerOn
	case "S":
		s.Restart = RestartSoftware
	case "B":
		s.Restart = RestartBrownOut
	case "W":
		s.Restart = RestartWatchdog
	case "U":
		s.Restart = RestartUnknown
	}
	v, err := parseFloat(ts[2])
	if err != nil {
		return s, errors.Annotate(err, "status voltage")
	}
	s.Voltage = v
	return s, nil
}
