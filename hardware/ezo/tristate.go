package ezo

// Tristate is a device reported boolean setting.
// TriUnknown means the setting was never queried, which is not the same as TriOff.
type Tristate uint8

const (
	TriUnknown Tristate = iota
	TriOn
	TriOff
)

func TristateFrom(b bool) Tristate {
	if b {
		return TriOn
	}
	return TriOff
}

func (self Tristate) Known() bool { return self != TriUnknown }

// On is true only for explicit TriOn.
func (self Tristate) On() bool { return self == TriOn }

func (self Tristate) String() string {
	switch self {
	case TriOn:
		return "on"
	case TriOff:
		return "off"
	default:
		return "unknown"
	}
}

// parseFlag decodes "0"/"1" query reply values.
func parseFlag(s string) Tristate {
	switch s {
	case "0":
		return TriOff
	case "1":
		return TriOn
	}
	return TriUnknown
}
