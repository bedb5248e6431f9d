package ezo

import (
	"context"
	"strings"

	"github.com/juju/errors"
)

// Sentinel measurement values.
const (
	NoSensorData      = -999 // channel disabled by configuration
	NoSensorComms     = -888 // device never replied
	SensorCommsFailed = -777 // device replied before, now short or garbled reply
)

var (
	ErrNoComms     = errors.NotValidf("sensor comms")
	ErrCommsFailed = errors.NotValidf("sensor reply")
)

// Measurement is one channel of the last reading.
type Measurement struct {
	Name  string
	Value float64
	Text  string // fixed width
}

// Sensor is common to every circuit driver.
type Sensor interface {
	Engine() *Engine
	Initialize(ctx context.Context) error
	Read(ctx context.Context) (Response, error)
	Measurements() []Measurement
	Saturated() bool
}

// FormatMeasurements joins fixed width texts for one log line.
func FormatMeasurements(ms []Measurement) string {
	var b strings.Builder
	for i, m := range ms {
		if i != 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.Name)
		b.WriteByte('=')
		b.WriteString(m.Text)
	}
	return b.String()
}

// commsFailure picks sentinel by link state and wraps cause.
func commsFailure(link *Link, format string, args ...interface{}) (float64, error) {
	if link.Connected() {
		return SensorCommsFailed, errors.Annotatef(ErrCommsFailed, format, args...)
	}
	return NoSensorComms, errors.Annotatef(ErrNoComms, format, args...)
}

// IsCommsError reports parse level failure of a reading.
func IsCommsError(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrNoComms || cause == ErrCommsFailed
}
