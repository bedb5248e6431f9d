package ezo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySerial(t *testing.T) {
	t.Parallel()

	type Case struct {
		line   string
		expect Response
	}
	cases := []Case{
		{"*OK", ResponseOK},
		{"*ER", ResponseError},
		{"*OV", ResponseOverVoltage},
		{"*UV", ResponseUnderVoltage},
		{"*RS", ResponseReset},
		{"*RE", ResponseRebootComplete},
		{"*SL", ResponseSleep},
		{"*WA", ResponseWake},
		{"*OK\r", ResponseOK},
		{"", ResponseUnknown},
		{"*O", ResponseUnknown},
		{"*ok", ResponseUnknown},
		{"?I,pH,1.96", ResponseUnknown},
		{"7.00", ResponseUnknown},
	}
	for _, c := range cases {
		c := c
		t.Run(c.line, func(t *testing.T) {
			assert.Equal(t, c.expect, ClassifySerial([]byte(c.line)))
		})
	}
}

func TestClassifyI2C(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ResponseNoData, ClassifyI2C(255))
	assert.Equal(t, ResponsePending, ClassifyI2C(254))
	assert.Equal(t, ResponseFailed, ClassifyI2C(2))
	assert.Equal(t, ResponseSuccess, ClassifyI2C(1))
	assert.Equal(t, ResponseI2CUnknown, ClassifyI2C(0))
	assert.Equal(t, ResponseI2CUnknown, ClassifyI2C(7))
}

func TestResponseRecognized(t *testing.T) {
	t.Parallel()

	for _, r := range []Response{ResponseOffline, ResponseNotApplicable, ResponseUnknown, ResponseI2CUnknown} {
		assert.False(t, r.Recognized(), r.String())
	}
	for _, r := range []Response{ResponseOK, ResponseError, ResponseWake, ResponsePending, ResponseSuccess} {
		assert.True(t, r.Recognized(), r.String())
	}
	assert.True(t, ResponseError.DeviceError())
	assert.False(t, ResponseOK.DeviceError())
	assert.Equal(t, "RE", ResponseReady.String())
	assert.Equal(t, "invalid", Response(200).String())
}
