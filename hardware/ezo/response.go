package ezo

import "bytes"

// Response is the outcome of one command exchange.
// Serial and I2C codes share one type; exactly one value results from each exchange.
type Response uint8

const (
	ResponseOffline        Response = iota // link offline, nothing was sent
	ResponseNotApplicable                  // response code not requested or response mode off
	ResponseUnknown                        // no or unrecognized response line
	ResponseOK                             // *OK command accepted
	ResponseError                          // *ER unknown command or invalid argument
	ResponseOverVoltage                    // *OV VCC>=5.5V
	ResponseUnderVoltage                   // *UV VCC<=3.1V
	ResponseReset                          // *RS
	ResponseRebootComplete                 // *RE
	ResponseSleep                          // *SL
	ResponseWake                           // *WA

	// I2C status byte codes
	ResponseNoData     // 255
	ResponsePending    // 254
	ResponseFailed     // 2
	ResponseSuccess    // 1
	ResponseI2CUnknown // any other status byte
)

// Deprecated: I2C exchanges report ResponseNotApplicable directly.
const ResponseI2CNotApplicable = ResponseNotApplicable

// Deprecated: use ResponseRebootComplete.
const ResponseReady = ResponseRebootComplete

var responseNames = [...]string{
	ResponseOffline:        "OL",
	ResponseNotApplicable:  "NA",
	ResponseUnknown:        "UK",
	ResponseOK:             "OK",
	ResponseError:          "ER",
	ResponseOverVoltage:    "OV",
	ResponseUnderVoltage:   "UV",
	ResponseReset:          "RS",
	ResponseRebootComplete: "RE",
	ResponseSleep:          "SL",
	ResponseWake:           "WA",
	ResponseNoData:         "IND",
	ResponsePending:        "IPE",
	ResponseFailed:         "IF",
	ResponseSuccess:        "IS",
	ResponseI2CUnknown:     "IUK",
}

func (self Response) String() string {
	if int(self) < len(responseNames) {
		return responseNames[self]
	}
	return "invalid"
}

// Recognized reports whether the code came from an actual device reply.
// Any recognized code, even an error, proves the device is alive.
func (self Response) Recognized() bool {
	switch self {
	case ResponseOK, ResponseError, ResponseOverVoltage, ResponseUnderVoltage,
		ResponseReset, ResponseRebootComplete, ResponseSleep, ResponseWake,
		ResponseNoData, ResponsePending, ResponseFailed, ResponseSuccess:
		return true
	}
	return false
}

// DeviceError is true for codes where the device explicitly rejected the command or reports a supply problem.
func (self Response) DeviceError() bool {
	return self == ResponseError || self == ResponseOverVoltage || self == ResponseUnderVoltage || self == ResponseFailed
}

var serialCodes = []struct {
	prefix []byte
	code   Response
}{
	{[]byte("*OK"), ResponseOK},
	{[]byte("*ER"), ResponseError},
	{[]byte("*OV"), ResponseOverVoltage},
	{[]byte("*UV"), ResponseUnderVoltage},
	{[]byte("*RS"), ResponseReset},
	{[]byte("*RE"), ResponseRebootComplete},
	{[]byte("*SL"), ResponseSleep},
	{[]byte("*WA"), ResponseWake},
}

// ClassifySerial maps a response line like "*OK" to its code.
// Unrecognized lines, including empty, yield ResponseUnknown.
func ClassifySerial(line []byte) Response {
	for _, c := range serialCodes {
		if bytes.HasPrefix(line, c.prefix) {
			return c.code
		}
	}
	return ResponseUnknown
}

// ClassifyI2C maps the first byte of an I2C read.
func ClassifyI2C(status byte) Response {
	switch status {
	case 255:
		return ResponseNoData
	case 254:
		return ResponsePending
	case 2:
		return ResponseFailed
	case 1:
		return ResponseSuccess
	}
	return ResponseI2CUnknown
}
