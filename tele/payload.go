package tele

import (
	"time"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/juju/errors"
	"github.com/temoto/atlas/hardware/ezo"
	tele_config "github.com/temoto/atlas/tele/config"
)

// Reading is one poll result of one circuit.
type Reading struct {
	Circuit   string
	Kind      ezo.Kind
	Response  ezo.Response
	Values    []ezo.Measurement
	Saturated bool
	Err       error
	Time      time.Time
}

func numberValue(x float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: x}}
}
func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}
func boolValue(b bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
}

func (self *Reading) Struct() *structpb.Struct {
	values := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(self.Values))}
	for _, m := range self.Values {
		values.Fields[m.Name] = numberValue(m.Value)
	}
	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		"circuit":   stringValue(self.Circuit),
		"kind":      stringValue(self.Kind.String()),
		"response":  stringValue(self.Response.String()),
		"values":    {Kind: &structpb.Value_StructValue{StructValue: values}},
		"formatted": stringValue(ezo.FormatMeasurements(self.Values)),
		"saturated": boolValue(self.Saturated),
	}}
	if !self.Time.IsZero() {
		st.Fields["time"] = numberValue(float64(self.Time.UnixNano() / int64(time.Millisecond)))
	}
	if self.Err != nil {
		st.Fields["error"] = stringValue(self.Err.Error())
	}
	return st
}

// Encode serializes reading as protobuf Struct, binary or JSON.
func Encode(format string, r *Reading) ([]byte, error) {
	st := r.Struct()
	switch format {
	case "", tele_config.FormatProto:
		b, err := proto.Marshal(st)
		return b, errors.Annotate(err, "tele encode proto")
	case tele_config.FormatJSON:
		m := jsonpb.Marshaler{}
		s, err := m.MarshalToString(st)
		return []byte(s), errors.Annotate(err, "tele encode json")
	}
	return nil, errors.NotSupportedf("tele format=%s", format)
}

func Decode(format string, b []byte) (*structpb.Struct, error) {
	st := &structpb.Struct{}
	var err error
	switch format {
	case "", tele_config.FormatProto:
		err = proto.Unmarshal(b, st)
	case tele_config.FormatJSON:
		err = jsonpb.UnmarshalString(string(b), st)
	default:
		err = errors.NotSupportedf("tele format=%s", format)
	}
	return st, errors.Annotate(err, "tele decode")
}
