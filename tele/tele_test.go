package tele

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/atlas/hardware/ezo"
	"github.com/temoto/atlas/log2"
	tele_config "github.com/temoto/atlas/tele/config"
	"github.com/temoto/spq"
)

type mockMessage struct {
	topic    string
	retained bool
	payload  []byte
}

type transportMock struct {
	t       testing.TB
	mu      sync.Mutex
	fail    int
	initErr error
	out     chan mockMessage
	closed  bool
}

func newTransportMock(t testing.TB, fail int) *transportMock {
	return &transportMock{t: t, fail: fail, out: make(chan mockMessage, 16)}
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willTopic string, willPayload []byte) error {
	self.t.Logf("mock init will topic=%s payload=%s", willTopic, willPayload)
	return self.initErr
}

func (self *transportMock) Publish(topic string, retained bool, payload []byte) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.fail > 0 {
		self.fail--
		self.t.Logf("mock network fail topic=%s", topic)
		return false
	}
	self.out <- mockMessage{topic: topic, retained: retained, payload: payload}
	return true
}

func (self *transportMock) Close() {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
}

func (self *transportMock) wait(t testing.TB, topic string) mockMessage {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-self.out:
			if m.topic == topic {
				return m
			}
			t.Logf("mock skip topic=%s", m.topic)
		case <-deadline:
			t.Fatalf("timeout waiting topic=%s", topic)
			return mockMessage{}
		}
	}
}

func testReading() *Reading {
	return &Reading{
		Circuit:  "tank-ph",
		Kind:     ezo.KindPH,
		Response: ezo.ResponseOK,
		Values:   []ezo.Measurement{{Name: "ph", Value: 7.25, Text: " 7.25"}},
		Time:     time.Unix(1600000000, 0),
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		format string
		err    error
	}
	cases := []Case{
		{"proto", tele_config.FormatProto, nil},
		{"default", "", nil},
		{"json", tele_config.FormatJSON, nil},
		{"json-error", tele_config.FormatJSON, errors.Annotate(ezo.ErrCommsFailed, "short reply")},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			r := testReading()
			r.Err = c.err
			b, err := Encode(c.format, r)
			require.NoError(t, err)
			st, err := Decode(c.format, b)
			require.NoError(t, err)
			assert.Equal(t, "tank-ph", st.Fields["circuit"].GetStringValue())
			assert.Equal(t, "PH", st.Fields["kind"].GetStringValue())
			assert.Equal(t, "OK", st.Fields["response"].GetStringValue())
			assert.Equal(t, "ph= 7.25", st.Fields["formatted"].GetStringValue())
			assert.Equal(t, 7.25, st.Fields["values"].GetStructValue().Fields["ph"].GetNumberValue())
			assert.Equal(t, float64(1600000000000), st.Fields["time"].GetNumberValue())
			if c.err != nil {
				assert.Contains(t, st.Fields["error"].GetStringValue(), "short reply")
			} else {
				_, ok := st.Fields["error"]
				assert.False(t, ok)
			}
		})
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	t.Parallel()
	_, err := Encode("xml", testReading())
	require.Error(t, err)
	assert.True(t, errors.IsNotSupported(errors.Cause(err)))
}

func TestPackItem(t *testing.T) {
	t.Parallel()
	b, err := packItem("a/b/reading", true, []byte{0, 1, 2})
	require.NoError(t, err)
	topic, retained, payload, err := unpackItem(b)
	require.NoError(t, err)
	assert.Equal(t, "a/b/reading", topic)
	assert.True(t, retained)
	assert.Equal(t, []byte{0, 1, 2}, payload)

	_, _, _, err = unpackItem(b[:3])
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	t.Parallel()
	tele := &Tele{}
	require.NoError(t, tele.Init(context.Background(), log2.NewTest(t, log2.LDebug), tele_config.Config{}))
	assert.False(t, tele.Enabled())
	assert.NoError(t, tele.Publish(testReading()))
	tele.Close()
}

func TestPublishDirect(t *testing.T) {
	t.Parallel()
	mock := newTransportMock(t, 0)
	tele := &Tele{transport: mock}
	conf := tele_config.Config{Enabled: true, MqttBroker: "mock", TopicPrefix: "farm"}
	require.NoError(t, tele.Init(context.Background(), log2.NewTest(t, log2.LDebug), conf))

	state := mock.wait(t, "farm/state")
	assert.True(t, state.retained)
	assert.Equal(t, StateOnline, string(state.payload))

	require.NoError(t, tele.Publish(testReading()))
	m := mock.wait(t, "farm/tank-ph/reading")
	assert.False(t, m.retained)
	st, err := Decode("", m.payload)
	require.NoError(t, err)
	assert.Equal(t, "tank-ph", st.Fields["circuit"].GetStringValue())

	mock.mu.Lock()
	mock.fail = 1
	mock.mu.Unlock()
	assert.Error(t, tele.Publish(testReading()))
	assert.Equal(t, Stat{Published: 2, Failed: 1}, tele.Stat())

	tele.Close()
	assert.True(t, mock.closed)
}

func TestPublishSpool(t *testing.T) {
	t.Parallel()
	mock := newTransportMock(t, 2)
	tele := &Tele{transport: mock, retryMin: 5 * time.Millisecond, retryMax: 20 * time.Millisecond}
	conf := tele_config.Config{
		Enabled:     true,
		MqttBroker:  "mock",
		Format:      tele_config.FormatJSON,
		PersistPath: t.TempDir(),
	}
	require.NoError(t, tele.Init(context.Background(), log2.NewTest(t, log2.LDebug), conf))
	require.NoError(t, tele.Publish(testReading()))

	m := mock.wait(t, "atlas/tank-ph/reading")
	st, err := Decode(tele_config.FormatJSON, m.payload)
	require.NoError(t, err)
	assert.Equal(t, 7.25, st.Fields["values"].GetStructValue().Fields["ph"].GetNumberValue())
	tele.Close()
	assert.Equal(t, uint32(2), tele.Stat().Failed)
}

func TestInitBrokerUnreachable(t *testing.T) {
	t.Parallel()
	mock := newTransportMock(t, 1)
	tele := &Tele{transport: mock}
	conf := tele_config.Config{Enabled: true, MqttBroker: "mock"}
	require.NoError(t, tele.Init(context.Background(), log2.NewTest(t, log2.LDebug), conf))
	assert.Equal(t, Stat{Failed: 1}, tele.Stat())

	require.NoError(t, tele.Publish(testReading()))
	mock.wait(t, "atlas/tank-ph/reading")
	tele.Close()
}

func TestInitTransportErrorReleasesSpool(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	mock := newTransportMock(t, 0)
	mock.initErr = errors.New("bad broker url")
	tele := &Tele{transport: mock}
	conf := tele_config.Config{Enabled: true, MqttBroker: "mock", PersistPath: dir}
	err := tele.Init(context.Background(), log2.NewTest(t, log2.LDebug), conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad broker url")
	assert.False(t, tele.Enabled())
	tele.Close()

	q, err := spq.Open(dir)
	require.NoError(t, err)
	require.NoError(t, q.Close())
}
