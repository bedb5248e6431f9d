package tele

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/atlas/helpers"
	"github.com/temoto/atlas/log2"
	tele_config "github.com/temoto/atlas/tele/config"
)

type transportMqtt struct {
	log    *log2.Log
	m      mqtt.Client
	mopt   *mqtt.ClientOptions
	stopCh chan struct{}
	broker string

	networkTimeout time.Duration
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willTopic string, willPayload []byte) error {
	self.log = log
	self.stopCh = make(chan struct{})
	self.broker = teleConfig.MqttBroker
	mqttLog := self.log.Clone(log2.LDebug).WithPrefix("tele.mqtt ")
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	clientId := teleConfig.ClientId
	credFun := func() (string, string) {
		username := teleConfig.MqttUsername
		if username == "" {
			username = clientId
		}
		return username, teleConfig.MqttPassword
	}

	self.networkTimeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, defaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	connectTimeout := self.networkTimeout * 3
	keepaliveTimeout := helpers.IntSecondDefault(teleConfig.KeepaliveSec, self.networkTimeout/2)

	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Errorf("unexpected mqtt message: %v", msg)
	}
	// retained state is overwritten by will on every disconnect
	onConnect := func(c mqtt.Client) {
		t := c.Publish(willTopic, 1, true, []byte(StateOnline))
		go func() { _ = self.tokenWait(t, "publish "+willTopic) }()
	}

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(willTopic, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(clientId).
		SetConnectTimeout(connectTimeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(defaultHandler).
		SetKeepAlive(keepaliveTimeout).
		SetMaxReconnectInterval(connectTimeout).
		SetOnConnectHandler(onConnect).
		SetOrderMatters(false).
		SetPingTimeout(self.networkTimeout).
		SetWriteTimeout(self.networkTimeout)
	self.m = mqtt.NewClient(self.mopt)

	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	close(self.stopCh)
	if self.m.IsConnected() {
		self.m.Disconnect(uint(self.mopt.PingTimeout / time.Millisecond))
	}
}

func (self *transportMqtt) Publish(topic string, retained bool, payload []byte) bool {
	if !self.m.IsConnected() {
		return false
	}
	t := self.m.Publish(topic, 1, retained, payload)
	err := self.tokenWait(t, "publish "+topic)
	return err == nil
}

func (self *transportMqtt) online() {
	if self.m.IsConnected() {
		return
	}

	for self.isRunning() {
		self.log.Debugf("tele connect before")
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			self.log.Infof("tele connected broker=%s", self.broker)
			break // success path
		}
		self.log.Debugf("tele connect after")
		time.Sleep(1 * time.Second)
	}
}

func (self *transportMqtt) isRunning() bool {
	select {
	case <-self.stopCh:
		self.m.Disconnect(uint(self.mopt.PingTimeout / time.Millisecond))
		return false
	default:
		return true
	}
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.networkTimeout) {
		err := errors.Timeoutf("%s", tag)
		self.log.Errorf("tele: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("tele: MQTT %s", err.Error())
		return err
	}
	return nil
}
