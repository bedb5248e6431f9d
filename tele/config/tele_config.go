// Separate package is workaround to import cycles.
package tele_config

const (
	FormatProto = "proto"
	FormatJSON  = "json"
)

type Config struct { //nolint:maligned
	Enabled           bool   `hcl:"enable" yaml:"enable"`
	LogDebug          bool   `hcl:"log_debug" yaml:"log_debug"`
	ClientId          string `hcl:"client_id" yaml:"client_id"`
	KeepaliveSec      int    `hcl:"keepalive_sec" yaml:"keepalive_sec"`
	MqttBroker        string `hcl:"mqtt_broker" yaml:"mqtt_broker"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug" yaml:"mqtt_log_debug"`
	MqttUsername      string `hcl:"username" yaml:"username"`
	MqttPassword      string `hcl:"password" yaml:"password"` // secret
	NetworkTimeoutSec int    `hcl:"network_timeout_sec" yaml:"network_timeout_sec"`
	TopicPrefix       string `hcl:"topic_prefix" yaml:"topic_prefix"`
	Format            string `hcl:"format" yaml:"format"`
	// empty disables on-disk spool, readings are published directly
	PersistPath string `hcl:"persist_path" yaml:"persist_path"`

	BuildVersion string `hcl:"-" yaml:"-"`
}
