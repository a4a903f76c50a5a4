package config

import "github.com/daniellavrushin/lure/log"

const (
	CounterScopeListener = "listener"
	CounterScopeGlobal   = "global"
)

type HoneypotConfig struct {
	BindAddress    string   `json:"bind_address" bson:"bind_address"`
	Ports          []int    `json:"ports" bson:"ports"`
	Banner         string   `json:"banner" bson:"banner"`
	ReadBufferSize int      `json:"read_buffer_size" bson:"read_buffer_size"`
	IdleTimeoutSec int      `json:"idle_timeout_sec" bson:"idle_timeout_sec"` // 0 waits forever
	CounterScope   string   `json:"counter_scope" bson:"counter_scope"`       // "listener" or "global"
	ReusePort      bool     `json:"reuse_port" bson:"reuse_port"`
	QuietNetworks  []string `json:"quiet_networks" bson:"quiet_networks"` // served but never recorded
}

type SinkConfig struct {
	Path      string `json:"path" bson:"path"`
	QueueSize int    `json:"queue_size" bson:"queue_size"`
}

type SystemConfig struct {
	Logging   Logging         `json:"logging" bson:"logging"`
	WebServer WebServerConfig `json:"web_server" bson:"web_server"`
}

type Logging struct {
	Level      log.Level `json:"level" bson:"level"`
	Instaflush bool      `json:"instaflush" bson:"instaflush"`
	Syslog     bool      `json:"syslog" bson:"syslog"`
	ErrorFile  string    `json:"error_file" bson:"error_file"`
}

type WebServerConfig struct {
	Port        int    `json:"port" bson:"port"`
	BindAddress string `json:"bind_address" bson:"bind_address"`
	IsEnabled   bool   `json:"-" bson:"-"`
}
