package config

import (
	"time"

	"github.com/daniellavrushin/lure/log"
)

const (
	DefaultBanner     = "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5\r\n"
	DefaultSinkPath   = "/var/log/honeypot.log"
	DefaultReadBuffer = 1024
)

var DefaultPorts = []int{22, 23, 80, 443, 3306, 5432}

type Config struct {
	ConfigPath string `json:"-" bson:"-"`

	Honeypot HoneypotConfig `json:"honeypot" bson:"honeypot"`
	Sink     SinkConfig     `json:"sink" bson:"sink"`
	System   SystemConfig   `json:"system" bson:"system"`
}

// NewConfig returns the defaults. Slices are copied so instances never share
// backing arrays.
func NewConfig() Config {
	return Config{
		Honeypot: HoneypotConfig{
			BindAddress:    "0.0.0.0",
			Ports:          append([]int(nil), DefaultPorts...),
			Banner:         DefaultBanner,
			ReadBufferSize: DefaultReadBuffer,
			IdleTimeoutSec: 30,
			CounterScope:   CounterScopeListener,
			ReusePort:      false,
			QuietNetworks:  []string{},
		},
		Sink: SinkConfig{
			Path:      DefaultSinkPath,
			QueueSize: 1024,
		},
		System: SystemConfig{
			Logging: Logging{
				Level:      log.LevelInfo,
				Instaflush: true,
				Syslog:     false,
			},
			WebServer: WebServerConfig{
				Port:        0,
				BindAddress: "127.0.0.1",
			},
		},
	}
}

func (h *HoneypotConfig) IdleTimeout() time.Duration {
	return time.Duration(h.IdleTimeoutSec) * time.Second
}
