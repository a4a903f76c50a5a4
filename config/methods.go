package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/daniellavrushin/lure/log"
)

func (c *Config) SaveToFile(path string) error {
	if path == "" {
		log.Tracef("config path is not defined")
		return nil
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return log.Errorf("failed to marshal config: %v", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return log.Errorf("failed to create config file: %v", err)
	}
	defer file.Close()

	if _, err = file.Write(data); err != nil {
		return log.Errorf("failed to write config file: %v", err)
	}
	return nil
}

func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		log.Tracef("config path is not defined")
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return log.Errorf("failed to stat config file: %v", err)
	}
	if info.IsDir() {
		return log.Errorf("config path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return log.Errorf("failed to read config file: %v", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return log.Errorf("failed to parse config file: %v", err)
	}
	return nil
}

func (c *Config) ApplyLogLevel(level string) {
	c.System.Logging.Level = log.ParseLevel(level)
}

// Validate checks ranges and normalizes the banner to end in CRLF.
func (c *Config) Validate() error {
	h := &c.Honeypot

	if len(h.Ports) == 0 {
		return fmt.Errorf("at least one port must be configured")
	}
	seen := make(map[int]bool, len(h.Ports))
	for _, p := range h.Ports {
		if p < 0 || p > 65535 {
			return fmt.Errorf("port %d out of range 0-65535", p)
		}
		if seen[p] && p != 0 {
			return fmt.Errorf("port %d configured twice", p)
		}
		seen[p] = true
	}

	if h.BindAddress != "" && net.ParseIP(h.BindAddress) == nil {
		return fmt.Errorf("bind address %q is not an IP address", h.BindAddress)
	}

	if h.Banner == "" {
		return fmt.Errorf("banner must not be empty")
	}
	if !strings.HasSuffix(h.Banner, "\r\n") {
		h.Banner = strings.TrimRight(h.Banner, "\r\n") + "\r\n"
	}

	if h.ReadBufferSize < 1 || h.ReadBufferSize > 64*1024 {
		return fmt.Errorf("read buffer size must be between 1 and 65536")
	}
	if h.IdleTimeoutSec < 0 {
		return fmt.Errorf("idle timeout must not be negative")
	}

	switch h.CounterScope {
	case CounterScopeListener, CounterScopeGlobal:
	case "":
		h.CounterScope = CounterScopeListener
	default:
		return fmt.Errorf("counter scope must be %q or %q", CounterScopeListener, CounterScopeGlobal)
	}

	for _, n := range h.QuietNetworks {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if strings.Contains(n, "/") {
			if _, _, err := net.ParseCIDR(n); err != nil {
				return fmt.Errorf("quiet network %q: %w", n, err)
			}
		} else if net.ParseIP(n) == nil {
			return fmt.Errorf("quiet network %q is not an IP or CIDR", n)
		}
	}

	if c.Sink.Path == "" {
		return fmt.Errorf("sink path must not be empty")
	}
	if c.Sink.QueueSize < 1 {
		return fmt.Errorf("sink queue size must be at least 1")
	}

	ws := &c.System.WebServer
	if ws.Port < 0 || ws.Port > 65535 {
		return fmt.Errorf("web port must be between 0 and 65535")
	}
	ws.IsEnabled = ws.Port > 0

	return nil
}
