package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func (c *Config) BindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.ConfigPath, "config", c.ConfigPath, "Path to config file")

	// Listeners
	cmd.Flags().IntSliceVar(&c.Honeypot.Ports, "ports", c.Honeypot.Ports, "TCP ports to listen on (comma separated)")
	cmd.Flags().StringVar(&c.Honeypot.BindAddress, "bind", c.Honeypot.BindAddress, "Address to bind listeners to")
	cmd.Flags().StringVar(&c.Honeypot.Banner, "banner", c.Honeypot.Banner, "Greeting sent on every connection (CRLF appended if missing)")
	cmd.Flags().IntVar(&c.Honeypot.ReadBufferSize, "read-buffer", c.Honeypot.ReadBufferSize, "Maximum bytes captured per connection")
	cmd.Flags().IntVar(&c.Honeypot.IdleTimeoutSec, "idle-timeout", c.Honeypot.IdleTimeoutSec, "Seconds to wait for client data (0 waits forever)")
	cmd.Flags().StringVar(&c.Honeypot.CounterScope, "counter-scope", c.Honeypot.CounterScope, "Connection counter scope (listener|global)")
	cmd.Flags().BoolVar(&c.Honeypot.ReusePort, "reuse-port", c.Honeypot.ReusePort, "Set SO_REUSEPORT on listening sockets")
	cmd.Flags().StringSliceVar(&c.Honeypot.QuietNetworks, "quiet-networks", c.Honeypot.QuietNetworks, "IPs/CIDRs served normally but never recorded")

	// Interaction log
	cmd.Flags().StringVar(&c.Sink.Path, "log-file", c.Sink.Path, "Interaction log file (JSON lines)")
	cmd.Flags().IntVar(&c.Sink.QueueSize, "queue-size", c.Sink.QueueSize, "Pending interaction records before new ones are dropped")

	// Operational logging
	cmd.Flags().BoolVarP(&c.System.Logging.Instaflush, "instaflush", "i", c.System.Logging.Instaflush, "Flush logs immediately")
	cmd.Flags().BoolVar(&c.System.Logging.Syslog, "syslog", c.System.Logging.Syslog, "Enable syslog output")
	cmd.Flags().StringVar(&c.System.Logging.ErrorFile, "error-file", c.System.Logging.ErrorFile, "Also write errors to this file")

	// Web server
	cmd.Flags().IntVar(&c.System.WebServer.Port, "web-port", c.System.WebServer.Port, "Port for the operator web API (0 disables)")
	cmd.Flags().StringVar(&c.System.WebServer.BindAddress, "web-bind", c.System.WebServer.BindAddress, "Address for the operator web API")
}

// LoadFile reads ConfigPath into c, then re-applies every flag that was set
// explicitly on the command line so it wins over the file.
func (c *Config) LoadFile(cmd *cobra.Command) error {
	type override struct {
		flag  *pflag.Flag
		value string
		slice []string
	}
	var explicit []override
	cmd.Flags().Visit(func(f *pflag.Flag) {
		o := override{flag: f, value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			o.slice = sv.GetSlice()
		}
		explicit = append(explicit, o)
	})

	if err := c.LoadFromFile(c.ConfigPath); err != nil {
		return err
	}

	for _, o := range explicit {
		var err error
		if sv, ok := o.flag.Value.(pflag.SliceValue); ok {
			err = sv.Replace(o.slice)
		} else {
			err = o.flag.Value.Set(o.value)
		}
		if err != nil {
			return fmt.Errorf("re-apply --%s: %w", o.flag.Name, err)
		}
	}
	return nil
}

// LoadFileIfExists is LoadFile for a ConfigPath that may not exist yet. It
// reports whether a file was loaded.
func (c *Config) LoadFileIfExists(cmd *cobra.Command) (bool, error) {
	if c.ConfigPath == "" {
		return false, nil
	}
	if _, err := os.Stat(c.ConfigPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := c.LoadFile(cmd); err != nil {
		return false, err
	}
	return true, nil
}
