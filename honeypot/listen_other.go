//go:build !linux

package honeypot

import (
	"syscall"

	"github.com/daniellavrushin/lure/log"
)

func listenControl(reusePort bool) func(network, address string, c syscall.RawConn) error {
	if reusePort {
		log.Warnf("SO_REUSEPORT is only supported on linux, ignoring --reuse-port")
	}
	return nil
}
