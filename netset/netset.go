package netset

import (
	"fmt"
	"net"
	"strings"

	"github.com/yl2chen/cidranger"
)

// Set answers whether an address falls inside any of a list of networks.
// A nil *Set contains nothing.
type Set struct {
	ranger cidranger.Ranger
	size   int
}

// Parse accepts bare IPs (as /32 or /128) and CIDRs. Blank entries are skipped.
func Parse(entries []string) (*Set, error) {
	s := &Set{ranger: cidranger.NewPCTrieRanger()}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		var ipNet *net.IPNet
		if strings.Contains(e, "/") {
			_, n, err := net.ParseCIDR(e)
			if err != nil {
				return nil, fmt.Errorf("network %q: %w", e, err)
			}
			ipNet = n
		} else {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("network %q: not an IP or CIDR", e)
			}
			if ip4 := ip.To4(); ip4 != nil {
				ipNet = &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}
			} else {
				ipNet = &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
			}
		}

		if err := s.ranger.Insert(cidranger.NewBasicRangerEntry(*ipNet)); err != nil {
			return nil, fmt.Errorf("network %q: %w", e, err)
		}
		s.size++
	}
	return s, nil
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

func (s *Set) Contains(ip net.IP) bool {
	if s == nil || s.size == 0 || ip == nil {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	ok, err := s.ranger.Contains(ip)
	return err == nil && ok
}

// ContainsString is Contains for a textual address; unparsable input is not contained.
func (s *Set) ContainsString(addr string) bool {
	return s.Contains(net.ParseIP(addr))
}
