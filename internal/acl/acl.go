// Package acl implements client-address access control for the
// resolver's UDP listener: CIDR allow/deny lists evaluated deny-first,
// so an explicit block always wins over a broader allow.
package acl

import (
	"net"
	"sync"
)

// List holds the allow and deny networks for one listener. Zero value
// is not usable; construct with New.
type List struct {
	mu           sync.RWMutex
	allowedNets  []*net.IPNet
	deniedNets   []*net.IPNet
	defaultAllow bool
}

// New builds a List with the given default policy: if defaultAllow is
// true, a client not matched by either list is allowed; if false, it is
// denied.
func New(defaultAllow bool) *List {
	return &List{defaultAllow: defaultAllow}
}

func parseNet(cidr string) (*net.IPNet, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err == nil {
		return ipnet, nil
	}
	ip := net.ParseIP(cidr)
	if ip == nil {
		return nil, err
	}
	if ip.To4() != nil {
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}

// Allow adds a network (CIDR or bare IP) to the allow list.
func (l *List) Allow(cidr string) error {
	ipnet, err := parseNet(cidr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowedNets = append(l.allowedNets, ipnet)
	return nil
}

// Deny adds a network (CIDR or bare IP) to the deny list.
func (l *List) Deny(cidr string) error {
	ipnet, err := parseNet(cidr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deniedNets = append(l.deniedNets, ipnet)
	return nil
}

// IsAllowed evaluates ip against the deny list, then the allow list,
// then falls back to the default policy. Deny always wins over allow
// for an address matched by both.
func (l *List) IsAllowed(ip net.IP) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, denied := range l.deniedNets {
		if denied.Contains(ip) {
			return false
		}
	}
	for _, allowed := range l.allowedNets {
		if allowed.Contains(ip) {
			return true
		}
	}
	return l.defaultAllow
}

// IsAllowedString parses ipStr before evaluating it; an unparseable
// address is always denied.
func (l *List) IsAllowedString(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return l.IsAllowed(ip)
}
