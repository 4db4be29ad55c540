package validator

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const errLocalhostNotAllowed = "localhost addresses are not allowed"

// HostPolicy decides which hosts repository URLs may point at.
type HostPolicy struct {
	allowInternalIPs bool
	allowLocalhost   bool
	resolve          func(host string) ([]net.IP, error)
}

// HostPolicyOption configures a HostPolicy.
type HostPolicyOption func(*HostPolicy)

// WithAllowInternalIPs permits private and link-local addresses.
func WithAllowInternalIPs(allow bool) HostPolicyOption {
	return func(p *HostPolicy) { p.allowInternalIPs = allow }
}

// WithAllowLocalhost permits loopback addresses.
func WithAllowLocalhost(allow bool) HostPolicyOption {
	return func(p *HostPolicy) { p.allowLocalhost = allow }
}

// WithResolver sets the DNS lookup used for host names. Nil disables
// resolution so only literal IPs and localhost names are checked.
func WithResolver(fn func(host string) ([]net.IP, error)) HostPolicyOption {
	return func(p *HostPolicy) { p.resolve = fn }
}

// NewHostPolicy creates a policy that blocks loopback and internal hosts.
func NewHostPolicy(opts ...HostPolicyOption) *HostPolicy {
	p := &HostPolicy{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check returns an error when host is not allowed.
func (p *HostPolicy) Check(host string) error {
	host = strings.Trim(strings.ToLower(host), "[]")
	if host == "" {
		return errors.New("host is required")
	}
	if !p.allowLocalhost && isLocalhostHostname(host) {
		return errors.New(errLocalhostNotAllowed)
	}

	if ip := net.ParseIP(host); ip != nil {
		return p.checkIP(ip)
	}
	if p.resolve == nil {
		return nil
	}
	ips, err := p.resolve(host)
	if err != nil {
		return fmt.Errorf("cannot resolve host %s", host)
	}
	for _, ip := range ips {
		if err := p.checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func (p *HostPolicy) checkIP(ip net.IP) error {
	if !p.allowLocalhost && ip.IsLoopback() {
		return errors.New(errLocalhostNotAllowed)
	}
	if !p.allowInternalIPs && isInternalIP(ip) {
		return errors.New("internal IP addresses are not allowed")
	}
	return nil
}

func isLocalhostHostname(hostname string) bool {
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}

func isInternalIP(ip net.IP) bool {
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	return ip.IsUnspecified() || ip.IsMulticast()
}
