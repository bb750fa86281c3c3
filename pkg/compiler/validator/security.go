package validator

import (
	"fmt"
	"net"
	"net/url"
)

// BlockedNetworks contains IP ranges media sources must not resolve to
var BlockedNetworks = []string{
	"0.0.0.0/8",      // "This" network
	"127.0.0.0/8",    // Localhost
	"10.0.0.0/8",     // Private network
	"172.16.0.0/12",  // Private network
	"192.168.0.0/16", // Private network
	"169.254.0.0/16", // Link-local (cloud metadata services)
	"::1/128",        // IPv6 localhost
	"fc00::/7",       // IPv6 unique local
	"fe80::/10",      // IPv6 link-local
}

var blockedNets = mustParseNetworks(BlockedNetworks)

func mustParseNetworks(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid blocked network %q: %v", cidr, err))
		}
		nets = append(nets, network)
	}
	return nets
}

// IsBlockedIP checks if an IP address is in a blocked network range
func IsBlockedIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return blockReason(ip) != ""
}

// ValidateHTTPURI validates an HTTP/HTTPS URI for SSRF prevention
func ValidateHTTPURI(uri string) error {
	return ValidateHTTPURIWith(uri, net.LookupIP)
}

// ValidateHTTPURIWith is ValidateHTTPURI with a custom resolver
func ValidateHTTPURIWith(uri string, lookup func(string) ([]net.IP, error)) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("expected http or https scheme")
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("missing host")
	}

	var ips []net.IP
	if ip := net.ParseIP(hostname); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = lookup(hostname)
		if err != nil {
			return fmt.Errorf("failed to resolve hostname: %w", err)
		}
	}

	for _, ip := range ips {
		if reason := blockReason(ip); reason != "" {
			return fmt.Errorf("access denied: %s resolves to %s (%s)", hostname, ip, reason)
		}
	}

	return nil
}

// blockReason returns why ip is blocked, or "" when it is allowed
func blockReason(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "localhost access not allowed"
	case ip.IsPrivate():
		return "private network access not allowed"
	case ip.IsLinkLocalUnicast():
		return "link-local access not allowed"
	}

	for _, network := range blockedNets {
		if network.Contains(ip) {
			return "blocked network"
		}
	}
	return ""
}
