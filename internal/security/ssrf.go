package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// privateIPRanges contains CIDR ranges for private/internal networks
var privateIPRanges = []string{
	"127.0.0.0/8",    // IPv4 loopback
	"10.0.0.0/8",     // RFC1918 private
	"172.16.0.0/12",  // RFC1918 private
	"192.168.0.0/16", // RFC1918 private
	"169.254.0.0/16", // Link-local
	"::1/128",        // IPv6 loopback
	"fc00::/7",       // IPv6 unique local
	"fe80::/10",      // IPv6 link-local
	"0.0.0.0/8",      // "This" network
}

// blockedHostnames contains hostnames that should never be scraped
var blockedHostnames = []string{
	"localhost",
	"localhost.localdomain",
	"metadata.google.internal",
	"169.254.169.254", // AWS/GCP/Azure metadata endpoint
	"kubernetes.default.svc",
	"kubernetes.default",
}

var parsedCIDRs []*net.IPNet

func init() {
	for _, cidr := range privateIPRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			parsedCIDRs = append(parsedCIDRs, network)
		}
	}
}

// IsPrivateIP checks if an IP address is in a private/internal range
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	for _, network := range parsedCIDRs {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// IsBlockedHostname checks if a hostname is in the blocklist
func IsBlockedHostname(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	for _, blocked := range blockedHostnames {
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	return false
}

// ValidateURLForSSRF rejects URLs that point at private or internal
// resources, including hostnames resolving to private IPs.
func ValidateURLForSSRF(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("only http and https schemes are allowed")
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	if IsBlockedHostname(hostname) {
		return fmt.Errorf("access to internal hostname '%s' is not allowed", hostname)
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if IsPrivateIP(ip) {
			return fmt.Errorf("access to private IP address '%s' is not allowed", hostname)
		}
		return nil
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// DNS failure is not a block; the fetch itself will fail if the
		// host is unreachable
		return nil
	}
	for _, resolvedIP := range ips {
		if IsPrivateIP(resolvedIP) {
			return fmt.Errorf("hostname '%s' resolves to private IP address '%s'", hostname, resolvedIP.String())
		}
	}

	return nil
}
