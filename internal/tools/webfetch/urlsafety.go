package webfetch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
)

// URLSafetyError represents a URL that was blocked for safety reasons
type URLSafetyError struct {
	URL    string
	Reason string
}

func (e *URLSafetyError) Error() string {
	return fmt.Sprintf("URL blocked: %s", e.Reason)
}

// ValidateURLSafety rejects URLs the fetcher must not reach: non-http(s)
// schemes, cloud metadata hosts, and hosts resolving to loopback, private,
// link-local, multicast or unspecified addresses. Resolving first catches
// encoded forms such as 2130706433 or 0x7f000001.
func ValidateURLSafety(ctx context.Context, urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("scheme '%s' not allowed, only http/https", parsed.Scheme)}
	}

	host := parsed.Hostname()
	if host == "" {
		return &URLSafetyError{URL: urlStr, Reason: "empty hostname"}
	}

	if isCloudMetadataHost(host) {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("cloud metadata hostname blocked: %s", host)}
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("DNS resolution failed: %v", err)}
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}

	for _, ip := range ips {
		if reason := blockedIPReason(ip); reason != "" {
			L_debug("webfetch: blocked IP", "url", urlStr, "host", host, "ip", ip.String(), "reason", reason)
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("%s (%s resolves to %s)", reason, host, ip.String())}
		}
	}
	return nil
}

// blockedIPReason returns why ip is blocked, or "". The net.IP predicates
// unwrap IPv4-mapped IPv6 addresses themselves.
func blockedIPReason(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback address blocked"
	case ip.IsPrivate():
		return "private network address blocked"
	case ip.IsLinkLocalUnicast():
		return "link-local address blocked"
	case ip.IsLinkLocalMulticast(), ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return "multicast address blocked"
	case ip.IsUnspecified():
		return "unspecified address blocked"
	}
	return ""
}

var metadataHosts = []string{
	"metadata.google.internal",
	"metadata.goog",
	"kubernetes.default.svc",
	"kubernetes.default",
	"metadata",
}

func isCloudMetadataHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, mh := range metadataHosts {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return true
		}
	}
	return false
}
