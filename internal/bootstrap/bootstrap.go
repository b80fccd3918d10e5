// Package bootstrap resolves a DoH endpoint's hostname to an IP address over
// raw UDP/53 at startup (C2), breaking the circular dependency that exists
// when this proxy is the only resolver configured on the host.
//
// The raw A-record exchange is built on github.com/miekg/dns's Client
// rather than a hand-rolled socket read/write loop.
package bootstrap

import (
	"errors"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/miekg/dns"
)

const queryTimeout = 5 * time.Second

// Result carries the effective URL to dial and the original hostname to
// present as the HTTP Host header. The resolver sets only the Host header
// from it; the TLS handshake (SNI and certificate check) uses the host in
// URL.
type Result struct {
	// URL is what to connect to: either the caller's original URL
	// unchanged, or a copy with the host replaced by a bootstrapped IP.
	URL string
	// HostOverride is the original hostname when URL's host was rewritten
	// to an IP literal; empty when no rewrite happened.
	HostOverride string
}

// Resolve never returns an error: on any failure (timeout, socket error,
// malformed response, invalid URL) it fails open and returns the original
// URL unchanged, logging a warning via logger if one is supplied.
func Resolve(logger *slog.Logger, dohURL, bootstrapServerIP string) Result {
	u, err := url.Parse(dohURL)
	if err != nil {
		warn(logger, "bootstrap: invalid DoH URL, using as-is", "url", dohURL, "err", err)
		return Result{URL: dohURL}
	}

	host := u.Hostname()
	if net.ParseIP(host) != nil {
		// Already an IP literal: fixed point, nothing to resolve.
		return Result{URL: dohURL}
	}

	ip, err := resolveA(host, bootstrapServerIP)
	if err != nil {
		warn(logger, "bootstrap: resolution failed, using original URL", "host", host, "err", err)
		return Result{URL: dohURL}
	}

	rewritten := *u
	if port := u.Port(); port != "" {
		rewritten.Host = net.JoinHostPort(ip, port)
	} else {
		rewritten.Host = ip
	}

	return Result{URL: rewritten.String(), HostOverride: host}
}

// resolveA sends a single A-record query for host to bootstrapServerIP:53
// over UDP and returns the first address in the response.
func resolveA(host, bootstrapServerIP string) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	c := &dns.Client{
		Net:     "udp",
		Timeout: queryTimeout,
	}

	in, _, err := c.Exchange(m, net.JoinHostPort(bootstrapServerIP, "53"))
	if err != nil {
		return "", err
	}

	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", errNoARecord
}

var errNoARecord = errors.New("bootstrap: no A record in response")

func warn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
