// Package resolver implements the resolver (C4): it turns a wire-format DNS
// query into a wire-format answer by POSTing it to a DoH upstream selected
// from the upstream manager, per RFC 8484's application/dns-message
// exchange.
//
// The shared, connection-pooling *http.Client over an HTTP/2 transport is
// built once and reused across every worker, matching a one-pool-per-process
// convention for outbound connections.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nullbind/dohgate/internal/cache"
	"github.com/nullbind/dohgate/internal/dnsutil"
	"github.com/nullbind/dohgate/internal/upstream"
	"golang.org/x/net/http2"
)

const (
	dnsMessageContentType = "application/dns-message"
	requestTimeout        = 5 * time.Second
	// noAnswerTTL is the cache TTL for a response with no answer records.
	noAnswerTTL = 60 * time.Second
)

// Sentinel errors wrap the upstream.ErrNoUpstreamAvailable case and the two
// ways an exchange with a live endpoint can still fail, so callers can
// distinguish "nothing to try" from "tried and it broke".
var (
	ErrNoUpstreamAvailable = upstream.ErrNoUpstreamAvailable
	ErrUpstream            = errors.New("resolver: upstream request failed")
	ErrUpstreamDecode      = errors.New("resolver: upstream response malformed")
)

// Resolver resolves wire-format DNS queries against a pool of DoH upstreams.
type Resolver struct {
	client   *http.Client
	upstream *upstream.Manager
}

// NewHTTPClient builds the shared HTTP/2 client every Resolver should use.
// One client (and its pooled connections) is meant to be shared across all
// workers rather than built per request.
func NewHTTPClient() (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("resolver: configuring http2 transport: %w", err)
	}
	return &http.Client{Transport: transport}, nil
}

// New builds a Resolver over an existing HTTP client and upstream manager.
func New(client *http.Client, mgr *upstream.Manager) *Resolver {
	return &Resolver{client: client, upstream: mgr}
}

// Resolve selects an upstream endpoint, exchanges query (a raw wire-format
// DNS message) over DoH, and returns the raw wire-format response along
// with the TTL to cache it for. The endpoint's health stats are updated on
// both success and failure.
func (r *Resolver) Resolve(ctx context.Context, query []byte) (response []byte, ttl time.Duration, err error) {
	ep, err := r.upstream.Select()
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	response, err = r.exchange(ctx, ep.URL, ep.HostHeader, query)
	elapsed := time.Since(start)
	if err != nil {
		r.upstream.RecordFailure(ep)
		return nil, 0, err
	}

	minTTL, hasAnswers := dnsutil.MinAnswerTTL(response)
	if !hasAnswers {
		ttl = noAnswerTTL
	} else {
		ttl = cache.ClampTTL(time.Duration(minTTL) * time.Second)
	}

	r.upstream.RecordSuccess(ep, elapsed)
	return response, ttl, nil
}

func (r *Resolver) exchange(ctx context.Context, url, hostHeader string, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", dnsMessageContentType)
	req.Header.Set("Accept", dnsMessageContentType)
	if hostHeader != "" {
		req.Host = hostHeader
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}
	if _, _, decErr := dnsutil.ExtractQuestion(body); decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamDecode, decErr)
	}
	return body, nil
}
