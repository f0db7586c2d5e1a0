/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient assembles the http.Client used by the gateway to talk to upstream services.
// The client never retries and never follows redirects, so every upstream response is relayed as is.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/netutil"
	"github.com/acronis/task-gateway/tracing"
)

// CloneHTTPRequest copies the request so its headers can be changed without touching the caller's.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := *req
	r.Header = CloneHTTPHeader(req.Header)
	return &r
}

// CloneHTTPHeader is http.Header.Clone that never returns nil.
func CloneHTTPHeader(in http.Header) http.Header {
	if in == nil {
		return http.Header{}
	}
	return in.Clone()
}

// Opts provides options for New function.
type Opts struct {
	// RequestType is a default type of request (e.g. name of the upstream service).
	// It may be overridden per request by NewContextWithRequestType.
	RequestType string

	// Delegate is the next RoundTripper in the chain.
	// Transport built from Config.Transport is used by default.
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector. Metrics are not collected if it's nil.
	Collector MetricsCollector

	// TracerProvider adds a client span to every upstream call and propagates the trace context.
	// Calls are not traced if it's nil.
	TracerProvider trace.TracerProvider
}

// New builds an upstream http.Client: request id, metrics, logging and tracing round trippers over a pooled transport.
func New(cfg *Config, opts Opts) *http.Client {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = newTransport(cfg.Transport)
	}

	if opts.TracerProvider != nil {
		delegate = tracing.NewTransport(delegate, opts.TracerProvider)
	}

	if cfg.Log.Enabled {
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, LoggingRoundTripperOpts{
			LoggerProvider:       opts.LoggerProvider,
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
		})
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripper(delegate, opts.RequestType, opts.Collector)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return &http.Client{
		Transport: delegate,
		Timeout:   time.Duration(cfg.Timeout),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func newTransport(cfg TransportConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: time.Duration(cfg.DialTimeout), KeepAlive: 30 * time.Second}
	if len(cfg.DNSServers) != 0 {
		resolver := netutil.NewCustomDNSResolver(cfg.DNSServers, time.Duration(cfg.DialTimeout))
		dialer.Resolver = &resolver
	}
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = time.Duration(cfg.IdleConnTimeout)
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	return transport
}
