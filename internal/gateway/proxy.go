/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/acronis/task-gateway/httpclient"
	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/log"
)

// Hop-by-hop headers are meaningful for a single connection only and are not forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var canonicalHeaderRequestID = http.CanonicalHeaderKey(middleware.HeaderRequestID)

// UpstreamExchange is the request the gateway sends to a backend on behalf of the client.
type UpstreamExchange struct {
	Target        Target
	Method        string
	URL           *url.URL
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// NewUpstreamExchange builds the upstream request from the inbound one.
// The URL is baseURL followed by the inbound path, the query string is kept unchanged.
// Headers are copied without Host and hop-by-hop ones, X-Request-ID is overwritten with requestID.
func NewUpstreamExchange(r *http.Request, target Target, baseURL *url.URL, requestID string) *UpstreamExchange {
	upstreamURL := *baseURL
	upstreamURL.Path = strings.TrimRight(baseURL.Path, "/") + r.URL.Path
	if r.URL.RawPath != "" {
		upstreamURL.RawPath = strings.TrimRight(baseURL.EscapedPath(), "/") + r.URL.RawPath
	}
	upstreamURL.RawQuery = r.URL.RawQuery

	header := httpclient.CloneHTTPHeader(r.Header)
	removeHopByHopHeaders(header)
	header.Del("Host")
	if requestID != "" {
		header.Set(middleware.HeaderRequestID, requestID)
	}

	return &UpstreamExchange{
		Target:        target,
		Method:        r.Method,
		URL:           &upstreamURL,
		Header:        header,
		Body:          r.Body,
		ContentLength: r.ContentLength,
	}
}

func removeHopByHopHeaders(header http.Header) {
	for _, v := range header.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				header.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}
}

// Forwarder sends upstream exchanges to backends through the shared upstream http.Client.
type Forwarder struct {
	client   *http.Client
	backends map[Target]*url.URL
}

// NewForwarder creates a new Forwarder. Backend URLs are parsed once here.
func NewForwarder(client *http.Client, backends Backends) (*Forwarder, error) {
	identityURL, err := parseBaseURL(backends.Identity)
	if err != nil {
		return nil, fmt.Errorf("identity backend: %w", err)
	}
	ordersURL, err := parseBaseURL(backends.Orders)
	if err != nil {
		return nil, fmt.Errorf("orders backend: %w", err)
	}
	return &Forwarder{
		client:   client,
		backends: map[Target]*url.URL{TargetIdentity: identityURL, TargetOrders: ordersURL},
	}, nil
}

// BaseURL returns the base URL of the target backend.
func (f *Forwarder) BaseURL(target Target) (*url.URL, bool) {
	u, ok := f.backends[target]
	return u, ok
}

// Forward issues the exchange once, nothing is retried.
// A failure is returned as *Error: KindUpstreamUnavailable if the connection could not be established,
// KindRequestTooLarge if the inbound body exceeded the limit, KindClientClosedRequest if the client has gone,
// KindUpstreamFault otherwise (timeout, malformed response and so on).
func (f *Forwarder) Forward(ctx context.Context, exchange *UpstreamExchange) (*http.Response, error) {
	ctx = httpclient.NewContextWithRequestType(ctx, string(exchange.Target))
	req, err := http.NewRequestWithContext(ctx, exchange.Method, exchange.URL.String(), exchange.Body)
	if err != nil {
		return nil, newError(KindUpstreamFault, fmt.Errorf("create upstream request: %w", err))
	}
	req.Header = exchange.Header
	req.ContentLength = exchange.ContentLength
	if exchange.Body == nil || exchange.Body == http.NoBody {
		req.Body = http.NoBody
		req.ContentLength = 0
	}

	resp, err := f.client.Do(req) //nolint:bodyclose // closed by the caller
	if err != nil {
		return nil, classifyUpstreamError(ctx, err)
	}
	return resp, nil
}

func classifyUpstreamError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return newError(KindClientClosedRequest, err)
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return newError(KindRequestTooLarge, err)
	}
	if isConnectError(err) {
		return newError(KindUpstreamUnavailable, err)
	}
	return newError(KindUpstreamFault, err)
}

// isConnectError reports whether err happened while establishing the connection.
func isConnectError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Relay writes the upstream response to the client: status, headers and body as is.
// The correlation header keeps the gateway value, CORS headers already set by the gateway are not overridden.
func Relay(rw http.ResponseWriter, resp *http.Response, logger log.FieldLogger) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && logger != nil {
			logger.Warn("closing upstream response body error", log.Error(closeErr))
		}
	}()

	upstreamHeader := httpclient.CloneHTTPHeader(resp.Header)
	removeHopByHopHeaders(upstreamHeader)
	dst := rw.Header()
	for name, values := range upstreamHeader {
		switch {
		case name == canonicalHeaderRequestID:
		case strings.HasPrefix(name, "Access-Control-") && len(dst.Values(name)) != 0:
		case name == "Vary":
			dst[name] = append(dst[name], values...)
		default:
			dst[name] = values
		}
	}

	rw.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(rw, resp.Body); err != nil && logger != nil {
		logger.Warn("relaying upstream response body error", log.Error(err))
	}
}
