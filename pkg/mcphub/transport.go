package mcphub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPAuthProvider dynamically supplies an Authorization header (for example,
// "Bearer <token>") for outbound HTTP requests.
type HTTPAuthProvider func(context.Context) (string, error)

// HTTPDialer opens MCP transports over HTTP. Endpoints whose path ends in
// "/sse" use the SSE transport; everything else uses Streamable HTTP.
type HTTPDialer struct {
	// HTTPClient is cloned and decorated for every dial. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	// Headers are added to every outbound request.
	Headers http.Header
	// AuthProvider supplies the Authorization header when the request has
	// none.
	AuthProvider HTTPAuthProvider
	// PreferSSE overrides the "/sse" suffix heuristic when set.
	PreferSSE *bool
	// MaxRetries bounds Streamable HTTP reconnection attempts.
	MaxRetries int
}

// Dial validates rawURL and returns an unconnected transport for it.
func (d *HTTPDialer) Dial(_ context.Context, endpointID, rawURL string) (mcp.Transport, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidEndpoint, rawURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q: missing host", ErrInvalidEndpoint, rawURL)
	}
	endpoint := parsed.String()
	client := decorateHTTPClient(d.HTTPClient, d.Headers, d.AuthProvider)
	if d.shouldPreferSSE(endpoint) {
		return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: client}, nil
	}
	return &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: client,
		MaxRetries: d.MaxRetries,
	}, nil
}

func (d *HTTPDialer) shouldPreferSSE(endpoint string) bool {
	if d.PreferSSE != nil {
		return *d.PreferSSE
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/sse")
}

func decorateHTTPClient(base *http.Client, headers http.Header, provider HTTPAuthProvider) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:         defaultRoundTripper(base.Transport),
		headers:      cloneHeader(headers),
		authProvider: provider,
	}
	return &clone
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}

type headerDecorator struct {
	next         http.RoundTripper
	headers      http.Header
	authProvider HTTPAuthProvider
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(d.headers) > 0 || d.authProvider != nil {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
	}
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if d.authProvider != nil && req.Header.Get("Authorization") == "" {
		token, err := d.authProvider(req.Context())
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", token)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

// guardedTransport hands the connection it opens to a resourceGuard, so the
// connection is released after, and independently of, the session built on
// top of it.
//
// The connection outlives the Connect call: HTTP transports bind streams and
// the closing DELETE to the context they are opened with, so only
// cancellation is stripped here. The guard owns the connection's lifetime.
type guardedTransport struct {
	delegate mcp.Transport
	guard    *resourceGuard
	opened   atomic.Bool
}

func (t *guardedTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	t.opened.Store(true)
	t.guard.acquire("transport", conn)
	return conn, nil
}

type loggingTransport struct {
	endpointID string
	delegate   mcp.Transport
	logger     RPCLogger
}

func (t *loggingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConnection{endpointID: t.endpointID, delegate: conn, logger: t.logger}, nil
}

type loggingConnection struct {
	endpointID string
	delegate   mcp.Connection
	logger     RPCLogger
	mu         sync.Mutex
}

func (c *loggingConnection) SessionID() string { return c.delegate.SessionID() }

func (c *loggingConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.delegate.Read(ctx)
	if err == nil {
		c.emit(RPCDirectionReceive, msg)
	}
	return msg, err
}

func (c *loggingConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := c.delegate.Write(ctx, msg); err != nil {
		return err
	}
	c.emit(RPCDirectionSend, msg)
	return nil
}

func (c *loggingConnection) Close() error { return c.delegate.Close() }

func (c *loggingConnection) emit(direction RPCDirection, msg jsonrpc.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	encoded, err := json.Marshal(msg)
	if err != nil {
		encoded = []byte(err.Error())
	}
	c.logger(RPCLogEvent{Direction: direction, Message: encoded, EndpointID: c.endpointID})
}
