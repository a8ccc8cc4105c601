package mcphub

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vikashloomba/mcp-session-hub/pkg/mcphub"

// Dialer acquires the transport for an endpoint URL. The returned transport
// is connected exactly once by the session factory.
type Dialer interface {
	Dial(ctx context.Context, endpointID, url string) (mcp.Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpointID, url string) (mcp.Transport, error)

func (f DialerFunc) Dial(ctx context.Context, endpointID, url string) (mcp.Transport, error) {
	return f(ctx, endpointID, url)
}

// Session is the subset of *mcp.ClientSession the registry delegates to.
// Close must also close the connection the session was built on.
type Session interface {
	ListResources(context.Context, *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error)
	ReadResource(context.Context, *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error)
	ListPrompts(context.Context, *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error)
	GetPrompt(context.Context, *mcp.GetPromptParams) (*mcp.GetPromptResult, error)
	Close() error
}

// SessionRequest carries everything a SessionFactory needs to build and
// initialize one session.
type SessionRequest struct {
	EndpointID     string
	Implementation *mcp.Implementation
	Transport      mcp.Transport
	ClientOptions  *mcp.ClientOptions
}

// SessionFactory constructs a session over req.Transport and performs the
// protocol handshake before returning.
type SessionFactory func(ctx context.Context, req SessionRequest) (Session, error)

// DefaultSessionFactory builds a go-sdk client and connects it, which runs
// the initialize handshake.
func DefaultSessionFactory(ctx context.Context, req SessionRequest) (Session, error) {
	client := mcp.NewClient(req.Implementation, req.ClientOptions)
	session, err := client.Connect(ctx, req.Transport, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

// RPCLogEvent encapsulates JSON-RPC traffic for custom logging.
type RPCLogEvent struct {
	Direction  RPCDirection
	Message    []byte
	EndpointID string
}

// RPCLogger is invoked for each JSON-RPC message when logging is enabled.
type RPCLogger func(RPCLogEvent)

// Options configures a Registry.
type Options struct {
	// ClientName is advertised to endpoints during initialization. Defaults
	// to "mcphub".
	ClientName string
	// ClientVersion is the semantic version reported to endpoints.
	ClientVersion string
	// Timeout bounds the handshake and every delegated call. Defaults to 30s.
	Timeout time.Duration
	// KeepAlive enables periodic pings on each session when positive.
	KeepAlive time.Duration
	// Dialer acquires transports. Defaults to an HTTPDialer.
	Dialer Dialer
	// SessionFactory builds sessions. Defaults to DefaultSessionFactory.
	SessionFactory SessionFactory
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// TracerProvider supplies the tracer for connect, disconnect, and
	// callback spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
	// LogJSONRPC logs every JSON-RPC message at debug level.
	LogJSONRPC bool
	// RPCLogger receives JSON-RPC traffic; it takes precedence over
	// LogJSONRPC.
	RPCLogger RPCLogger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.ClientName == "" {
		opts.ClientName = "mcphub"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &HTTPDialer{}
	}
	if opts.SessionFactory == nil {
		opts.SessionFactory = DefaultSessionFactory
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return opts
}

func (o *Options) rpcLogger() RPCLogger {
	if o.RPCLogger != nil {
		return o.RPCLogger
	}
	if !o.LogJSONRPC {
		return nil
	}
	logger := o.Logger
	return func(event RPCLogEvent) {
		logger.Debug("jsonrpc", "endpoint", event.EndpointID, "direction", string(event.Direction), "message", string(event.Message))
	}
}
