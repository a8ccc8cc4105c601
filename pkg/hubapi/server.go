// Package hubapi exposes a session hub over a small JSON HTTP API.
package hubapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/rs/cors"
	"github.com/vikashloomba/mcp-session-hub/pkg/mcphub"
)

// Hub is the session registry surface the API drives. *mcphub.Registry
// satisfies it.
type Hub interface {
	Connect(ctx context.Context, endpointID, url string, completion mcphub.CompletionHandler, input mcphub.InputHandler) error
	Disconnect(ctx context.Context, endpointID string)
	DisconnectAll(ctx context.Context)
	Endpoints() []mcphub.EndpointInfo
	ListResources(ctx context.Context, endpointID string) ([]mcphub.Resource, error)
	ReadResource(ctx context.Context, endpointID, uri string) (mcphub.ResourceContent, error)
	ListPrompts(ctx context.Context, endpointID string) ([]mcphub.PromptTemplate, error)
	GetPrompt(ctx context.Context, endpointID, name string, arguments map[string]string) (string, error)
}

var _ Hub = (*mcphub.Registry)(nil)

// Options configure a Server.
type Options struct {
	// Addr controls the listen address used by ListenAndServe. Defaults to ":8700".
	Addr string
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// AllowedOrigins enables CORS for the listed origins when non-empty.
	AllowedOrigins []string
	// TokenVerifier, when set, requires a bearer token on every route except
	// the health check.
	TokenVerifier auth.TokenVerifier
	// TokenOptions configures bearer-token enforcement. Requires TokenVerifier.
	TokenOptions *auth.RequireBearerTokenOptions
	// Completion and Input are attached to every endpoint connected through
	// the API. Either may be nil. They exist only for programs that embed this
	// package; the mcphub serve command leaves both unset.
	Completion mcphub.CompletionHandler
	Input      mcphub.InputHandler
	// ShutdownTimeout bounds the HTTP drain when ListenAndServe's context ends.
	ShutdownTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Addr == "" {
		opts.Addr = ":8700"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	opts.AllowedOrigins = append([]string(nil), opts.AllowedOrigins...)
	return opts
}

// Server serves the hub API.
type Server struct {
	hub     Hub
	opts    Options
	handler http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewServer builds a Server over hub.
func NewServer(hub Hub, opts *Options) (*Server, error) {
	if hub == nil {
		return nil, fmt.Errorf("hubapi: hub is required")
	}
	options := opts.withDefaults()
	if options.TokenOptions != nil && options.TokenVerifier == nil {
		return nil, fmt.Errorf("hubapi: TokenOptions requires TokenVerifier")
	}
	s := &Server{hub: hub, opts: options}
	s.handler = s.mountHandler()
	return s, nil
}

// Handler exposes the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe runs an HTTP server until the provided context is cancelled or
// the server stops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServerMu.Lock()
	if s.httpServer != nil {
		srv := s.httpServer
		s.httpServerMu.Unlock()
		return fmt.Errorf("hubapi: server already running on %s", srv.Addr)
	}
	srv := &http.Server{Addr: s.opts.Addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.httpServer = srv
	s.httpServerMu.Unlock()
	defer func() {
		s.httpServerMu.Lock()
		if s.httpServer == srv {
			s.httpServer = nil
		}
		s.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.opts.Logger.Info("hub api listening", "addr", s.opts.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpServerMu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

func (s *Server) mountHandler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /endpoints", s.handleListEndpoints)
	api.HandleFunc("POST /endpoints", s.handleConnect)
	api.HandleFunc("DELETE /endpoints", s.handleDisconnectAll)
	api.HandleFunc("DELETE /endpoints/{id}", s.handleDisconnect)
	api.HandleFunc("GET /endpoints/{id}/resources", s.handleListResources)
	api.HandleFunc("GET /endpoints/{id}/resource", s.handleReadResource)
	api.HandleFunc("GET /endpoints/{id}/prompts", s.handleListPrompts)
	api.HandleFunc("POST /endpoints/{id}/prompts/{name}", s.handleGetPrompt)

	var protected http.Handler = api
	if s.opts.TokenVerifier != nil {
		protected = auth.RequireBearerToken(s.opts.TokenVerifier, s.opts.TokenOptions)(api)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.Handle("/", protected)

	if len(s.opts.AllowedOrigins) == 0 {
		return root
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(root)
}
