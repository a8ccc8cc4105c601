package mcphub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a real go-sdk server reached over in-memory transports.
type fakeBackend struct {
	server *mcp.Server

	mu       sync.Mutex
	sessions []*mcp.ServerSession
}

func newFakeBackend(opts *mcp.ServerOptions) *fakeBackend {
	return &fakeBackend{
		server: mcp.NewServer(&mcp.Implementation{Name: "fake-backend", Version: "0.0.1"}, opts),
	}
}

func (b *fakeBackend) addTextResource(uri, name, text string) *fakeBackend {
	b.server.AddResource(&mcp.Resource{URI: uri, Name: name}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, MIMEType: "text/plain", Text: text},
		}}, nil
	})
	return b
}

func (b *fakeBackend) addBlobResource(uri, name string, blob []byte) *fakeBackend {
	b.server.AddResource(&mcp.Resource{URI: uri, Name: name, MIMEType: "application/octet-stream"}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, MIMEType: "application/octet-stream", Blob: blob},
		}}, nil
	})
	return b
}

func (b *fakeBackend) addGreetingPrompt() *fakeBackend {
	b.server.AddPrompt(&mcp.Prompt{
		Name:        "greet",
		Description: "Greets someone",
		Arguments:   []*mcp.PromptArgument{{Name: "who", Description: "name to greet", Required: true}},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: "hello " + req.Params.Arguments["who"]}},
			{Role: "assistant", Content: &mcp.TextContent{Text: "how can I help?"}},
		}}, nil
	})
	return b
}

func (b *fakeBackend) lastSession(t *testing.T) *mcp.ServerSession {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.sessions, "backend has no sessions")
	return b.sessions[len(b.sessions)-1]
}

// fakeNetwork routes URLs to fake backends and records transport closes.
type fakeNetwork struct {
	backends map[string]*fakeBackend
	events   *eventLog
}

func newFakeNetwork(events *eventLog) *fakeNetwork {
	return &fakeNetwork{backends: make(map[string]*fakeBackend), events: events}
}

func (n *fakeNetwork) add(url string, backend *fakeBackend) *fakeNetwork {
	n.backends[url] = backend
	return n
}

func (n *fakeNetwork) Dial(ctx context.Context, endpointID, url string) (mcp.Transport, error) {
	backend, ok := n.backends[url]
	if !ok {
		return nil, fmt.Errorf("dial %s: connection refused", url)
	}
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := backend.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, err
	}
	backend.mu.Lock()
	backend.sessions = append(backend.sessions, ss)
	backend.mu.Unlock()
	return &recordingTransport{endpointID: endpointID, delegate: clientTransport, events: n.events}, nil
}

type recordingTransport struct {
	endpointID string
	delegate   mcp.Transport
	events     *eventLog
}

func (t *recordingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &recordingConnection{Connection: conn, endpointID: t.endpointID, events: t.events}, nil
}

type recordingConnection struct {
	mcp.Connection
	endpointID string
	events     *eventLog
	once       sync.Once
}

func (c *recordingConnection) Close() error {
	c.once.Do(func() { c.events.add("transport:" + c.endpointID) })
	return c.Connection.Close()
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// hookedSession runs onClose before closing the wrapped session.
type hookedSession struct {
	Session
	onClose func() error
}

func (s *hookedSession) Close() error {
	var hookErr error
	if s.onClose != nil {
		hookErr = s.onClose()
	}
	if err := s.Session.Close(); err != nil && hookErr == nil {
		return err
	}
	return hookErr
}

// hookedFactory wraps DefaultSessionFactory, recording session closes and
// running the per-endpoint close hook when present.
func hookedFactory(events *eventLog, hooks map[string]func() error) SessionFactory {
	return func(ctx context.Context, req SessionRequest) (Session, error) {
		session, err := DefaultSessionFactory(ctx, req)
		if err != nil {
			return nil, err
		}
		id := req.EndpointID
		hook := hooks[id]
		return &hookedSession{Session: session, onClose: func() error {
			events.add("session:" + id)
			if hook != nil {
				return hook()
			}
			return nil
		}}, nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(network *fakeNetwork, factory SessionFactory) *Registry {
	return NewRegistry(&Options{
		ClientName:     "mcphub-tests",
		Dialer:         network,
		SessionFactory: factory,
		Logger:         discardLogger(),
	})
}
