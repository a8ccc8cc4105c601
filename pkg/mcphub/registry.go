package mcphub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Registry owns one session per endpoint ID.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*endpointConn

	opts   Options
	tracer trace.Tracer

	disconnectingAll atomic.Bool
}

// endpointConn is fixed at creation; only the registry holds it.
type endpointConn struct {
	id          string
	url         string
	session     Session
	guard       *resourceGuard
	completion  CompletionHandler
	input       InputHandler
	connectedAt time.Time
}

// NewRegistry constructs an empty Registry. Callers can provide nil options
// to fall back to defaults.
func NewRegistry(opts *Options) *Registry {
	options := opts.withDefaults()
	return &Registry{
		conns:  make(map[string]*endpointConn),
		opts:   options,
		tracer: options.TracerProvider.Tracer(tracerName),
	}
}

// Connect dials url, builds a session with bridged versions of the supplied
// handlers, completes the handshake, and stores the connection under
// endpointID. Either handler may be nil. An existing connection for the same
// endpointID is disconnected first.
func (r *Registry) Connect(ctx context.Context, endpointID, url string, completion CompletionHandler, input InputHandler) (err error) {
	if strings.TrimSpace(endpointID) == "" {
		return fmt.Errorf("%w: endpoint id is required", ErrInvalidEndpoint)
	}
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: url is required for %q", ErrInvalidEndpoint, endpointID)
	}

	ctx, span := r.tracer.Start(ctx, "mcphub.connect", trace.WithAttributes(
		attribute.String("mcphub.endpoint_id", endpointID),
		attribute.String("mcphub.url", url),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if r.IsConnected(endpointID) {
		r.opts.Logger.Info("replacing existing connection", "endpoint", endpointID)
		r.Disconnect(ctx, endpointID)
	}

	transport, err := r.opts.Dialer.Dial(ctx, endpointID, url)
	if err != nil {
		return &ConnectError{EndpointID: endpointID, URL: url, Stage: StageTransport, Err: err}
	}
	if logger := r.opts.rpcLogger(); logger != nil {
		transport = &loggingTransport{endpointID: endpointID, delegate: transport, logger: logger}
	}
	guard := newResourceGuard(endpointID, r.opts.Logger)
	guarded := &guardedTransport{delegate: transport, guard: guard}

	connectCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	session, err := r.opts.SessionFactory(connectCtx, SessionRequest{
		EndpointID: endpointID,
		Implementation: &mcp.Implementation{
			Name:    r.opts.ClientName,
			Version: r.opts.ClientVersion,
		},
		Transport:     guarded,
		ClientOptions: r.clientOptions(endpointID, completion, input),
	})
	if err != nil {
		guard.release()
		stage := StageHandshake
		if !guarded.opened.Load() {
			stage = StageTransport
		}
		return &ConnectError{EndpointID: endpointID, URL: url, Stage: stage, Err: err}
	}
	// Closing a session closes its connection too.
	guard.acquireCovering("session", session, "transport")

	conn := &endpointConn{
		id:          endpointID,
		url:         url,
		session:     session,
		guard:       guard,
		completion:  completion,
		input:       input,
		connectedAt: time.Now(),
	}
	r.mu.Lock()
	displaced := r.conns[endpointID]
	r.conns[endpointID] = conn
	r.mu.Unlock()
	if displaced != nil {
		// A concurrent Connect for the same ID won the race to the map.
		displaced.guard.release()
	}
	r.opts.Logger.Info("endpoint connected", "endpoint", endpointID, "url", url)
	return nil
}

func (r *Registry) clientOptions(endpointID string, completion CompletionHandler, input InputHandler) *mcp.ClientOptions {
	opts := &mcp.ClientOptions{KeepAlive: r.opts.KeepAlive}
	obs := bridgeObserver{logger: r.opts.Logger, tracer: r.tracer}
	if completion != nil {
		opts.CreateMessageHandler = newCompletionBridge(endpointID, completion, obs).handle
	}
	if input != nil {
		opts.ElicitationHandler = newInputBridge(endpointID, input, obs).handle
	}
	return opts
}

// Disconnect removes endpointID from the registry and releases its session
// and transport, in that order. Unknown IDs are ignored. Release failures are
// logged and discarded. If ctx ends first, Disconnect returns while the
// release finishes in the background; the entry is already gone either way.
func (r *Registry) Disconnect(ctx context.Context, endpointID string) {
	r.mu.Lock()
	conn, ok := r.conns[endpointID]
	if ok {
		delete(r.conns, endpointID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, span := r.tracer.Start(ctx, "mcphub.disconnect", trace.WithAttributes(
		attribute.String("mcphub.endpoint_id", endpointID),
	))
	defer span.End()

	done := make(chan int, 1)
	go func() {
		done <- conn.guard.release()
	}()
	failed, finished := awaitRelease(ctx, done)
	if !finished {
		span.SetStatus(codes.Error, "release interrupted")
		r.opts.Logger.Warn("disconnect interrupted; release continues in background", "endpoint", endpointID, "error", ctx.Err())
		return
	}
	if failed > 0 {
		span.SetAttributes(attribute.Int("mcphub.release_failures", failed))
	}
	r.opts.Logger.Info("endpoint disconnected", "endpoint", endpointID, "release_failures", failed)
}

// awaitRelease waits for the release result on done until ctx ends. A result
// that is already available wins over an ended ctx.
func awaitRelease(ctx context.Context, done <-chan int) (failed int, finished bool) {
	select {
	case failed = <-done:
		return failed, true
	case <-ctx.Done():
		select {
		case failed = <-done:
			return failed, true
		default:
			return 0, false
		}
	}
}

// DisconnectAll disconnects every endpoint known when the call starts. A
// failure tearing down one endpoint does not stop the others. Calls made
// while another DisconnectAll is running, including calls made from inside a
// release step, return immediately.
func (r *Registry) DisconnectAll(ctx context.Context) {
	if !r.disconnectingAll.CompareAndSwap(false, true) {
		return
	}
	defer r.disconnectingAll.Store(false)

	ids := r.endpointIDs()
	for _, id := range ids {
		r.disconnectQuietly(ctx, id)
	}
}

func (r *Registry) disconnectQuietly(ctx context.Context, endpointID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Warn("disconnect panicked", "endpoint", endpointID, "panic", rec)
			// Keep the map consistent even if Disconnect never reached its delete.
			r.mu.Lock()
			delete(r.conns, endpointID)
			r.mu.Unlock()
		}
	}()
	r.Disconnect(ctx, endpointID)
}

// IsConnected reports whether endpointID has a registered session.
func (r *Registry) IsConnected(endpointID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[endpointID]
	return ok
}

// Endpoints returns a snapshot of the registered connections sorted by ID.
func (r *Registry) Endpoints() []EndpointInfo {
	r.mu.RLock()
	infos := make([]EndpointInfo, 0, len(r.conns))
	for _, conn := range r.conns {
		infos = append(infos, EndpointInfo{ID: conn.id, URL: conn.url, ConnectedAt: conn.connectedAt})
	}
	r.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (r *Registry) endpointIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) session(endpointID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[endpointID]
	if !ok {
		return nil, endpointNotFound(endpointID)
	}
	return conn.session, nil
}

// ListResources returns every resource the endpoint advertises, following
// pagination cursors. Endpoints without resource support yield an empty list.
func (r *Registry) ListResources(ctx context.Context, endpointID string) ([]Resource, error) {
	session, err := r.session(endpointID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	out := []Resource{}
	params := &mcp.ListResourcesParams{}
	for {
		res, err := session.ListResources(ctx, params)
		if err != nil {
			if isMethodUnavailableError(err, "resources/list") {
				return []Resource{}, nil
			}
			return nil, fmt.Errorf("mcphub: list resources on %q: %w", endpointID, err)
		}
		for _, resource := range res.Resources {
			if resource == nil {
				continue
			}
			out = append(out, Resource{
				URI:         resource.URI,
				Name:        resource.Name,
				Description: resource.Description,
				MIMEType:    resource.MIMEType,
			})
		}
		if res.NextCursor == "" || res.NextCursor == params.Cursor {
			return out, nil
		}
		params = &mcp.ListResourcesParams{Cursor: res.NextCursor}
	}
}

// ReadResource reads uri from the endpoint and returns its first content
// item.
func (r *Registry) ReadResource(ctx context.Context, endpointID, uri string) (ResourceContent, error) {
	session, err := r.session(endpointID)
	if err != nil {
		return ResourceContent{}, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		if isNotFoundError(err) {
			return ResourceContent{}, fmt.Errorf("%w: resource %q on %q: %v", ErrNotFound, uri, endpointID, err)
		}
		return ResourceContent{}, fmt.Errorf("mcphub: read resource %q on %q: %w", uri, endpointID, err)
	}
	var first *mcp.ResourceContents
	for _, c := range res.Contents {
		if c != nil {
			first = c
			break
		}
	}
	if first == nil {
		return ResourceContent{}, fmt.Errorf("%w: resource %q on %q returned no content", ErrNotFound, uri, endpointID)
	}
	contentURI := first.URI
	if contentURI == "" {
		contentURI = uri
	}
	if first.Blob != nil {
		return NewBlobContent(contentURI, first.MIMEType, first.Blob), nil
	}
	return NewTextContent(contentURI, first.MIMEType, first.Text), nil
}

// ListPrompts returns every prompt template the endpoint advertises,
// following pagination cursors. Endpoints without prompt support yield an
// empty list.
func (r *Registry) ListPrompts(ctx context.Context, endpointID string) ([]PromptTemplate, error) {
	session, err := r.session(endpointID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	out := []PromptTemplate{}
	params := &mcp.ListPromptsParams{}
	for {
		res, err := session.ListPrompts(ctx, params)
		if err != nil {
			if isMethodUnavailableError(err, "prompts/list") {
				return []PromptTemplate{}, nil
			}
			return nil, fmt.Errorf("mcphub: list prompts on %q: %w", endpointID, err)
		}
		for _, prompt := range res.Prompts {
			if prompt == nil {
				continue
			}
			out = append(out, promptFromProtocol(prompt))
		}
		if res.NextCursor == "" || res.NextCursor == params.Cursor {
			return out, nil
		}
		params = &mcp.ListPromptsParams{Cursor: res.NextCursor}
	}
}

func promptFromProtocol(prompt *mcp.Prompt) PromptTemplate {
	tpl := PromptTemplate{
		Name:        prompt.Name,
		Description: prompt.Description,
		Arguments:   make([]PromptArgument, 0, len(prompt.Arguments)),
	}
	for _, arg := range prompt.Arguments {
		if arg == nil {
			continue
		}
		tpl.Arguments = append(tpl.Arguments, PromptArgument{
			Name:        arg.Name,
			Required:    arg.Required,
			Description: arg.Description,
		})
	}
	return tpl
}

// GetPrompt renders the named prompt with arguments and returns the text of
// its messages joined by newlines.
func (r *Registry) GetPrompt(ctx context.Context, endpointID, name string, arguments map[string]string) (string, error) {
	session, err := r.session(endpointID)
	if err != nil {
		return "", err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: arguments})
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("%w: prompt %q on %q: %v", ErrNotFound, name, endpointID, err)
		}
		return "", fmt.Errorf("mcphub: get prompt %q on %q: %w", name, endpointID, err)
	}
	parts := make([]string, 0, len(res.Messages))
	for _, msg := range res.Messages {
		if msg == nil {
			continue
		}
		parts = append(parts, contentText(msg.Content))
	}
	return strings.Join(parts, "\n"), nil
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
}

// IsNotFound reports whether err is a not-found condition raised by the
// registry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
