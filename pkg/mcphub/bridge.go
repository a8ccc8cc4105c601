package mcphub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCompletionRole = "assistant"
	defaultInputAction    = "accept"
)

// bridgeObserver is the logging and tracing shared by all bridges of a
// registry.
type bridgeObserver struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// completionBridge adapts a CompletionHandler to the go-sdk
// CreateMessageHandler shape for one endpoint.
type completionBridge struct {
	endpointID string
	handler    CompletionHandler
	obs        bridgeObserver
}

func newCompletionBridge(endpointID string, handler CompletionHandler, obs bridgeObserver) *completionBridge {
	return &completionBridge{endpointID: endpointID, handler: handler, obs: obs}
}

func (b *completionBridge) handle(ctx context.Context, req *mcp.CreateMessageRequest) (res *mcp.CreateMessageResult, err error) {
	domain := CompletionRequest{
		RequestID:  uuid.NewString(),
		EndpointID: b.endpointID,
	}
	if req != nil && req.Params != nil {
		params := req.Params
		domain.Messages = make([]Message, 0, len(params.Messages))
		for _, msg := range params.Messages {
			if msg == nil {
				continue
			}
			domain.Messages = append(domain.Messages, Message{Role: string(msg.Role), Content: contentText(msg.Content)})
		}
		domain.ModelPreferences = modelPreferencesFromProtocol(params.ModelPreferences)
		domain.SystemPrompt = params.SystemPrompt
		domain.MaxTokens = params.MaxTokens
	}

	ctx, span := b.obs.start(ctx, "mcphub.completion", b.endpointID, domain.RequestID)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, b.obs.fail(span, "completion", b.endpointID, domain.RequestID, fmt.Errorf("panic: %v", r))
		}
	}()

	out, herr := b.handler.HandleCompletion(ctx, domain)
	if herr != nil {
		return nil, b.obs.fail(span, "completion", b.endpointID, domain.RequestID, herr)
	}
	if out.Role == "" {
		out.Role = defaultCompletionRole
	}
	return &mcp.CreateMessageResult{
		Role:       mcp.Role(out.Role),
		Content:    &mcp.TextContent{Text: out.Content},
		Model:      out.Model,
		StopReason: out.StopReason,
	}, nil
}

// inputBridge adapts an InputHandler to the go-sdk ElicitationHandler shape
// for one endpoint.
type inputBridge struct {
	endpointID string
	handler    InputHandler
	obs        bridgeObserver
}

func newInputBridge(endpointID string, handler InputHandler, obs bridgeObserver) *inputBridge {
	return &inputBridge{endpointID: endpointID, handler: handler, obs: obs}
}

func (b *inputBridge) handle(ctx context.Context, req *mcp.ElicitRequest) (res *mcp.ElicitResult, err error) {
	domain := InputRequest{
		RequestID:  uuid.NewString(),
		EndpointID: b.endpointID,
	}
	if req != nil && req.Params != nil {
		domain.Message = req.Params.Message
		if req.Params.RequestedSchema != nil {
			domain.RequestedSchema = req.Params.RequestedSchema
		}
	}

	ctx, span := b.obs.start(ctx, "mcphub.input", b.endpointID, domain.RequestID)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, b.obs.fail(span, "input", b.endpointID, domain.RequestID, fmt.Errorf("panic: %v", r))
		}
	}()

	out, herr := b.handler.HandleInput(ctx, domain)
	if herr != nil {
		return nil, b.obs.fail(span, "input", b.endpointID, domain.RequestID, herr)
	}
	if out.Action == "" {
		out.Action = defaultInputAction
	}
	return &mcp.ElicitResult{Action: out.Action, Content: out.Content}, nil
}

func (o bridgeObserver) start(ctx context.Context, name, endpointID, requestID string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("mcphub.endpoint_id", endpointID),
		attribute.String("mcphub.request_id", requestID),
	))
}

func (o bridgeObserver) fail(span trace.Span, kind, endpointID, requestID string, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	o.logger.Warn("callback handler failed", "kind", kind, "endpoint", endpointID, "request_id", requestID, "error", cause)
	return &HandlerError{Kind: kind, Message: cause.Error()}
}

// contentText flattens protocol content into plain text. Content without a
// textual form is rendered as its JSON encoding.
func contentText(content mcp.Content) string {
	switch c := content.(type) {
	case nil:
		return ""
	case *mcp.TextContent:
		return c.Text
	case *mcp.EmbeddedResource:
		if c.Resource != nil && c.Resource.Text != "" {
			return c.Resource.Text
		}
	case *mcp.ResourceLink:
		return c.URI
	}
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(data)
}

func modelPreferencesFromProtocol(prefs *mcp.ModelPreferences) *ModelPreferences {
	if prefs == nil {
		return nil
	}
	out := &ModelPreferences{
		CostPriority:         prefs.CostPriority,
		SpeedPriority:        prefs.SpeedPriority,
		IntelligencePriority: prefs.IntelligencePriority,
	}
	for _, hint := range prefs.Hints {
		if hint != nil && hint.Name != "" {
			out.Hints = append(out.Hints, hint.Name)
		}
	}
	return out
}
