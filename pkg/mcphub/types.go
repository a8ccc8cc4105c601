package mcphub

import (
	"context"
	"time"
)

// Resource describes a content item advertised by an endpoint.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mime_type"`
}

// ResourceContent is the body of a resource. It holds either text or raw
// bytes, never both; use NewTextContent or NewBlobContent to build one.
type ResourceContent struct {
	URI      string
	MIMEType string

	text   string
	blob   []byte
	isBlob bool
}

// NewTextContent returns textual resource content.
func NewTextContent(uri, mimeType, text string) ResourceContent {
	return ResourceContent{URI: uri, MIMEType: mimeType, text: text}
}

// NewBlobContent returns binary resource content. A nil blob is stored as an
// empty one so the value still reports IsBlob.
func NewBlobContent(uri, mimeType string, blob []byte) ResourceContent {
	if blob == nil {
		blob = []byte{}
	}
	return ResourceContent{URI: uri, MIMEType: mimeType, blob: blob, isBlob: true}
}

// IsBlob reports whether the content carries raw bytes.
func (c ResourceContent) IsBlob() bool { return c.isBlob }

// Text returns the textual body and true, or "" and false for blob content.
func (c ResourceContent) Text() (string, bool) {
	if c.isBlob {
		return "", false
	}
	return c.text, true
}

// Blob returns the binary body and true, or nil and false for text content.
func (c ResourceContent) Blob() ([]byte, bool) {
	if !c.isBlob {
		return nil, false
	}
	return c.blob, true
}

// PromptArgument is one parameter of a PromptTemplate.
type PromptArgument struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// NewPromptArgument returns a required argument with an empty description.
func NewPromptArgument(name string) PromptArgument {
	return PromptArgument{Name: name, Required: true}
}

// PromptTemplate is a parameterized prompt advertised by an endpoint.
type PromptTemplate struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments"`
}

// EndpointInfo is a snapshot of one registered connection.
type EndpointInfo struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Message is a sampling message with its content flattened to text.
type Message struct {
	Role    string
	Content string
}

// ModelPreferences carries the endpoint's model selection hints.
type ModelPreferences struct {
	Hints                []string
	CostPriority         float64
	SpeedPriority        float64
	IntelligencePriority float64
}

// CompletionRequest is an endpoint's request for an LLM completion.
type CompletionRequest struct {
	RequestID        string
	EndpointID       string
	Messages         []Message
	ModelPreferences *ModelPreferences
	SystemPrompt     string
	MaxTokens        int64
}

// CompletionResult is the client's answer to a CompletionRequest. Empty
// fields are filled in by the bridge: Role defaults to "assistant".
type CompletionResult struct {
	Role       string
	Content    string
	Model      string
	StopReason string
}

// InputRequest is an endpoint's request for structured user input.
type InputRequest struct {
	RequestID       string
	EndpointID      string
	Message         string
	RequestedSchema any
}

// InputResult answers an InputRequest. Action defaults to "accept".
type InputResult struct {
	Action  string
	Content map[string]any
}

// CompletionHandler answers completion requests sent by connected endpoints.
type CompletionHandler interface {
	HandleCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// CompletionHandlerFunc adapts a function to CompletionHandler.
type CompletionHandlerFunc func(context.Context, CompletionRequest) (CompletionResult, error)

func (f CompletionHandlerFunc) HandleCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return f(ctx, req)
}

// InputHandler answers user-input (elicitation) requests sent by connected
// endpoints.
type InputHandler interface {
	HandleInput(ctx context.Context, req InputRequest) (InputResult, error)
}

// InputHandlerFunc adapts a function to InputHandler.
type InputHandlerFunc func(context.Context, InputRequest) (InputResult, error)

func (f InputHandlerFunc) HandleInput(ctx context.Context, req InputRequest) (InputResult, error) {
	return f(ctx, req)
}
