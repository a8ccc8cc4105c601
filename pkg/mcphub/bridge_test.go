package mcphub

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func testObserver() bridgeObserver {
	return bridgeObserver{logger: discardLogger(), tracer: noop.NewTracerProvider().Tracer("test")}
}

func TestCompletionBridgeTranslatesRequestAndDefaults(t *testing.T) {
	t.Parallel()

	var got CompletionRequest
	bridge := newCompletionBridge("ep", CompletionHandlerFunc(func(_ context.Context, req CompletionRequest) (CompletionResult, error) {
		got = req
		return CompletionResult{Content: "done", Model: "m-1", StopReason: "endTurn"}, nil
	}), testObserver())

	res, err := bridge.handle(context.Background(), &mcp.CreateMessageRequest{Params: &mcp.CreateMessageParams{
		Messages: []*mcp.SamplingMessage{
			{Role: "user", Content: &mcp.TextContent{Text: "first"}},
			nil,
			{Role: "assistant", Content: &mcp.TextContent{Text: "second"}},
		},
		ModelPreferences: &mcp.ModelPreferences{
			Hints:        []*mcp.ModelHint{{Name: "claude"}, nil, {Name: ""}},
			CostPriority: 0.25,
		},
		SystemPrompt: "sys",
		MaxTokens:    10,
	}})
	require.NoError(t, err)

	assert.Equal(t, mcp.Role("assistant"), res.Role)
	assert.Equal(t, "m-1", res.Model)
	assert.Equal(t, "endTurn", res.StopReason)
	assert.Equal(t, &mcp.TextContent{Text: "done"}, res.Content)

	assert.Equal(t, "ep", got.EndpointID)
	assert.NotEmpty(t, got.RequestID)
	assert.Equal(t, []Message{{Role: "user", Content: "first"}, {Role: "assistant", Content: "second"}}, got.Messages)
	require.NotNil(t, got.ModelPreferences)
	assert.Equal(t, []string{"claude"}, got.ModelPreferences.Hints)
	assert.InDelta(t, 0.25, got.ModelPreferences.CostPriority, 1e-9)
	assert.Equal(t, "sys", got.SystemPrompt)
	assert.Equal(t, int64(10), got.MaxTokens)
}

func TestCompletionBridgeAssignsDistinctRequestIDs(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	bridge := newCompletionBridge("ep", CompletionHandlerFunc(func(_ context.Context, req CompletionRequest) (CompletionResult, error) {
		seen[req.RequestID] = true
		return CompletionResult{Role: "user"}, nil
	}), testObserver())

	for i := 0; i < 3; i++ {
		res, err := bridge.handle(context.Background(), &mcp.CreateMessageRequest{Params: &mcp.CreateMessageParams{}})
		require.NoError(t, err)
		assert.Equal(t, mcp.Role("user"), res.Role, "explicit role is kept")
	}
	assert.Len(t, seen, 3)
}

func TestCompletionBridgeContainsFailures(t *testing.T) {
	t.Parallel()

	failing := newCompletionBridge("ep", CompletionHandlerFunc(func(context.Context, CompletionRequest) (CompletionResult, error) {
		return CompletionResult{}, errors.New("rate limited")
	}), testObserver())
	_, err := failing.handle(context.Background(), &mcp.CreateMessageRequest{})
	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, "completion", handlerErr.Kind)
	assert.Equal(t, "rate limited", handlerErr.Message)

	panicking := newCompletionBridge("ep", CompletionHandlerFunc(func(context.Context, CompletionRequest) (CompletionResult, error) {
		panic("handler bug")
	}), testObserver())
	var res *mcp.CreateMessageResult
	require.NotPanics(t, func() {
		res, err = panicking.handle(context.Background(), &mcp.CreateMessageRequest{})
	})
	assert.Nil(t, res)
	require.ErrorAs(t, err, &handlerErr)
	assert.Contains(t, handlerErr.Message, "handler bug")
}

func TestInputBridge(t *testing.T) {
	t.Parallel()

	var got InputRequest
	bridge := newInputBridge("ep", InputHandlerFunc(func(_ context.Context, req InputRequest) (InputResult, error) {
		got = req
		return InputResult{Content: map[string]any{"name": "ada"}}, nil
	}), testObserver())

	res, err := bridge.handle(context.Background(), &mcp.ElicitRequest{Params: &mcp.ElicitParams{Message: "who are you?"}})
	require.NoError(t, err)
	assert.Equal(t, "accept", res.Action)
	assert.Equal(t, map[string]any{"name": "ada"}, res.Content)
	assert.Equal(t, "ep", got.EndpointID)
	assert.Equal(t, "who are you?", got.Message)
	assert.Nil(t, got.RequestedSchema)

	declining := newInputBridge("ep", InputHandlerFunc(func(context.Context, InputRequest) (InputResult, error) {
		return InputResult{Action: "decline"}, nil
	}), testObserver())
	res, err = declining.handle(context.Background(), &mcp.ElicitRequest{Params: &mcp.ElicitParams{}})
	require.NoError(t, err)
	assert.Equal(t, "decline", res.Action)

	failing := newInputBridge("ep", InputHandlerFunc(func(context.Context, InputRequest) (InputResult, error) {
		return InputResult{}, errors.New("user closed dialog")
	}), testObserver())
	_, err = failing.handle(context.Background(), &mcp.ElicitRequest{})
	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, "input", handlerErr.Kind)
}

func TestContentText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", contentText(nil))
	assert.Equal(t, "plain", contentText(&mcp.TextContent{Text: "plain"}))
	assert.Equal(t, "embedded", contentText(&mcp.EmbeddedResource{Resource: &mcp.ResourceContents{URI: "file:///e", Text: "embedded"}}))
	assert.Equal(t, "file:///linked", contentText(&mcp.ResourceLink{URI: "file:///linked", Name: "linked"}))

	image := contentText(&mcp.ImageContent{MIMEType: "image/png", Data: []byte{1, 2, 3}})
	assert.Contains(t, image, `"type":"image"`)
	assert.Contains(t, image, "image/png")
}

func TestModelPreferencesFromProtocol(t *testing.T) {
	t.Parallel()

	assert.Nil(t, modelPreferencesFromProtocol(nil))
	prefs := modelPreferencesFromProtocol(&mcp.ModelPreferences{
		Hints:                []*mcp.ModelHint{{Name: "a"}, {Name: "b"}},
		SpeedPriority:        0.5,
		IntelligencePriority: 0.9,
	})
	assert.Equal(t, &ModelPreferences{Hints: []string{"a", "b"}, SpeedPriority: 0.5, IntelligencePriority: 0.9}, prefs)
}
