// Package mcphub keeps one independent Model Context Protocol (MCP) session
// per remote endpoint and tears those sessions down safely. It layers a keyed
// connection registry, ordered resource release, and callback bridging on top
// of the modelcontextprotocol/go-sdk client.
//
// # Core entry points
//
//   - Registry is the long-lived owner of every endpoint connection. Construct
//     it with NewRegistry, then call Connect / Disconnect / DisconnectAll.
//     DisconnectAll doubles as the registry's shutdown hook.
//   - ListResources, ReadResource, ListPrompts, and GetPrompt look up the
//     session bound to an endpoint ID and translate the protocol results into
//     the plain value types Resource, ResourceContent, and PromptTemplate.
//     Every lookup against an unknown endpoint fails with ErrNotFound.
//   - CompletionHandler and InputHandler receive sampling and elicitation
//     requests that connected endpoints send back to the client. Handler
//     failures are converted into protocol errors and never reach the
//     transport.
//   - Options selects the Dialer (HTTPDialer by default), the SessionFactory,
//     timeouts, logging, and tracing.
//
// Operations on different endpoint IDs are independent. Connect and
// Disconnect calls for the same endpoint ID are not serialized by the
// registry; callers that issue them concurrently must order them.
package mcphub
