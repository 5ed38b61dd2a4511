// Package agent defines the Provider interface for conversational-agent
// backends.
//
// An agent provider wraps a remote service that holds the conversation
// brain: given an agent identity and the latest user messages it produces
// the agent's spoken reply as plain text. Stateful backends (Letta) manage
// conversation history server-side; stateless backends (chat-completion
// APIs) receive the history in the request.
//
// Implementations must be safe for concurrent use.
package agent

import "context"

// Message is a single conversation message sent to the agent.
type Message struct {
	// Role is "user", "assistant", or "system".
	Role string

	// Content is the text content of the message.
	Content string
}

// Provider is the abstraction over any conversational-agent backend.
type Provider interface {
	// Name returns a short identifier for logging and metrics,
	// e.g. "letta" or "openai".
	Name() string

	// Respond sends messages to the agent identified by agentID and returns
	// the agent's reply text.
	//
	// An empty reply with a nil error is valid: it means the agent produced
	// no usable response and the caller should stay silent. Errors are
	// reserved for transport and backend failures.
	Respond(ctx context.Context, agentID string, messages []Message) (string, error)
}
