// Package memory defines the per-user memory capability: opaque context
// blocks keyed by user identity that are attached to the conversational
// agent before a call and detached afterwards.
//
// Memory is strictly optional. Every failure in this package degrades to
// "no memory attached" rather than blocking the conversation turn; see
// Manager for the unavailable-latch policy.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned by Manager once the backing store has been
// latched unavailable after a connection-class failure. Reset clears it.
var ErrUnavailable = errors.New("memory: store unavailable")

// Block is an opaque context block holding what the agent should remember
// about one user.
type Block struct {
	// ID is the store-assigned block identifier.
	ID string

	// Label identifies the block's owner, see BlockLabel.
	Label string

	// Value is the opaque block content. The core never interprets it.
	Value string
}

// Store is the abstraction over any memory-block backend.
//
// Implementations must be safe for concurrent use. Attach and Detach must
// be idempotent: attaching an already-attached block or detaching an
// unknown one is not an error.
type Store interface {
	// GetOrCreateBlock returns the block labeled for (agentID, userID),
	// creating an empty one when none exists.
	GetOrCreateBlock(ctx context.Context, agentID, userID string) (Block, error)

	// Attach makes the block visible to the agent's context.
	Attach(ctx context.Context, agentID, blockID string) error

	// Detach removes the block from the agent's context.
	Detach(ctx context.Context, agentID, blockID string) error
}

// BlockLabel builds the canonical label for a user's memory block:
// "{agentID}/discord/users/{userID}".
func BlockLabel(agentID, userID string) string {
	return fmt.Sprintf("%s/discord/users/%s", agentID, userID)
}

// ParseBlockLabel splits a canonical block label into its agent and user
// identifiers. It returns an error for labels in any other shape.
func ParseBlockLabel(label string) (agentID, userID string, err error) {
	parts := strings.Split(label, "/")
	if len(parts) != 4 || parts[1] != "discord" || parts[2] != "users" || parts[0] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("memory: malformed block label %q", label)
	}
	return parts[0], parts[3], nil
}
