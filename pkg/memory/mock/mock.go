// Package mock provides an in-memory mock of the memory.Store interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/parley-voice/parley/pkg/memory"
)

// Compile-time interface assertion.
var _ memory.Store = (*Store)(nil)

// Store is a mock implementation of memory.Store. The zero value is usable.
type Store struct {
	mu sync.Mutex

	// GetOrCreateErr, AttachErr, DetachErr are returned by the respective
	// methods when set.
	GetOrCreateErr error
	AttachErr      error
	DetachErr      error

	// AttachCalls and DetachCalls record block IDs in call order.
	AttachCalls []string
	DetachCalls []string

	blocks   map[string]memory.Block // label -> block
	attached map[string]bool         // blockID -> attached
	nextID   int
}

// GetOrCreateBlock implements memory.Store.
func (s *Store) GetOrCreateBlock(_ context.Context, agentID, userID string) (memory.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetOrCreateErr != nil {
		return memory.Block{}, s.GetOrCreateErr
	}
	if s.blocks == nil {
		s.blocks = make(map[string]memory.Block)
	}
	label := memory.BlockLabel(agentID, userID)
	if b, ok := s.blocks[label]; ok {
		return b, nil
	}
	s.nextID++
	b := memory.Block{
		ID:    fmt.Sprintf("block-%d", s.nextID),
		Label: label,
	}
	s.blocks[label] = b
	return b, nil
}

// Attach implements memory.Store.
func (s *Store) Attach(_ context.Context, _, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AttachCalls = append(s.AttachCalls, blockID)
	if s.AttachErr != nil {
		return s.AttachErr
	}
	if s.attached == nil {
		s.attached = make(map[string]bool)
	}
	s.attached[blockID] = true
	return nil
}

// Detach implements memory.Store.
func (s *Store) Detach(_ context.Context, _, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DetachCalls = append(s.DetachCalls, blockID)
	if s.DetachErr != nil {
		return s.DetachErr
	}
	delete(s.attached, blockID)
	return nil
}

// Attached reports whether the given block is currently attached.
func (s *Store) Attached(blockID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached[blockID]
}

// SetBlockValue seeds a block value for tests.
func (s *Store) SetBlockValue(agentID, userID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks == nil {
		s.blocks = make(map[string]memory.Block)
	}
	label := memory.BlockLabel(agentID, userID)
	b, ok := s.blocks[label]
	if !ok {
		s.nextID++
		b = memory.Block{ID: fmt.Sprintf("block-%d", s.nextID), Label: label}
	}
	b.Value = value
	s.blocks[label] = b
}
