package memory

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"
)

const defaultTimeout = 5 * time.Second

// Option is a functional option for Manager.
type Option func(*Manager)

// WithTimeout overrides the per-call timeout applied to every store
// operation. Values <= 0 keep the default.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager wraps a Store with the failure policy the voice pipeline needs:
// every call gets a timeout, and once a connection-class error is seen the
// store is latched unavailable so later calls short-circuit instead of
// stalling each conversation turn on a dead server. Reset clears the latch
// once the store is known healthy again.
type Manager struct {
	store   Store
	agentID string
	timeout time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	unavailable bool
	attached    map[string]string // userID -> blockID
}

// NewManager creates a Manager for the given store and agent identity.
func NewManager(store Store, agentID string, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		agentID:  agentID,
		timeout:  defaultTimeout,
		logger:   slog.Default(),
		attached: make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AttachUser ensures the user's memory block exists and attaches it to the
// agent. Returns ErrUnavailable while the store is latched unavailable.
func (m *Manager) AttachUser(ctx context.Context, userID string) error {
	if m.isUnavailable() {
		return ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	block, err := m.store.GetOrCreateBlock(ctx, m.agentID, userID)
	if err != nil {
		return m.classify("get or create block", userID, err)
	}
	if err := m.store.Attach(ctx, m.agentID, block.ID); err != nil {
		return m.classify("attach block", userID, err)
	}

	m.mu.Lock()
	m.attached[userID] = block.ID
	m.mu.Unlock()
	return nil
}

// DetachUser detaches the user's previously attached block. A user with no
// attached block is a no-op.
func (m *Manager) DetachUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	blockID, ok := m.attached[userID]
	if ok {
		delete(m.attached, userID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if m.isUnavailable() {
		return ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.Detach(ctx, m.agentID, blockID); err != nil {
		return m.classify("detach block", userID, err)
	}
	return nil
}

// DetachAll detaches every currently attached block. Used on session
// teardown; errors are logged, not returned, since teardown must proceed.
func (m *Manager) DetachAll(ctx context.Context) {
	m.mu.Lock()
	users := make([]string, 0, len(m.attached))
	for userID := range m.attached {
		users = append(users, userID)
	}
	m.mu.Unlock()

	for _, userID := range users {
		if err := m.DetachUser(ctx, userID); err != nil {
			m.logger.Warn("memory detach on teardown failed",
				"user_id", userID, "error", err)
		}
	}
}

// Available reports whether the store is currently usable.
func (m *Manager) Available() bool { return !m.isUnavailable() }

// Reset clears the unavailable latch. Call once the store is known to be
// healthy again.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.unavailable = false
	m.mu.Unlock()
	m.logger.Info("memory store availability reset")
}

// AttachedCount returns the number of users with an attached block.
func (m *Manager) AttachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attached)
}

func (m *Manager) isUnavailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unavailable
}

// classify wraps a store error and latches the manager unavailable when the
// error is connection-class. Validation-class errors (bad request, missing
// agent) pass through without tripping the latch.
func (m *Manager) classify(op, userID string, err error) error {
	if isConnectionError(err) {
		m.mu.Lock()
		already := m.unavailable
		m.unavailable = true
		m.mu.Unlock()
		if !already {
			m.logger.Warn("memory store marked unavailable",
				"op", op, "user_id", userID, "error", err)
		}
		return errors.Join(ErrUnavailable, err)
	}
	m.logger.Warn("memory operation failed", "op", op, "user_id", userID, "error", err)
	return err
}

// isConnectionError reports whether err indicates the store itself is
// unreachable rather than a per-request problem.
func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
