package memory

import (
	"log/slog"
	"time"
)

// Option customises a Manager
type Option func(*Manager)

// WithClock overrides the time source used for lastTouched stamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithEvictable restricts eviction candidates; a process for which fn returns
// false is never evicted.
func WithEvictable(fn func(processID int) bool) Option {
	return func(m *Manager) {
		m.evictable = fn
	}
}

// WithEvictionListener registers a callback invoked synchronously, with the
// manager locked, after a process has been evicted. The callback must not call
// back into the manager.
func WithEvictionListener(fn func(processID int)) Option {
	return func(m *Manager) {
		m.onEvict = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}
