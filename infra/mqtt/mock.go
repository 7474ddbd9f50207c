package mqtt

import (
	"fmt"
	"sync"
)

// MockNotifier records notices for tests.
type MockNotifier struct {
	mu      sync.Mutex
	Notices []OverrideSavedNotice
	Err     error
	closed  bool
}

// NotifySaved implements Notifier.
func (m *MockNotifier) NotifySaved(notice OverrideSavedNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("notifier closed")
	}
	if m.Err != nil {
		return m.Err
	}
	m.Notices = append(m.Notices, notice)
	return nil
}

// Close implements Notifier.
func (m *MockNotifier) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Sent returns a copy of the recorded notices.
func (m *MockNotifier) Sent() []OverrideSavedNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OverrideSavedNotice, len(m.Notices))
	copy(out, m.Notices)
	return out
}
