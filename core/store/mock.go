package store

import (
	"context"
	"sync"

	"github.com/groundctl/passplan/core/model"
)

// MockSaver is a Saver used in tests. It records every request and can be
// configured to fail or block.
type MockSaver struct {
	mu       sync.Mutex
	Requests []model.SaveRequest

	// Err, when set, is returned by every Save call.
	Err error
	// SaveFunc, when set, replaces the default behaviour entirely.
	SaveFunc func(ctx context.Context, req model.SaveRequest) error
}

// Save implements Saver.
func (m *MockSaver) Save(ctx context.Context, req model.SaveRequest) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return &TransportError{Err: err}
	}
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return nil
}

// Saved returns a copy of the recorded requests.
func (m *MockSaver) Saved() []model.SaveRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SaveRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}
