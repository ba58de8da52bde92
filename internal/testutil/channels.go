package testutil

import (
	"context"
	"sync"

	"church-automation/internal/models"
)

// MockChannel is a scripted channels.Channel. Each Send consumes the
// next error from Errs; once the script runs out, Send succeeds.
type MockChannel struct {
	ChannelType models.ChannelType

	mu   sync.Mutex
	errs []error
	sent []models.Message
}

func NewMockChannel(t models.ChannelType, errs ...error) *MockChannel {
	return &MockChannel{ChannelType: t, errs: errs}
}

func (m *MockChannel) Type() models.ChannelType { return m.ChannelType }

func (m *MockChannel) Send(ctx context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

// Sent returns a copy of every message handed to Send, including
// attempts that were scripted to fail.
func (m *MockChannel) Sent() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// SendCount reports how many times Send was called.
func (m *MockChannel) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
