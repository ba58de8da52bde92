// Package channels implements the delivery ports the engine dispatches
// on: email via SMTP, SMS/WhatsApp/voice via Twilio, in-app push, and
// follow-up task creation.
package channels

import (
	"context"
	"fmt"

	"church-automation/internal/models"
)

// Channel delivers one message on a single medium. Send must respect
// ctx; the engine applies a per-attempt timeout around it.
type Channel interface {
	Type() models.ChannelType
	Send(ctx context.Context, msg models.Message) error
}

// DispatchError is returned by channels for delivery failures. Code
// carries the provider's error code when one exists. Permanent errors
// (bad recipient, misconfiguration) should not be retried on the same
// channel.
type DispatchError struct {
	Channel   models.ChannelType
	Code      string
	Message   string
	Permanent bool
	Cause     error
}

func (e *DispatchError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s dispatch failed (%s): %s", e.Channel, e.Code, e.Message)
	}
	return fmt.Sprintf("%s dispatch failed: %s", e.Channel, e.Message)
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// IsPermanent reports whether the error is a DispatchError marked
// permanent. Retrying such failures cannot succeed.
func IsPermanent(err error) bool {
	if de, ok := err.(*DispatchError); ok {
		return de.Permanent
	}
	return false
}

// Registry resolves channels by type.
type Registry struct {
	channels map[models.ChannelType]Channel
}

// NewRegistry builds a registry from the given channels.
func NewRegistry(chans ...Channel) *Registry {
	r := &Registry{channels: make(map[models.ChannelType]Channel, len(chans))}
	for _, c := range chans {
		r.channels[c.Type()] = c
	}
	return r
}

// Register adds or replaces a channel.
func (r *Registry) Register(c Channel) {
	r.channels[c.Type()] = c
}

// Get returns the channel for the type, or false when none is wired.
func (r *Registry) Get(t models.ChannelType) (Channel, bool) {
	c, ok := r.channels[t]
	return c, ok
}
