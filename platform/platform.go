// Package platform defines the narrow surface of the chat platform that the
// moderation core depends on: channel lifecycle and message delivery. The
// real implementation lives with the bot's event layer; tests use the mock.
package platform

import (
	"context"
	"errors"
)

var ErrChannelNotFound = errors.New("channel not found")

// Channel is a reference to a chat channel backing a ticket.
type Channel struct {
	ID         string
	CategoryID string
	Name       string
}

// Client is the chat-platform collaborator. All methods are synchronous
// request/response; callers decide which failures are fatal.
type Client interface {
	// CreateChannel creates a channel under the given category and returns
	// its reference.
	CreateChannel(ctx context.Context, categoryID, name string) (*Channel, error)
	// DeleteChannel reclaims a channel. Deleting an already-deleted channel
	// returns ErrChannelNotFound.
	DeleteChannel(ctx context.Context, channelID string) error
	// ChannelExists reports whether the channel still exists.
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	// ChannelCount returns the number of channels under a category.
	ChannelCount(ctx context.Context, categoryID string) (int, error)

	// PostServiceMarker posts the pinned service message a healthy ticket
	// channel is expected to carry.
	PostServiceMarker(ctx context.Context, channelID string) error
	// HasServiceMarker reports whether the channel still carries the service
	// marker message.
	HasServiceMarker(ctx context.Context, channelID string) (bool, error)

	// SendChannelMessage posts a message to a channel.
	SendChannelMessage(ctx context.Context, channelID, content string) error
	// SendDirectMessage delivers a direct message to a platform user. May
	// fail if the user rejects DMs; callers treat that as best-effort.
	SendDirectMessage(ctx context.Context, userID uint64, content string) error
}
