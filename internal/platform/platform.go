// Package platform defines the capability surface the reconcilers need from
// the chat platform. The daemon runs against the Discord adapter in
// internal/platform/discord; tests and dry runs use the in-memory Fake.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// Category is a live channel grouping (a Discord category).
type Category struct {
	ID   string
	Name string
}

// Channel is a live text or voice channel. Viewers holds the user ids that
// currently carry an explicit view-allow overwrite on the channel; users
// absent from the map inherit the category default (hidden).
type Channel struct {
	ID         string
	Name       string
	CategoryID string
	Topic      string
	Voice      bool
	Viewers    map[string]bool
}

// Member is a non-bot account on the platform.
type Member struct {
	ID   string
	Name string
}

// Topology is one consistent listing of the live category/channel state,
// fetched once per reconciliation pass.
type Topology struct {
	Categories []Category
	Channels   []Channel
}

// Client is the platform mutation surface. All calls are blocking and honor
// the passed context; implementations must be safe for sequential use from
// the reconciliation loop.
type Client interface {
	Topology(ctx context.Context) (Topology, error)
	CreateCategory(ctx context.Context, name string) (Category, error)
	CreateTextChannel(ctx context.Context, categoryID, name, topic string) (Channel, error)
	CreateVoiceChannel(ctx context.Context, categoryID, name string) (Channel, error)
	EditTopic(ctx context.Context, channelID, topic string) error
	// SetVisibility grants an explicit view overwrite when visible is true and
	// clears the overwrite entirely when false, so the user falls back to the
	// category default.
	SetVisibility(ctx context.Context, channelID, userID string, visible bool) error
	Members(ctx context.Context) ([]Member, error)
	// Announce posts an operator-facing message to the named console channel.
	Announce(ctx context.Context, channelName, message string) error
}

// TransientError wraps a platform failure (rate limit, timeout, 5xx) that the
// caller should not alert on: the next scheduled pass retries it for free.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
