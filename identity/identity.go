// Package identity resolves game player identities (numeric id and
// username) against the game's public user API. Resolution is read-only and
// heavily cached; the moderation core only needs "who is this" lookups when
// intaking reports and appeals.
package identity

import (
	"context"
	"errors"
)

var ErrPlayerNotFound = errors.New("player not found")

// Player is a resolved game identity.
type Player struct {
	ID          uint64 `json:"id"`
	Username    string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Resolver answers identity lookups. Implementations must be safe for
// concurrent use.
type Resolver interface {
	// Lookup resolves a player by numeric id. Returns ErrPlayerNotFound for
	// unknown ids.
	Lookup(ctx context.Context, id uint64) (*Player, error)
	// ResolveUsername resolves a player by exact username, case-insensitive.
	// Returns ErrPlayerNotFound for unknown names.
	ResolveUsername(ctx context.Context, username string) (*Player, error)
}
