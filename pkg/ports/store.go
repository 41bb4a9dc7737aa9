package ports

import (
	"context"

	"github.com/symgym/symgym/pkg/domain"
)

// EpisodeStore persists completed trajectories for offline training.
// Episodes are keyed by session ID; listing returns keys, not payloads,
// because datasets can be large.
type EpisodeStore interface {
	// Save persists an episode under its session ID.
	Save(ctx context.Context, ep domain.Episode) error

	// Load retrieves an episode by session ID. Returns
	// domain.ErrEpisodeNotFound if absent.
	Load(ctx context.Context, sessionID string) (domain.Episode, error)

	// List returns the session IDs of all stored episodes.
	List(ctx context.Context) ([]string, error)

	// Delete removes an episode. Deleting an absent episode is not an error.
	Delete(ctx context.Context, sessionID string) error
}
