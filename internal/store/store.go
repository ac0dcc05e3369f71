package store

import (
	"context"

	"github.com/me/luna/pkg/model"
)

// DefaultProfile is the profile the CLI stores its session under.
const DefaultProfile = "default"

// Store persists authenticated sessions so they survive restarts. Each
// profile holds at most one session: the CLI uses DefaultProfile, the web
// front end uses one profile per browser cookie.
type Store interface {
	SaveSession(ctx context.Context, profile string, sess *model.Session) error
	// LoadSession returns nil, nil when the profile has no session.
	LoadSession(ctx context.Context, profile string) (*model.Session, error)
	DeleteSession(ctx context.Context, profile string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
