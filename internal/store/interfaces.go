// Package store defines the storage contracts the engine depends on.
// Postgres implementations live under postgres/; cache.go adds a Redis
// read-through layer on the hot online paths.
package store

import (
	"context"
	"errors"

	"github.com/simplers/recsys/internal/domain"
)

// ErrNotFound reports that a requested document does not exist. Callers
// distinguish it from transport failures: absence triggers fallbacks,
// transport failures may abort.
var ErrNotFound = errors.New("store: not found")

// UserStore reads the user population.
type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, custNo int64) (domain.User, error)
}

// CurationStore reads the content catalog.
type CurationStore interface {
	ListCurations(ctx context.Context) ([]domain.Curation, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.Curation, error)
}

// CandidateStore persists and serves per-user candidate documents. Save
// replaces each user's document wholesale.
type CandidateStore interface {
	GetCandidates(ctx context.Context, custNo int64) (domain.CandidateDoc, error)
	SaveCandidates(ctx context.Context, docs []domain.CandidateDoc) error
}

// SnapshotStore queries the recent market snapshot window.
type SnapshotStore interface {
	RecentSnapshots(ctx context.Context, days int) ([]domain.MarketSnapshot, error)
	// LatestReturns reports the most recent 1d return per requested symbol.
	// Symbols without data are absent from the result.
	LatestReturns(ctx context.Context, symbols []string) (map[string]float64, error)
}

// SeenStore reads a user's recent consumption log for exclude-seen filtering.
type SeenStore interface {
	SeenItems(ctx context.Context, custNo int64, days int) (map[string]struct{}, error)
}

// FallbackSource serves the curated item list used when a user has no
// stored candidates. Items carry a neutral score.
type FallbackSource interface {
	Curated(ctx context.Context, limit int) ([]domain.ScoredItem, error)
}
