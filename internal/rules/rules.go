// Package rules defines the closed set of rule capabilities used by the
// batch pools and the online ranking pipeline, the shared invocation
// context, and the built-in rule implementations.
package rules

import (
	"context"
	"math/rand"

	"github.com/simplers/recsys/internal/domain"
)

// PortfolioClient looks up a user's held instruments and sector/country
// weightings. Implementations must convert transport failures into errors;
// rules degrade to empty contributions on error.
type PortfolioClient interface {
	Lookup(ctx context.Context, custNo int64) (domain.Portfolio, error)
}

// Params carries the per-run rule configuration. Values come from the
// config file once at startup.
type Params struct {
	GlobalTopN       int
	AllowedCountries []string
	MaxAbsReturnPct  float64
	OtherTopN        int
	OtherTopNMax     int
	MarketTopic      string

	// Heuristic blend sub-weights plus the outer {heuristic, raw score} pair.
	MarketCapWeight float64
	RecencyWeight   float64
	RandomWeight    float64
	HeuristicWeight float64
	RawScoreWeight  float64

	OwnedBoost      float64
	RecentBoost     float64
	InterestBoost   float64
	OnboardingBoost float64
	TopReturnBoost  float64
	NoiseLevel      float64
}

// Context is the immutable bag of shared inputs passed into every rule
// call. The batch builds one per run; the online service builds one per
// request, enriched with per-user data. Rules must not mutate it.
type Context struct {
	Catalog     []domain.Curation
	CatalogByID map[string]domain.Curation

	// Snapshots holds the recent-N-days market window; ReturnsBySymbol is
	// the latest 1d return per symbol derived from it.
	Snapshots       []domain.MarketSnapshot
	ReturnsBySymbol map[string]float64

	Portfolio PortfolioClient

	// Online-only fields. SeenItems is the user's recent consumption set;
	// Rand is the seeded noise source for this request. Both may be nil.
	SeenItems map[string]struct{}
	Rand      *rand.Rand

	Params Params
}

// BuildCatalogIndex derives the by-id lookup map from a catalog slice.
func BuildCatalogIndex(catalog []domain.Curation) map[string]domain.Curation {
	idx := make(map[string]domain.Curation, len(catalog))
	for _, c := range catalog {
		if c.ID != "" {
			idx[c.ID] = c
		}
	}
	return idx
}

// GlobalRule produces a candidate pool shared by all users.
type GlobalRule interface {
	Name() string
	Apply(ctx context.Context, rc *Context) (domain.PoolResult, error)
}

// LocalRule produces a candidate pool for a single user.
type LocalRule interface {
	Name() string
	Apply(ctx context.Context, user domain.User, rc *Context) (domain.PoolResult, error)
}

// PreFilterRule removes ineligible candidates before scoring. The returned
// slice must be a subset of the input; the pipeline enforces this.
type PreFilterRule interface {
	Name() string
	Apply(ctx context.Context, user domain.User, candidates []string, rc *Context) ([]string, error)
}

// PostRankRule adjusts candidate scores after filtering. It must not change
// the candidate identity set; the pipeline enforces this.
type PostRankRule interface {
	Name() string
	Apply(ctx context.Context, user domain.User, items []domain.ScoredItem, rc *Context) ([]domain.ScoredItem, error)
}
