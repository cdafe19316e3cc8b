package rules

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
)

// TopReturnRule selects the top-N symbols by latest 1d return independently
// for each allowed country, joins them against the catalog via the item
// label, and scores matched items by return rank (top rank gets N points,
// the next N-1, and so on). Ties within a country break by symbol lexical
// order so repeated runs over identical snapshots are deterministic.
type TopReturnRule struct{}

func (TopReturnRule) Name() string { return "global_stock_top_return" }

func (r TopReturnRule) Apply(_ context.Context, rc *Context) (domain.PoolResult, error) {
	pool := domain.PoolResult{}
	if len(rc.Catalog) == 0 {
		log.Warn().Str("rule", r.Name()).Msg("no catalog in context")
		return pool, nil
	}
	if len(rc.Snapshots) == 0 {
		// Recoverable: the market source was unavailable this run.
		log.Warn().Str("rule", r.Name()).Msg("no market snapshots available")
		return pool, nil
	}

	topN := rc.Params.GlobalTopN
	if topN <= 0 {
		topN = 10
	}
	maxAbs := rc.Params.MaxAbsReturnPct
	if maxAbs <= 0 {
		maxAbs = 50
	}
	allowed := make(map[string]bool, len(rc.Params.AllowedCountries))
	for _, c := range rc.Params.AllowedCountries {
		allowed[c] = true
	}

	// Keep only the latest snapshot per symbol, filtering countries we do
	// not rank and implausible returns.
	latest := make(map[string]domain.MarketSnapshot)
	for _, s := range rc.Snapshots {
		if s.Symbol == "" {
			continue
		}
		if len(allowed) > 0 && !allowed[s.Country] {
			continue
		}
		if math.Abs(s.ReturnPct) > maxAbs {
			continue
		}
		if prev, ok := latest[s.Symbol]; !ok || s.Date.After(prev.Date) {
			latest[s.Symbol] = s
		}
	}
	if len(latest) == 0 {
		log.Warn().Str("rule", r.Name()).Msg("no valid snapshots after filtering")
		return pool, nil
	}

	byCountry := make(map[string][]domain.MarketSnapshot)
	for _, s := range latest {
		byCountry[s.Country] = append(byCountry[s.Country], s)
	}

	symbolScore := make(map[string]float64)
	for _, snaps := range byCountry {
		sort.Slice(snaps, func(i, j int) bool {
			if snaps[i].ReturnPct != snaps[j].ReturnPct {
				return snaps[i].ReturnPct > snaps[j].ReturnPct
			}
			return snaps[i].Symbol < snaps[j].Symbol
		})
		n := topN
		if n > len(snaps) {
			n = len(snaps)
		}
		for i := 0; i < n; i++ {
			score := float64(topN - i)
			if score > symbolScore[snaps[i].Symbol] {
				symbolScore[snaps[i].Symbol] = score
			}
		}
	}

	for _, c := range rc.Catalog {
		if c.ID == "" || c.Label == "" {
			continue
		}
		if score, ok := symbolScore[c.Label]; ok && score > pool[c.ID] {
			pool[c.ID] = score
		}
	}

	log.Debug().Str("rule", r.Name()).
		Int("symbols", len(symbolScore)).
		Int("candidates", len(pool)).
		Msg("global top-return pool computed")
	return pool, nil
}

// TopLikedRule ranks catalog items by like count, independent of any single
// user's state. It backs the "other" pool.
type TopLikedRule struct{}

func (TopLikedRule) Name() string { return "global_top_liked_content" }

func (r TopLikedRule) Apply(_ context.Context, rc *Context) (domain.PoolResult, error) {
	pool := domain.PoolResult{}
	if len(rc.Catalog) == 0 {
		log.Warn().Str("rule", r.Name()).Msg("no catalog in context")
		return pool, nil
	}

	topN := rc.Params.OtherTopN
	maxN := rc.Params.OtherTopNMax
	if maxN <= 0 {
		maxN = 1000
	}
	if topN <= 0 || topN > maxN {
		log.Warn().Str("rule", r.Name()).Int("top_n", topN).Msg("invalid top_n, using 50")
		topN = 50
	}

	ranked := make([]domain.Curation, 0, len(rc.Catalog))
	for _, c := range rc.Catalog {
		if c.ID != "" {
			ranked = append(ranked, c)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].LikedCount != ranked[j].LikedCount {
			return ranked[i].LikedCount > ranked[j].LikedCount
		}
		return ranked[i].ID < ranked[j].ID
	})
	if topN > len(ranked) {
		topN = len(ranked)
	}
	for _, c := range ranked[:topN] {
		pool[c.ID] = float64(c.LikedCount)
	}

	log.Debug().Str("rule", r.Name()).Int("candidates", len(pool)).Msg("top-liked pool computed")
	return pool, nil
}
