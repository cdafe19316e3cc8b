package rules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
)

// minMax scales values into [0,1]. A constant or single-element series
// normalizes to all-ones so it neither divides by zero nor drags scores down.
func minMax(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(values))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// HeuristicBlendRule recomputes scores from a blend of market-cap signal,
// content recency, and a bounded random component, each normalized to [0,1]
// and combined with the incoming score via the configured
// {heuristic_weight, raw_score_weight} pair.
type HeuristicBlendRule struct{}

func (HeuristicBlendRule) Name() string { return "heuristic_blend" }

func (r HeuristicBlendRule) Apply(_ context.Context, user domain.User, items []domain.ScoredItem, rc *Context) ([]domain.ScoredItem, error) {
	if len(items) == 0 {
		return items, nil
	}

	now := time.Now().UTC()
	caps := make([]float64, len(items))
	ages := make([]float64, len(items))
	rnds := make([]float64, len(items))
	maxAge := 0.0
	for i, it := range items {
		meta := rc.CatalogByID[it.ID]
		caps[i] = meta.MarketCap
		if meta.CreatedAt.IsZero() {
			ages[i] = -1 // resolved to worst-case below
		} else {
			ages[i] = now.Sub(meta.CreatedAt).Seconds()
			if ages[i] > maxAge {
				maxAge = ages[i]
			}
		}
		if rc.Rand != nil {
			rnds[i] = rc.Rand.Float64()
		}
	}
	// Items with no creation timestamp rank behind the oldest known item.
	for i := range ages {
		if ages[i] < 0 {
			ages[i] = maxAge + 86400
		}
	}

	normCap := minMax(caps)
	normAge := minMax(ages)
	normRnd := minMax(rnds)

	wc, wr, wn := rc.Params.MarketCapWeight, rc.Params.RecencyWeight, rc.Params.RandomWeight
	wsum := wc + wr + wn
	if wsum <= 0 {
		wc, wr, wn, wsum = 1, 1, 1, 3
	}
	hw, sw := rc.Params.HeuristicWeight, rc.Params.RawScoreWeight

	out := make([]domain.ScoredItem, len(items))
	for i, it := range items {
		recency := 1 - normAge[i] // newer is better
		heuristic := (wc*normCap[i] + wr*recency + wn*normRnd[i]) / wsum
		out[i] = domain.ScoredItem{ID: it.ID, Score: hw*heuristic + sw*it.Score}
	}
	log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
		Int("items", len(out)).Msg("heuristic blend applied")
	return out, nil
}

// BoostUserStocksRule multiplies scores of items matching the user's owned,
// recent, interest, or onboarding symbols. Overlapping classes take the
// single largest boost rather than stacking.
type BoostUserStocksRule struct{}

func (BoostUserStocksRule) Name() string { return "boost_user_stocks" }

func (r BoostUserStocksRule) Apply(_ context.Context, user domain.User, items []domain.ScoredItem, rc *Context) ([]domain.ScoredItem, error) {
	toSet := func(codes []string) map[string]bool {
		if len(codes) == 0 {
			return nil
		}
		m := make(map[string]bool, len(codes))
		for _, c := range codes {
			if c != "" {
				m[c] = true
			}
		}
		return m
	}
	owned := toSet(user.OwnedStockCodes)
	recent := toSet(user.RecentStockCodes)
	interest := toSet(user.Interests)
	onboarding := toSet(user.OnboardingStockCodes)
	if owned == nil && recent == nil && interest == nil && onboarding == nil {
		log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).Msg("no user stock lists, skipping")
		return items, nil
	}

	boosted := 0
	out := make([]domain.ScoredItem, len(items))
	for i, it := range items {
		label := rc.CatalogByID[it.ID].Label
		boost := 1.0
		if owned[label] && rc.Params.OwnedBoost > boost {
			boost = rc.Params.OwnedBoost
		}
		if recent[label] && rc.Params.RecentBoost > boost {
			boost = rc.Params.RecentBoost
		}
		if interest[label] && rc.Params.InterestBoost > boost {
			boost = rc.Params.InterestBoost
		}
		if onboarding[label] && rc.Params.OnboardingBoost > boost {
			boost = rc.Params.OnboardingBoost
		}
		if boost > 1.0 {
			boosted++
		}
		out[i] = domain.ScoredItem{ID: it.ID, Score: it.Score * boost}
	}
	log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
		Int("boosted", boosted).Msg("user stock boosts applied")
	return out, nil
}

// BoostTopReturnRule boosts items about the user's single highest-return
// owned symbol. Without return data for any owned symbol it is a no-op.
type BoostTopReturnRule struct{}

func (BoostTopReturnRule) Name() string { return "boost_top_return_stock" }

func (r BoostTopReturnRule) Apply(_ context.Context, user domain.User, items []domain.ScoredItem, rc *Context) ([]domain.ScoredItem, error) {
	if len(rc.ReturnsBySymbol) == 0 || len(user.OwnedStockCodes) == 0 {
		return items, nil
	}

	topSymbol := ""
	best := 0.0
	for _, sym := range user.OwnedStockCodes {
		ret, ok := rc.ReturnsBySymbol[sym]
		if !ok {
			continue
		}
		if topSymbol == "" || ret > best || (ret == best && sym < topSymbol) {
			topSymbol, best = sym, ret
		}
	}
	if topSymbol == "" {
		log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
			Msg("no return data for owned symbols")
		return items, nil
	}

	factor := rc.Params.TopReturnBoost
	if factor <= 0 {
		factor = 2.0
	}
	out := make([]domain.ScoredItem, len(items))
	boosted := 0
	for i, it := range items {
		score := it.Score
		if rc.CatalogByID[it.ID].Label == topSymbol {
			score *= factor
			boosted++
		}
		out[i] = domain.ScoredItem{ID: it.ID, Score: score}
	}
	log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
		Str("symbol", topSymbol).Int("boosted", boosted).Msg("top return boost applied")
	return out, nil
}

// ScoreNoiseRule adds a small uniform perturbation to every score, enough to
// break exact ties without materially reordering. The noise source is the
// per-request seeded generator on the context; without one the rule is a
// no-op so batch-style deterministic runs stay deterministic.
type ScoreNoiseRule struct{}

func (ScoreNoiseRule) Name() string { return "score_noise" }

func (r ScoreNoiseRule) Apply(_ context.Context, user domain.User, items []domain.ScoredItem, rc *Context) ([]domain.ScoredItem, error) {
	if rc.Rand == nil {
		return items, nil
	}
	level := rc.Params.NoiseLevel
	if level <= 0 {
		level = 0.01
	}
	out := make([]domain.ScoredItem, len(items))
	for i, it := range items {
		out[i] = domain.ScoredItem{ID: it.ID, Score: it.Score + rc.Rand.Float64()*level}
	}
	return out, nil
}
