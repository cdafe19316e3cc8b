package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
	"github.com/simplers/recsys/internal/metrics"
	"github.com/simplers/recsys/internal/rules"
	"github.com/simplers/recsys/internal/store"
)

// RankerOptions configures the online ranking pipeline.
type RankerOptions struct {
	PreFilterRules []string
	PostRankRules  []string
	RecommendCount int
	SeenDays       int
	FallbackLimit  int
	Params         rules.Params
}

// Ranker serves one ranked recommendation list per request:
// LOAD_CANDIDATES → PRE_FILTER → POST_RANK → SORT → RESPOND.
type Ranker struct {
	users      store.UserStore
	curations  store.CurationStore
	candidates store.CandidateStore
	snapshots  store.SnapshotStore
	seen       store.SeenStore
	fallback   store.FallbackSource
	registry   *rules.Registry
	opts       RankerOptions

	// newRand builds the per-request noise source; injectable for tests.
	newRand func(seed int64) *rand.Rand
}

// NewRanker wires the online pipeline from its collaborators.
func NewRanker(users store.UserStore, curations store.CurationStore, candidates store.CandidateStore,
	snapshots store.SnapshotStore, seen store.SeenStore, fallback store.FallbackSource,
	registry *rules.Registry, opts RankerOptions) *Ranker {
	if opts.RecommendCount <= 0 {
		opts.RecommendCount = 20
	}
	if opts.SeenDays <= 0 {
		opts.SeenDays = 3
	}
	if opts.FallbackLimit <= 0 {
		opts.FallbackLimit = 100
	}
	return &Ranker{
		users:      users,
		curations:  curations,
		candidates: candidates,
		snapshots:  snapshots,
		seen:       seen,
		fallback:   fallback,
		registry:   registry,
		opts:       opts,
		newRand:    func(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) },
	}
}

// SetRandSource overrides the per-request noise source constructor. Tests
// use it to disable or pin randomness.
func (r *Ranker) SetRandSource(fn func(seed int64) *rand.Rand) {
	r.newRand = fn
}

// Recommend returns the ranked list for one user. The second return value
// reports whether the curated fallback supplied the candidates. It fails
// only when both the candidate store and the curated fallback are
// unavailable; everything downstream degrades.
func (r *Ranker) Recommend(ctx context.Context, custNo int64) ([]domain.ScoredItem, bool, error) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	items, usedFallback, err := r.loadCandidates(ctx, custNo)
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		log.Warn().Int64("cust_no", custNo).Msg("no candidates from store or fallback")
		return []domain.ScoredItem{}, usedFallback, nil
	}

	user, rc := r.buildContext(ctx, custNo, items)

	items = r.preFilter(ctx, user, items, rc)
	if len(items) == 0 {
		log.Warn().Int64("cust_no", custNo).Msg("no candidates left after pre-filter")
		return []domain.ScoredItem{}, usedFallback, nil
	}

	items = r.postRank(ctx, user, items, rc)

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > r.opts.RecommendCount {
		items = items[:r.opts.RecommendCount]
	}

	log.Info().Int64("cust_no", custNo).Int("items", len(items)).
		Bool("fallback", usedFallback).
		Dur("duration", time.Since(start)).
		Msg("recommendations served")
	return items, usedFallback, nil
}

// loadCandidates fetches the stored candidate document, falling back to the
// curated list with a neutral score when the document is absent or empty so
// the rest of the pipeline never special-cases "no candidates."
func (r *Ranker) loadCandidates(ctx context.Context, custNo int64) ([]domain.ScoredItem, bool, error) {
	var storeErr error
	doc, err := r.candidates.GetCandidates(ctx, custNo)
	switch {
	case err == nil:
		if len(doc.CurationList) > 0 {
			items := make([]domain.ScoredItem, 0, len(doc.CurationList))
			for _, sc := range doc.CurationList {
				items = append(items, domain.ScoredItem{ID: sc.CurationID, Score: sc.Score})
			}
			return items, false, nil
		}
	case errors.Is(err, store.ErrNotFound):
		log.Debug().Int64("cust_no", custNo).Msg("no stored candidates")
	default:
		storeErr = err
		log.Error().Err(err).Int64("cust_no", custNo).Msg("candidate store read failed")
	}

	curated, err := r.fallback.Curated(ctx, r.opts.FallbackLimit)
	if err != nil {
		if storeErr != nil {
			return nil, false, fmt.Errorf("candidate store and curated fallback both unavailable: %w", err)
		}
		log.Error().Err(err).Int64("cust_no", custNo).Msg("curated fallback read failed")
		return []domain.ScoredItem{}, true, nil
	}
	metrics.FallbackServed.Inc()
	return curated, true, nil
}

// buildContext assembles the per-request rule context. Every lookup here
// degrades to an empty value on failure.
func (r *Ranker) buildContext(ctx context.Context, custNo int64, items []domain.ScoredItem) (domain.User, *rules.Context) {
	user, err := r.users.GetUser(ctx, custNo)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Int64("cust_no", custNo).Msg("user profile load failed")
		}
		user = domain.User{CustNo: custNo}
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	meta, err := r.curations.GetByIDs(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Int64("cust_no", custNo).Msg("content metadata load failed")
		meta = map[string]domain.Curation{}
	}

	seen, err := r.seen.SeenItems(ctx, custNo, r.opts.SeenDays)
	if err != nil {
		log.Warn().Err(err).Int64("cust_no", custNo).Msg("seen items load failed")
		seen = nil
	}

	var returns map[string]float64
	if len(user.OwnedStockCodes) > 0 {
		returns, err = r.snapshots.LatestReturns(ctx, user.OwnedStockCodes)
		if err != nil {
			log.Warn().Err(err).Int64("cust_no", custNo).Msg("owned stock returns load failed")
			returns = nil
		}
	}

	rc := &rules.Context{
		CatalogByID:     meta,
		ReturnsBySymbol: returns,
		SeenItems:       seen,
		Rand:            r.newRand(custNo),
		Params:          r.opts.Params,
	}
	return user, rc
}

// preFilter applies the configured pre-filter rules in order. Rules only
// remove: the pipeline intersects each rule's output with its input so a
// defective rule can never add or swap candidates. Rule errors and panics
// leave the candidate set unchanged.
func (r *Ranker) preFilter(ctx context.Context, user domain.User, items []domain.ScoredItem, rc *rules.Context) []domain.ScoredItem {
	for _, name := range r.opts.PreFilterRules {
		rule, ok := r.registry.PreFilter(name)
		if !ok {
			log.Warn().Str("rule", name).Msg("unknown pre-filter rule in config, skipping")
			continue
		}

		ids := make([]string, 0, len(items))
		inSet := make(map[string]bool, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
			inSet[it.ID] = true
		}

		out, err := applyPreGuarded(ctx, rule, user, ids, rc)
		if err != nil {
			metrics.RuleFailures.WithLabelValues("pre_filter", name).Inc()
			log.Error().Err(err).Str("rule", name).Int64("cust_no", user.CustNo).
				Msg("pre-filter rule failed, passing candidates through")
			continue
		}

		keep := make(map[string]bool, len(out))
		for _, id := range out {
			if inSet[id] {
				keep[id] = true
			}
		}
		filtered := make([]domain.ScoredItem, 0, len(keep))
		for _, it := range items {
			if keep[it.ID] {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	return items
}

// postRank applies the configured post-rank rules in order. A rule that
// errors, panics, or changes the candidate identity set is discarded for
// this request.
func (r *Ranker) postRank(ctx context.Context, user domain.User, items []domain.ScoredItem, rc *rules.Context) []domain.ScoredItem {
	for _, name := range r.opts.PostRankRules {
		rule, ok := r.registry.PostRank(name)
		if !ok {
			log.Warn().Str("rule", name).Msg("unknown post-rank rule in config, skipping")
			continue
		}

		out, err := applyPostGuarded(ctx, rule, user, items, rc)
		if err != nil {
			metrics.RuleFailures.WithLabelValues("post_rank", name).Inc()
			log.Error().Err(err).Str("rule", name).Int64("cust_no", user.CustNo).
				Msg("post-rank rule failed, keeping previous scores")
			continue
		}
		if !sameIDSet(items, out) {
			metrics.RuleFailures.WithLabelValues("post_rank", name).Inc()
			log.Error().Str("rule", name).Int64("cust_no", user.CustNo).
				Msg("post-rank rule changed the candidate set, discarding its output")
			continue
		}
		items = out
	}
	return items
}

func applyPreGuarded(ctx context.Context, rule rules.PreFilterRule, user domain.User, ids []string, rc *rules.Context) (out []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("rule %s panicked: %v", rule.Name(), rec)
		}
	}()
	return rule.Apply(ctx, user, ids, rc)
}

func applyPostGuarded(ctx context.Context, rule rules.PostRankRule, user domain.User, items []domain.ScoredItem, rc *rules.Context) (out []domain.ScoredItem, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("rule %s panicked: %v", rule.Name(), rec)
		}
	}()
	return rule.Apply(ctx, user, items, rc)
}

func sameIDSet(a, b []domain.ScoredItem) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, it := range a {
		set[it.ID]++
	}
	for _, it := range b {
		set[it.ID]--
		if set[it.ID] < 0 {
			return false
		}
	}
	return true
}
