package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplers/recsys/internal/domain"
	"github.com/simplers/recsys/internal/rules"
	"github.com/simplers/recsys/internal/store"
)

type fakeCandidateReader struct {
	docs map[int64]domain.CandidateDoc
	err  error
}

func (f *fakeCandidateReader) GetCandidates(_ context.Context, custNo int64) (domain.CandidateDoc, error) {
	if f.err != nil {
		return domain.CandidateDoc{}, f.err
	}
	doc, ok := f.docs[custNo]
	if !ok {
		return domain.CandidateDoc{}, store.ErrNotFound
	}
	return doc, nil
}

func (f *fakeCandidateReader) SaveCandidates(context.Context, []domain.CandidateDoc) error {
	return errors.New("read-only")
}

type fakeSeen struct {
	items map[string]struct{}
	err   error
}

func (f *fakeSeen) SeenItems(context.Context, int64, int) (map[string]struct{}, error) {
	return f.items, f.err
}

type fakeFallback struct {
	items []domain.ScoredItem
	err   error
}

func (f *fakeFallback) Curated(_ context.Context, limit int) ([]domain.ScoredItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func storedDoc(custNo int64, scored ...domain.ScoredCuration) domain.CandidateDoc {
	return domain.CandidateDoc{CustNo: custNo, CurationList: scored}
}

func newTestRanker(t *testing.T, users *fakeUsers, curations *fakeCurations,
	candidates store.CandidateStore, seen *fakeSeen, fallback *fakeFallback,
	opts RankerOptions) *Ranker {
	t.Helper()
	registry, err := rules.BuildRegistry()
	require.NoError(t, err)
	r := NewRanker(users, curations, candidates, &fakeSnapshots{}, seen, fallback, registry, opts)
	// Pin the noise source so ordering assertions are stable.
	r.SetRandSource(func(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) })
	return r
}

func TestRecommendServesStoredCandidatesRanked(t *testing.T) {
	candidates := &fakeCandidateReader{docs: map[int64]domain.CandidateDoc{
		7: storedDoc(7,
			domain.ScoredCuration{CurationID: "c1", Score: 0.9},
			domain.ScoredCuration{CurationID: "c2", Score: 0.5},
			domain.ScoredCuration{CurationID: "c3", Score: 0.7},
		),
	}}
	r := newTestRanker(t,
		&fakeUsers{users: []domain.User{{CustNo: 7}}},
		&fakeCurations{catalog: testCatalog()},
		candidates, &fakeSeen{}, &fakeFallback{},
		RankerOptions{RecommendCount: 10},
	)

	items, fallback, err := r.Recommend(context.Background(), 7)
	require.NoError(t, err)

	assert.False(t, fallback)
	require.Len(t, items, 3)
	assert.Equal(t, "c1", items[0].ID)
	assert.Equal(t, "c3", items[1].ID)
	assert.Equal(t, "c2", items[2].ID)
}

func TestRecommendTruncatesToRequestedCount(t *testing.T) {
	list := make([]domain.ScoredCuration, 30)
	for i := range list {
		list[i] = domain.ScoredCuration{CurationID: string(rune('a' + i)), Score: float64(30 - i)}
	}
	candidates := &fakeCandidateReader{docs: map[int64]domain.CandidateDoc{1: storedDoc(1, list...)}}

	r := newTestRanker(t,
		&fakeUsers{users: []domain.User{{CustNo: 1}}},
		&fakeCurations{},
		candidates, &fakeSeen{}, &fakeFallback{},
		RankerOptions{RecommendCount: 5},
	)

	items, _, err := r.Recommend(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestRecommendFallsBackWhenNoStoredCandidates(t *testing.T) {
	fallback := &fakeFallback{items: []domain.ScoredItem{
		{ID: "f1"}, {ID: "f2"}, {ID: "f3"}, {ID: "f4"}, {ID: "f5"},
	}}
	r := newTestRanker(t,
		&fakeUsers{users: []domain.User{{CustNo: 99}}},
		&fakeCurations{},
		&fakeCandidateReader{}, &fakeSeen{}, fallback,
		RankerOptions{RecommendCount: 5},
	)

	items, usedFallback, err := r.Recommend(context.Background(), 99)
	require.NoError(t, err)

	assert.True(t, usedFallback)
	assert.Len(t, items, 5)
}

func TestRecommendErrorsWhenBothSourcesDown(t *testing.T) {
	r := newTestRanker(t,
		&fakeUsers{},
		&fakeCurations{},
		&fakeCandidateReader{err: errors.New("db down")},
		&fakeSeen{},
		&fakeFallback{err: errors.New("also down")},
		RankerOptions{},
	)

	_, _, err := r.Recommend(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both unavailable")
}

func TestRecommendEmptyWhenOnlyFallbackFails(t *testing.T) {
	// Stored candidates absent (not an error) and fallback down: serve empty.
	r := newTestRanker(t,
		&fakeUsers{},
		&fakeCurations{},
		&fakeCandidateReader{},
		&fakeSeen{},
		&fakeFallback{err: errors.New("down")},
		RankerOptions{},
	)

	items, _, err := r.Recommend(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRecommendExcludesSeenItems(t *testing.T) {
	candidates := &fakeCandidateReader{docs: map[int64]domain.CandidateDoc{
		1: storedDoc(1,
			domain.ScoredCuration{CurationID: "c1", Score: 0.9},
			domain.ScoredCuration{CurationID: "c2", Score: 0.8},
			domain.ScoredCuration{CurationID: "c3", Score: 0.7},
		),
	}}
	r := newTestRanker(t,
		&fakeUsers{users: []domain.User{{CustNo: 1}}},
		&fakeCurations{catalog: testCatalog()},
		candidates,
		&fakeSeen{items: map[string]struct{}{"c1": {}}},
		&fakeFallback{},
		RankerOptions{PreFilterRules: []string{"exclude_seen"}, RecommendCount: 10},
	)

	items, _, err := r.Recommend(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, items, 2)
	for _, it := range items {
		assert.NotEqual(t, "c1", it.ID)
	}
}

func TestRecommendPostRankBoostReorders(t *testing.T) {
	candidates := &fakeCandidateReader{docs: map[int64]domain.CandidateDoc{
		1: storedDoc(1,
			domain.ScoredCuration{CurationID: "c1", Score: 0.50}, // label 005930
			domain.ScoredCuration{CurationID: "c2", Score: 0.55}, // label AAPL, owned
		),
	}}
	r := newTestRanker(t,
		&fakeUsers{users: []domain.User{{CustNo: 1, OwnedStockCodes: []string{"AAPL"}}}},
		&fakeCurations{catalog: testCatalog()},
		candidates, &fakeSeen{}, &fakeFallback{},
		RankerOptions{
			PostRankRules:  []string{"boost_user_stocks"},
			RecommendCount: 10,
			Params:         rules.Params{OwnedBoost: 1.5},
		},
	)

	items, _, err := r.Recommend(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "c2", items[0].ID)
	assert.InDelta(t, 0.825, items[0].Score, 1e-9)
}

func TestRecommendUnknownRuleNamesAreSkipped(t *testing.T) {
	candidates := &fakeCandidateReader{docs: map[int64]domain.CandidateDoc{
		1: storedDoc(1, domain.ScoredCuration{CurationID: "c1", Score: 1}),
	}}
	r := newTestRanker(t,
		&fakeUsers{users: []domain.User{{CustNo: 1}}},
		&fakeCurations{},
		candidates, &fakeSeen{}, &fakeFallback{},
		RankerOptions{
			PreFilterRules: []string{"no_such_filter"},
			PostRankRules:  []string{"no_such_ranker"},
			RecommendCount: 10,
		},
	)

	items, _, err := r.Recommend(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRecommendDeterministicForSameUser(t *testing.T) {
	candidates := &fakeCandidateReader{docs: map[int64]domain.CandidateDoc{
		1: storedDoc(1,
			domain.ScoredCuration{CurationID: "c1", Score: 0.5},
			domain.ScoredCuration{CurationID: "c2", Score: 0.5},
			domain.ScoredCuration{CurationID: "c3", Score: 0.5},
		),
	}}
	r := newTestRanker(t,
		&fakeUsers{users: []domain.User{{CustNo: 1}}},
		&fakeCurations{catalog: testCatalog()},
		candidates, &fakeSeen{}, &fakeFallback{},
		RankerOptions{
			PostRankRules:  []string{"score_noise"},
			RecommendCount: 10,
			Params:         rules.Params{NoiseLevel: 0.01},
		},
	)

	first, _, err := r.Recommend(context.Background(), 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := r.Recommend(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type faultyPostRank struct{ mode string }

func (f faultyPostRank) Name() string { return "faulty" }

func (f faultyPostRank) Apply(_ context.Context, _ domain.User, items []domain.ScoredItem, _ *rules.Context) ([]domain.ScoredItem, error) {
	switch f.mode {
	case "panic":
		panic("broken rule")
	case "mutate":
		return append(items[:0:0], domain.ScoredItem{ID: "injected", Score: 99}), nil
	default:
		return nil, errors.New("rule error")
	}
}

func TestRecommendIsolatesFaultyPostRankRules(t *testing.T) {
	for _, mode := range []string{"panic", "mutate", "error"} {
		t.Run(mode, func(t *testing.T) {
			registry := rules.NewRegistry()
			require.NoError(t, registry.RegisterPostRank("faulty", faultyPostRank{mode: mode}))

			candidates := &fakeCandidateReader{docs: map[int64]domain.CandidateDoc{
				1: storedDoc(1,
					domain.ScoredCuration{CurationID: "c1", Score: 0.9},
					domain.ScoredCuration{CurationID: "c2", Score: 0.4},
				),
			}}
			r := NewRanker(&fakeUsers{}, &fakeCurations{}, candidates, &fakeSnapshots{},
				&fakeSeen{}, &fakeFallback{}, registry,
				RankerOptions{PostRankRules: []string{"faulty"}, RecommendCount: 10})

			items, _, err := r.Recommend(context.Background(), 1)
			require.NoError(t, err)

			// The faulty rule's output is discarded; scores stay as loaded.
			require.Len(t, items, 2)
			assert.Equal(t, "c1", items[0].ID)
			assert.InDelta(t, 0.9, items[0].Score, 1e-9)
		})
	}
}
