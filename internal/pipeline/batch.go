package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
	"github.com/simplers/recsys/internal/metrics"
	"github.com/simplers/recsys/internal/rules"
	"github.com/simplers/recsys/internal/store"
)

// BatchOptions configures one candidate generation run.
type BatchOptions struct {
	Workers              int
	PersistBatchSize     int
	MaxCandidatesPerUser int
	SnapshotDays         int
	Weights              PoolWeights
	GlobalRules          []string
	OtherRules           []string
	LocalRules           []string
	Params               rules.Params
}

// Batch drives one candidate generation cycle: load shared data, compute
// the shared pools once, fan per-user work out over bounded workers, and
// persist candidate documents in grouped writes.
type Batch struct {
	users      store.UserStore
	curations  store.CurationStore
	candidates store.CandidateStore
	snapshots  store.SnapshotStore
	portfolio  rules.PortfolioClient
	registry   *rules.Registry
	opts       BatchOptions
}

// NewBatch wires a batch run from its collaborators.
func NewBatch(users store.UserStore, curations store.CurationStore, candidates store.CandidateStore,
	snapshots store.SnapshotStore, portfolio rules.PortfolioClient, registry *rules.Registry,
	opts BatchOptions) *Batch {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PersistBatchSize <= 0 {
		opts.PersistBatchSize = 100
	}
	return &Batch{
		users:      users,
		curations:  curations,
		candidates: candidates,
		snapshots:  snapshots,
		portfolio:  portfolio,
		registry:   registry,
		opts:       opts,
	}
}

// RunResult summarizes a batch run. UsersFailed counts users whose
// documents could not be persisted; the run itself still succeeds.
type RunResult struct {
	UsersProcessed int
	UsersFailed    int
	Saved          int
	Duration       time.Duration
}

// Run executes one full cycle. Only whole-population data unavailability is
// fatal; degraded market or portfolio data produces reduced-quality pools.
func (b *Batch) Run(ctx context.Context) (RunResult, error) {
	start := time.Now()

	users, err := b.users.ListUsers(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("loading users: %w", err)
	}
	if len(users) == 0 {
		return RunResult{}, fmt.Errorf("no users to process")
	}
	catalog, err := b.curations.ListCurations(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("loading catalog: %w", err)
	}
	if len(catalog) == 0 {
		return RunResult{}, fmt.Errorf("content catalog is empty")
	}
	log.Info().Int("users", len(users)).Int("curations", len(catalog)).Msg("base data loaded")

	snaps, err := b.snapshots.RecentSnapshots(ctx, b.opts.SnapshotDays)
	if err != nil {
		// Recoverable: the global pool degrades to empty.
		log.Warn().Err(err).Msg("market snapshot load failed, continuing with empty window")
		snaps = nil
	}

	rc := &rules.Context{
		Catalog:     catalog,
		CatalogByID: rules.BuildCatalogIndex(catalog),
		Snapshots:   snaps,
		Portfolio:   b.portfolio,
		Params:      b.opts.Params,
	}

	globalPool := RunGlobalRules(ctx, resolveGlobal(b.registry, b.opts.GlobalRules), rc)
	otherPool := RunGlobalRules(ctx, resolveGlobal(b.registry, b.opts.OtherRules), rc)
	localRules := resolveLocal(b.registry, b.opts.LocalRules)
	metrics.BatchPoolSize.WithLabelValues("global").Set(float64(len(globalPool)))
	metrics.BatchPoolSize.WithLabelValues("other").Set(float64(len(otherPool)))
	log.Info().Int("global", len(globalPool)).Int("other", len(otherPool)).Msg("shared pools computed")

	now := time.Now().UTC()
	jobs := make(chan domain.User)
	docs := make(chan domain.CandidateDoc)

	var wg sync.WaitGroup
	for i := 0; i < b.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				local := RunLocalRules(ctx, localRules, user, rc)
				scores := Aggregate(globalPool, local, otherPool, b.opts.Weights, b.opts.MaxCandidatesPerUser)
				metrics.BatchUsersProcessed.Inc()
				if len(scores) == 0 {
					log.Warn().Int64("cust_no", user.CustNo).Msg("no candidates generated")
					continue
				}
				docs <- ToDoc(user.CustNo, scores, now)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, u := range users {
			select {
			case jobs <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(docs)
	}()

	saved, failed := b.persist(ctx, docs)

	res := RunResult{
		UsersProcessed: len(users),
		UsersFailed:    failed,
		Saved:          saved,
		Duration:       time.Since(start),
	}
	metrics.BatchRunSeconds.Set(res.Duration.Seconds())
	log.Info().
		Int("processed", res.UsersProcessed).
		Int("saved", res.Saved).
		Int("failed", res.UsersFailed).
		Dur("duration", res.Duration).
		Msg("batch run completed")
	return res, ctx.Err()
}

// persist drains the document channel in grouped writes. A failed group is
// counted and logged; unrelated groups already committed are unaffected.
func (b *Batch) persist(ctx context.Context, docs <-chan domain.CandidateDoc) (saved, failed int) {
	flush := func(group []domain.CandidateDoc) {
		if len(group) == 0 {
			return
		}
		if err := b.candidates.SaveCandidates(ctx, group); err != nil {
			failed += len(group)
			for range group {
				metrics.BatchUsersFailed.Inc()
			}
			log.Error().Err(err).Int("batch_size", len(group)).Msg("candidate batch write failed")
			return
		}
		saved += len(group)
	}

	group := make([]domain.CandidateDoc, 0, b.opts.PersistBatchSize)
	for doc := range docs {
		group = append(group, doc)
		if len(group) >= b.opts.PersistBatchSize {
			flush(group)
			group = make([]domain.CandidateDoc, 0, b.opts.PersistBatchSize)
		}
	}
	flush(group)
	return saved, failed
}
