// Package pipeline implements the batch candidate generator and the online
// ranking pipeline on top of the rule set.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
	"github.com/simplers/recsys/internal/rules"
)

// applyGuarded runs fn converting a panic into an error so a defective rule
// degrades to an empty contribution instead of taking down the run.
func applyGuarded(name string, fn func() (domain.PoolResult, error)) (pool domain.PoolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pool, err = nil, fmt.Errorf("rule %s panicked: %v", name, rec)
		}
	}()
	return fn()
}

// resolveGlobal maps configured rule names to instances, logging names the
// registry does not know instead of failing.
func resolveGlobal(reg *rules.Registry, names []string) []rules.GlobalRule {
	out := make([]rules.GlobalRule, 0, len(names))
	for _, name := range names {
		rule, ok := reg.Global(name)
		if !ok {
			log.Warn().Str("rule", name).Msg("unknown global rule in config, skipping")
			continue
		}
		out = append(out, rule)
	}
	return out
}

func resolveLocal(reg *rules.Registry, names []string) []rules.LocalRule {
	out := make([]rules.LocalRule, 0, len(names))
	for _, name := range names {
		rule, ok := reg.Local(name)
		if !ok {
			log.Warn().Str("rule", name).Msg("unknown local rule in config, skipping")
			continue
		}
		out = append(out, rule)
	}
	return out
}

// RunGlobalRules computes a shared pool by running the given global rules
// and unioning their results with score accumulation. Each rule's failure
// is isolated: it contributes nothing and the others still apply.
func RunGlobalRules(ctx context.Context, ruleSet []rules.GlobalRule, rc *rules.Context) domain.PoolResult {
	pool := domain.PoolResult{}
	for _, rule := range ruleSet {
		result, err := applyGuarded(rule.Name(), func() (domain.PoolResult, error) {
			return rule.Apply(ctx, rc)
		})
		if err != nil {
			log.Error().Err(err).Str("rule", rule.Name()).Msg("global rule failed")
			continue
		}
		for id, score := range result {
			pool[id] += score
		}
	}
	return pool
}

// RunLocalRules computes one user's local pool. An item surfaced by several
// local rules accumulates score rather than being replaced.
func RunLocalRules(ctx context.Context, ruleSet []rules.LocalRule, user domain.User, rc *rules.Context) domain.PoolResult {
	pool := domain.PoolResult{}
	for _, rule := range ruleSet {
		result, err := applyGuarded(rule.Name(), func() (domain.PoolResult, error) {
			return rule.Apply(ctx, user, rc)
		})
		if err != nil {
			log.Error().Err(err).Str("rule", rule.Name()).Int64("cust_no", user.CustNo).
				Msg("local rule failed")
			continue
		}
		for id, score := range result {
			pool[id] += score
		}
	}
	return pool
}
