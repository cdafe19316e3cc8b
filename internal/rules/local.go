package rules

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
)

// MarketContentRule selects every item tagged with the fixed market topic.
type MarketContentRule struct{}

func (MarketContentRule) Name() string { return "local_market_content" }

func (r MarketContentRule) Apply(_ context.Context, user domain.User, rc *Context) (domain.PoolResult, error) {
	pool := domain.PoolResult{}
	topic := rc.Params.MarketTopic
	if topic == "" {
		topic = "market"
	}
	for _, c := range rc.Catalog {
		if c.ID != "" && c.BTopic == topic {
			pool[c.ID] = 1
		}
	}
	log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
		Int("candidates", len(pool)).Msg("market topic pool computed")
	return pool, nil
}

// OwnedStockRule selects items whose label matches a symbol the user holds.
// Holdings come from the portfolio lookup service; when that call fails the
// rule falls back to the owned-stock codes cached on the user record rather
// than failing the pool.
type OwnedStockRule struct{}

func (OwnedStockRule) Name() string { return "local_owned_stock_content" }

func (r OwnedStockRule) Apply(ctx context.Context, user domain.User, rc *Context) (domain.PoolResult, error) {
	pool := domain.PoolResult{}

	owned := make(map[string]bool)
	if rc.Portfolio != nil {
		pf, err := rc.Portfolio.Lookup(ctx, user.CustNo)
		if err != nil {
			log.Warn().Err(err).Int64("cust_no", user.CustNo).Str("rule", r.Name()).
				Msg("portfolio lookup failed, using cached owned codes")
		} else {
			for _, sym := range pf.Symbols() {
				owned[sym] = true
			}
		}
	}
	if len(owned) == 0 {
		for _, code := range user.OwnedStockCodes {
			if code != "" {
				owned[code] = true
			}
		}
	}
	if len(owned) == 0 {
		log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).Msg("no owned stocks")
		return pool, nil
	}

	for _, c := range rc.Catalog {
		if c.ID != "" && owned[c.Label] {
			pool[c.ID] = 1
		}
	}
	log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
		Int("owned", len(owned)).Int("candidates", len(pool)).Msg("owned stock pool computed")
	return pool, nil
}

// SectorContentRule selects items whose topic matches a sector the user is
// exposed to according to the portfolio classification. Without portfolio
// data the rule contributes nothing.
type SectorContentRule struct{}

func (SectorContentRule) Name() string { return "local_sector_content" }

func (r SectorContentRule) Apply(ctx context.Context, user domain.User, rc *Context) (domain.PoolResult, error) {
	pool := domain.PoolResult{}
	if rc.Portfolio == nil {
		return pool, nil
	}

	pf, err := rc.Portfolio.Lookup(ctx, user.CustNo)
	if err != nil {
		log.Warn().Err(err).Int64("cust_no", user.CustNo).Str("rule", r.Name()).
			Msg("portfolio lookup failed")
		return pool, nil
	}
	if len(pf.SectorWeight) == 0 {
		log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).Msg("no sector weights")
		return pool, nil
	}

	for _, c := range rc.Catalog {
		if c.ID == "" {
			continue
		}
		if _, ok := pf.SectorWeight[c.BTopic]; ok {
			pool[c.ID] = 1
			continue
		}
		if _, ok := pf.SectorWeight[c.STopic]; ok {
			pool[c.ID] = 1
		}
	}
	log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
		Int("sectors", len(pf.SectorWeight)).Int("candidates", len(pool)).Msg("sector pool computed")
	return pool, nil
}
