// Package domain holds the core data types shared by the batch candidate
// generator and the online ranking service.
package domain

import "time"

// User is a read-only projection of a platform customer. Profile fields are
// maintained by upstream systems; the stock-code lists act as local fallbacks
// when the portfolio lookup service is unavailable.
type User struct {
	CustNo               int64    `db:"cust_no"`
	Interests            []string `db:"interests"`
	OwnedStockCodes      []string `db:"owned_stock_codes"`
	RecentStockCodes     []string `db:"recent_stock_codes"`
	OnboardingStockCodes []string `db:"onboarding_stock_codes"`
}

// Curation is one recommendable content item. Label carries the stock symbol
// the item is about and is the join key against market snapshots and
// portfolio holdings.
type Curation struct {
	ID           string    `db:"id" json:"id"`
	Label        string    `db:"label" json:"label"`
	Title        string    `db:"title" json:"title"`
	BTopic       string    `db:"btopic" json:"btopic"`
	STopic       string    `db:"stopic" json:"stopic"`
	LikedCount   int       `db:"liked_count" json:"liked_count"`
	ClickCount   int       `db:"click_count" json:"click_count"`
	DislikeCount int       `db:"dislike_count" json:"dislike_count"`
	MarketCap    float64   `db:"market_cap" json:"market_cap"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MarketSnapshot is one per-symbol, per-day market data record.
type MarketSnapshot struct {
	Symbol    string    `db:"symbol"`
	Country   string    `db:"country"`
	Date      time.Time `db:"snapshot_date"`
	ReturnPct float64   `db:"return_pct"`
	Close     float64   `db:"close_price"`
	Volume    float64   `db:"volume"`
}

// PoolResult maps curation id to a raw, pool-local score. Scores from
// different pools are not comparable until normalized.
type PoolResult map[string]float64

// CandidateScoreMap is the per-user merged, weighted output of all pools.
type CandidateScoreMap map[string]float64

// ScoredCuration is one entry of the persisted candidate list.
type ScoredCuration struct {
	CurationID string  `json:"curation_id"`
	Score      float64 `json:"score"`
}

// CandidateDoc is the batch's unit of persistence: one document per user,
// replaced wholesale on every run.
type CandidateDoc struct {
	CustNo       int64            `json:"cust_no"`
	CurationList []ScoredCuration `json:"curation_list"`
	CreateDt     time.Time        `json:"create_dt"`
	ModiDt       time.Time        `json:"modi_dt"`
}

// ScoredItem is the online pipeline's working unit: a candidate id with its
// current score.
type ScoredItem struct {
	ID    string  `json:"curation_id"`
	Score float64 `json:"score"`
}

// Holding is one position reported by the portfolio lookup service.
type Holding struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Portfolio is the portfolio lookup response: the user's positions plus
// sector and country weight breakdowns.
type Portfolio struct {
	Holdings      []Holding          `json:"portfolio_info"`
	SectorWeight  map[string]float64 `json:"sector_weight"`
	CountryWeight map[string]float64 `json:"country_weight"`
}

// Symbols returns the symbols of all holdings, skipping blanks.
func (p Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		if h.Symbol != "" {
			out = append(out, h.Symbol)
		}
	}
	return out
}

// Empty reports whether the portfolio carries no usable data.
func (p Portfolio) Empty() bool {
	return len(p.Holdings) == 0 && len(p.SectorWeight) == 0 && len(p.CountryWeight) == 0
}
