package rules

import "fmt"

// Registry maps rule names to rule instances, one namespace per capability.
// It is populated once at startup and read-only afterwards, which makes
// unsynchronized concurrent lookups safe.
type Registry struct {
	global    map[string]GlobalRule
	local     map[string]LocalRule
	preFilter map[string]PreFilterRule
	postRank  map[string]PostRankRule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		global:    make(map[string]GlobalRule),
		local:     make(map[string]LocalRule),
		preFilter: make(map[string]PreFilterRule),
		postRank:  make(map[string]PostRankRule),
	}
}

func checkName(kind, name string, taken bool) error {
	if name == "" {
		return fmt.Errorf("%s rule name must not be empty", kind)
	}
	if taken {
		return fmt.Errorf("%s rule %q already registered", kind, name)
	}
	return nil
}

// RegisterGlobal adds a global rule. Registering an empty or duplicate name
// is an error so rules can never be silently overridden.
func (r *Registry) RegisterGlobal(name string, rule GlobalRule) error {
	_, taken := r.global[name]
	if err := checkName("global", name, taken); err != nil {
		return err
	}
	r.global[name] = rule
	return nil
}

// RegisterLocal adds a per-user rule.
func (r *Registry) RegisterLocal(name string, rule LocalRule) error {
	_, taken := r.local[name]
	if err := checkName("local", name, taken); err != nil {
		return err
	}
	r.local[name] = rule
	return nil
}

// RegisterPreFilter adds a pre-filter rule.
func (r *Registry) RegisterPreFilter(name string, rule PreFilterRule) error {
	_, taken := r.preFilter[name]
	if err := checkName("pre-filter", name, taken); err != nil {
		return err
	}
	r.preFilter[name] = rule
	return nil
}

// RegisterPostRank adds a post-rank rule.
func (r *Registry) RegisterPostRank(name string, rule PostRankRule) error {
	_, taken := r.postRank[name]
	if err := checkName("post-rank", name, taken); err != nil {
		return err
	}
	r.postRank[name] = rule
	return nil
}

// Global resolves a global rule by name. Absence is reported via the bool,
// never an error or panic; callers decide how to handle missing rules.
func (r *Registry) Global(name string) (GlobalRule, bool) {
	rule, ok := r.global[name]
	return rule, ok
}

// Local resolves a local rule by name.
func (r *Registry) Local(name string) (LocalRule, bool) {
	rule, ok := r.local[name]
	return rule, ok
}

// PreFilter resolves a pre-filter rule by name.
func (r *Registry) PreFilter(name string) (PreFilterRule, bool) {
	rule, ok := r.preFilter[name]
	return rule, ok
}

// PostRank resolves a post-rank rule by name.
func (r *Registry) PostRank(name string) (PostRankRule, bool) {
	rule, ok := r.postRank[name]
	return rule, ok
}

// BuildRegistry constructs the process-wide registry with every built-in
// rule registered under its canonical name. Called exactly once at startup;
// the result is handed to the batch and the service by injection.
func BuildRegistry() (*Registry, error) {
	r := NewRegistry()

	type reg struct {
		name string
		err  error
	}
	regs := []reg{
		{"global_stock_top_return", r.RegisterGlobal("global_stock_top_return", TopReturnRule{})},
		{"global_top_liked_content", r.RegisterGlobal("global_top_liked_content", TopLikedRule{})},
		{"local_market_content", r.RegisterLocal("local_market_content", MarketContentRule{})},
		{"local_owned_stock_content", r.RegisterLocal("local_owned_stock_content", OwnedStockRule{})},
		{"local_sector_content", r.RegisterLocal("local_sector_content", SectorContentRule{})},
		{"exclude_seen", r.RegisterPreFilter("exclude_seen", ExcludeSeenRule{})},
		{"heuristic_blend", r.RegisterPostRank("heuristic_blend", HeuristicBlendRule{})},
		{"boost_user_stocks", r.RegisterPostRank("boost_user_stocks", BoostUserStocksRule{})},
		{"boost_top_return_stock", r.RegisterPostRank("boost_top_return_stock", BoostTopReturnRule{})},
		{"score_noise", r.RegisterPostRank("score_noise", ScoreNoiseRule{})},
	}
	for _, g := range regs {
		if g.err != nil {
			return nil, fmt.Errorf("registering %s: %w", g.name, g.err)
		}
	}
	return r, nil
}
