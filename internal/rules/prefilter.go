package rules

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
)

// ExcludeSeenRule drops candidates the user has already consumed. When no
// consumption data is available the rule passes everything through.
type ExcludeSeenRule struct{}

func (ExcludeSeenRule) Name() string { return "exclude_seen" }

func (r ExcludeSeenRule) Apply(_ context.Context, user domain.User, candidates []string, rc *Context) ([]string, error) {
	if len(rc.SeenItems) == 0 {
		log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).Msg("no seen items, skipping")
		return candidates, nil
	}

	kept := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, seen := rc.SeenItems[id]; !seen {
			kept = append(kept, id)
		}
	}
	log.Debug().Int64("cust_no", user.CustNo).Str("rule", r.Name()).
		Int("in", len(candidates)).Int("out", len(kept)).Msg("filtered seen items")
	return kept, nil
}
