// Package portfolio implements the client for the external portfolio
// lookup service. The service reports a user's held instruments plus
// sector/country weight breakdowns; every transport failure degrades to an
// error the rules turn into an empty contribution.
package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/simplers/recsys/internal/domain"
)

const lookupPath = "/api/mu800"

// maxCustNoDigits bounds the customer number format accepted by the
// external API.
const maxCustNoDigits = 20

// Config holds the client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	TopN       int
	RatePerSec float64
	Burst      int
}

// Client calls the portfolio lookup service with a bounded timeout, a rate
// limiter, and a circuit breaker so a misbehaving upstream cannot stall
// batch workers or online requests.
type Client struct {
	http    *http.Client
	baseURL string
	topN    int
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// New builds a portfolio client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 50
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RatePerSec)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "portfolio-lookup",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("portfolio breaker state changed")
		},
	})

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		topN:    cfg.TopN,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

type lookupRequest struct {
	CustomerNo string   `json:"customer_no"`
	TargetType []string `json:"target_type"`
	TopN       int      `json:"top_n"`
}

// validCustNo accepts positive customer numbers of at most 20 digits.
func validCustNo(custNo int64) bool {
	if custNo <= 0 {
		return false
	}
	return len(strconv.FormatInt(custNo, 10)) <= maxCustNoDigits
}

// Lookup fetches one user's portfolio. Callers must treat any error as
// "no portfolio data" per the degradation contract.
func (c *Client) Lookup(ctx context.Context, custNo int64) (domain.Portfolio, error) {
	if !validCustNo(custNo) {
		return domain.Portfolio{}, fmt.Errorf("invalid customer number %d", custNo)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Portfolio{}, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doLookup(ctx, custNo)
	})
	if err != nil {
		return domain.Portfolio{}, err
	}
	return result.(domain.Portfolio), nil
}

func (c *Client) doLookup(ctx context.Context, custNo int64) (domain.Portfolio, error) {
	payload, err := json.Marshal(lookupRequest{
		CustomerNo: strconv.FormatInt(custNo, 10),
		TargetType: []string{"stock", "sector"},
		TopN:       c.topN,
	})
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("encoding lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+lookupPath, bytes.NewReader(payload))
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("building lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio lookup call: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().Int64("cust_no", custNo).Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).Msg("portfolio lookup response")

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Portfolio{}, fmt.Errorf("portfolio lookup status %d", resp.StatusCode)
	}

	var pf domain.Portfolio
	if err := json.NewDecoder(resp.Body).Decode(&pf); err != nil {
		return domain.Portfolio{}, fmt.Errorf("decoding portfolio response: %w", err)
	}
	return pf, nil
}
