// Package advisory is the contract with the external recommendation
// service consulted by the prediction ensemble, plus an LLM-backed client.
package advisory

import (
	"context"
	"errors"

	"airdrop-optimizer/internal/domain"
)

var (
	// ErrUnavailable is returned on transport failures, non-2xx status,
	// timeouts and rate limiting.
	ErrUnavailable = errors.New("advisory service unavailable")

	// ErrMalformedResponse is returned when a reply does not match the
	// expected JSON shape.
	ErrMalformedResponse = errors.New("malformed advisory response")
)

// Recommendation is a decoded advisory reply.
type Recommendation struct {
	Action      domain.Action `json:"recommendation"`
	Score       float64       `json:"score,omitempty"`      // sentiment or prediction score in [-1, 1]
	Confidence  float64       `json:"confidence,omitempty"` // [0, 1], comprehensive only
	RiskLevel   string        `json:"risk_level,omitempty"`
	Explanation string        `json:"explanation,omitempty"`
}

// Snapshot is the market context sent with a comprehensive request.
type Snapshot struct {
	Prices    []float64 `json:"price_history"`
	ShortMA   *float64  `json:"short_ma,omitempty"`
	LongMA    *float64  `json:"long_ma,omitempty"`
	RSI       float64   `json:"rsi"`
	Sentiment float64   `json:"sentiment"`
}

// Client consults the advisory service. Every method returns an error
// wrapping ErrUnavailable or ErrMalformedResponse on failure.
type Client interface {
	Sentiment(ctx context.Context, token string, headlines []string) (Recommendation, error)
	Forecast(ctx context.Context, token string, prices []float64) (Recommendation, error)
	Recommend(ctx context.Context, token string, snap Snapshot) (Recommendation, error)
}

// Disabled is a Client for deployments without an advisory service.
// Every call fails with ErrUnavailable.
type Disabled struct{}

func (Disabled) Sentiment(context.Context, string, []string) (Recommendation, error) {
	return Recommendation{}, ErrUnavailable
}

func (Disabled) Forecast(context.Context, string, []float64) (Recommendation, error) {
	return Recommendation{}, ErrUnavailable
}

func (Disabled) Recommend(context.Context, string, Snapshot) (Recommendation, error) {
	return Recommendation{}, ErrUnavailable
}

var _ Client = Disabled{}
