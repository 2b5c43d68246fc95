package market

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"airdrop-optimizer/internal/randsrc"
)

// DefaultBasePrice is used for tokens without a configured base price.
const DefaultBasePrice = 1.0

// PriceJitter is the maximum relative deviation of a simulated quote.
const PriceJitter = 0.02

var basePrices = map[string]float64{
	"BTC": 50000,
	"ETH": 3000,
	"SOL": 100,
	"ABC": 10,
	"XYZ": 5,
}

// BasePrice returns the reference price of token.
func BasePrice(token string) float64 {
	if p, ok := basePrices[strings.ToUpper(token)]; ok {
		return p
	}
	return DefaultBasePrice
}

// PriceFeed quotes the current market price of a token.
type PriceFeed interface {
	Price(ctx context.Context, token string) (float64, error)
}

// Simulator quotes base price with uniform jitter of PriceJitter.
type Simulator struct {
	rng randsrc.Source
}

// NewSimulator creates a price simulator.
func NewSimulator(rng randsrc.Source) *Simulator {
	if rng == nil {
		rng = randsrc.New()
	}
	return &Simulator{rng: rng}
}

// Price returns base * (1 + U(-2%, +2%)) rounded to cents.
func (s *Simulator) Price(ctx context.Context, token string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	variation := randsrc.Uniform(s.rng, -PriceJitter, PriceJitter)
	p := BasePrice(token) * (1 + variation)
	return decimal.NewFromFloat(p).Round(2).InexactFloat64(), nil
}

var _ PriceFeed = (*Simulator)(nil)
