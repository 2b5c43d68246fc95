// Package market holds the simulated market: per-token price and
// sentiment state, the price feed, and synthetic news.
package market

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"airdrop-optimizer/internal/randsrc"
)

const (
	// SeriesCapacity bounds the per-token price history.
	SeriesCapacity = 50

	// WarmupPoints is the history generated when a token is first referenced.
	WarmupPoints = 30

	// SentimentRefreshInterval is the minimum time between sentiment updates.
	SentimentRefreshInterval = 5 * time.Second

	// SentimentBuyThreshold and SentimentSellThreshold split the sentiment bands.
	SentimentBuyThreshold  = 0.3
	SentimentSellThreshold = -0.3
)

// SentimentState is the last-known sentiment of a token.
type SentimentState struct {
	Score     float64   // [-1, 1]
	UpdatedAt time.Time
}

// TokenState is the mutable market state of one token. It is only handed
// out inside Store.With, which holds the token's lock.
type TokenState struct {
	Token     string
	Prices    *PriceSeries
	Sentiment SentimentState

	mu       sync.Mutex
	rng      randsrc.Source
	inUse    int       // guarded by Store.mu
	lastUsed time.Time // guarded by Store.mu
}

// Advance appends one simulated price: last * (1 + N(0, U(0.5%, 2%))).
func (ts *TokenState) Advance() float64 {
	last, ok := ts.Prices.Last()
	if !ok {
		last = BasePrice(ts.Token)
	}
	volatility := randsrc.Uniform(ts.rng, 0.005, 0.02)
	next := last * (1 + randsrc.Normal(ts.rng, 0, volatility))
	if next <= 0 {
		next = last
	}
	ts.Prices.Append(next)
	return next
}

// RefreshSentiment drifts the sentiment by U(-0.2, 0.2) if at least
// SentimentRefreshInterval has passed since the last update.
func (ts *TokenState) RefreshSentiment(now time.Time) bool {
	if now.Sub(ts.Sentiment.UpdatedAt) < SentimentRefreshInterval {
		return false
	}
	next := ts.Sentiment.Score + randsrc.Uniform(ts.rng, -0.2, 0.2)
	ts.Sentiment = SentimentState{
		Score:     math.Max(-1, math.Min(1, next)),
		UpdatedAt: now,
	}
	return true
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Rand   randsrc.Source
	Now    func() time.Time
	Logger *log.Logger
}

// Store owns per-token market state. State is created and warmed up on
// first reference and can be evicted once idle. Access is serialized per
// token; different tokens never contend.
type Store struct {
	mu     sync.Mutex
	tokens map[string]*TokenState

	rng    randsrc.Source
	now    func() time.Time
	logger *log.Logger
}

// NewStore creates an empty Store.
func NewStore(opts StoreOptions) *Store {
	s := &Store{
		tokens: make(map[string]*TokenState),
		rng:    opts.Rand,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if s.rng == nil {
		s.rng = randsrc.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

// With runs fn with exclusive access to token's state.
func (s *Store) With(token string, fn func(ts *TokenState) error) error {
	ts := s.acquire(token)
	defer s.release(ts)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return fn(ts)
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Len returns the number of tracked tokens.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// EvictIdle drops tokens not referenced for ttl and not currently in use.
// Returns the number of evicted tokens.
func (s *Store) EvictIdle(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	evicted := 0
	for token, ts := range s.tokens {
		if ts.inUse == 0 && ts.lastUsed.Before(cutoff) {
			delete(s.tokens, token)
			evicted++
		}
	}
	return evicted
}

// RunJanitor evicts idle tokens every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, every, ttl time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(ttl); n > 0 {
				s.logger.Printf("Evicted %d idle token(s)", n)
			}
		}
	}
}

func (s *Store) acquire(token string) *TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tokens[token]
	if !ok {
		ts = s.newTokenState(token)
		s.tokens[token] = ts
	}
	ts.inUse++
	ts.lastUsed = s.now()
	return ts
}

func (s *Store) release(ts *TokenState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts.inUse--
	ts.lastUsed = s.now()
}

// newTokenState warms up WarmupPoints prices from the base price with a
// random trend (+-1) and volatility U(1%, 5%), and draws an initial
// sentiment U(-1, 1).
func (s *Store) newTokenState(token string) *TokenState {
	ts := &TokenState{
		Token:  token,
		Prices: NewPriceSeries(SeriesCapacity),
		rng:    s.rng,
	}

	trend := 1.0
	if s.rng.IntN(2) == 0 {
		trend = -1.0
	}
	volatility := randsrc.Uniform(s.rng, 0.01, 0.05)

	price := BasePrice(token)
	for i := 0; i < WarmupPoints; i++ {
		next := price * (1 + randsrc.Normal(s.rng, 0.001*trend, volatility))
		if next > 0 {
			price = next
		}
		ts.Prices.Append(price)
	}

	ts.Sentiment = SentimentState{
		Score:     randsrc.Uniform(s.rng, -1, 1),
		UpdatedAt: s.now(),
	}
	return ts
}
