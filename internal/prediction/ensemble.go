// Package prediction combines technical, sentiment, forecast and
// comprehensive signals into one weighted trading action per call.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"airdrop-optimizer/internal/advisory"
	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/market"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/randsrc"
)

// DefaultOverrideProbability is the chance that the ensemble replaces its
// winning action with a uniformly chosen different one.
const DefaultOverrideProbability = 0.05

// DefaultWeights are the per-source vote weights. They sum to 1.
var DefaultWeights = map[SourceName]float64{
	SourceTechnical:     0.3,
	SourceSentiment:     0.2,
	SourceForecast:      0.1,
	SourceComprehensive: 0.4,
}

// ErrNoStore is returned by NewEnsemble when Options.Store is nil.
var ErrNoStore = errors.New("market store is required")

// Decision is the outcome of one ensemble call.
type Decision struct {
	Token      string                    `json:"token"`
	Action     domain.Action             `json:"action"`
	Winner     domain.Action             `json:"winner"` // before any override
	Overridden bool                      `json:"overridden"`
	Votes      []Vote                    `json:"votes"`
	Tally      map[domain.Action]float64 `json:"tally"`
	Price      float64                   `json:"price"`
	Sentiment  float64                   `json:"sentiment"`
}

// Options configures an Ensemble.
type Options struct {
	Store   *market.Store
	Advisor advisory.Client // nil disables advisory calls
	Rand    randsrc.Source

	// OverrideProbability in [0, 1]. Zero disables the override.
	// Negative selects DefaultOverrideProbability.
	OverrideProbability float64

	Weights map[SourceName]float64 // nil selects DefaultWeights
	Logger  *log.Logger
}

// Ensemble is safe for concurrent use. Calls for the same token serialize
// on the market store; calls for different tokens run in parallel.
type Ensemble struct {
	store    *market.Store
	signals  []Signal
	weights  map[SourceName]float64
	rng      randsrc.Source
	override float64
	logger   *log.Logger
}

// NewEnsemble creates an Ensemble with the four standard signal sources.
func NewEnsemble(opts Options) (*Ensemble, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.OverrideProbability > 1 {
		return nil, fmt.Errorf("override probability %v out of range [0, 1]", opts.OverrideProbability)
	}

	e := &Ensemble{
		store:    opts.Store,
		weights:  opts.Weights,
		rng:      opts.Rand,
		override: opts.OverrideProbability,
		logger:   opts.Logger,
	}
	if e.weights == nil {
		e.weights = DefaultWeights
	}
	if e.rng == nil {
		e.rng = randsrc.New()
	}
	if e.override < 0 {
		e.override = DefaultOverrideProbability
	}
	if e.logger == nil {
		e.logger = log.Default()
	}

	advisor := opts.Advisor
	if advisor == nil {
		advisor = advisory.Disabled{}
	}
	e.signals = []Signal{
		technicalSignal{},
		sentimentSignal{advisor: advisor},
		forecastSignal{advisor: advisor, rng: e.rng},
		comprehensiveSignal{advisor: advisor},
	}
	return e, nil
}

// Predict advances the token's market by one step and returns the
// ensemble action. It fails only when ctx is done.
func (e *Ensemble) Predict(ctx context.Context, token string) (domain.Action, error) {
	d, err := e.Decide(ctx, token)
	if err != nil {
		return "", err
	}
	return d.Action, nil
}

// Decide is Predict with the full vote breakdown.
func (e *Ensemble) Decide(ctx context.Context, token string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	in := SignalInput{Token: token}
	var price float64
	err := e.store.With(token, func(ts *market.TokenState) error {
		price = ts.Advance()
		ts.RefreshSentiment(e.store.Now())
		in.Prices = ts.Prices.Values()
		in.Sentiment = ts.Sentiment.Score
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("read market state for %s: %w", token, err)
	}

	// Advisory calls happen outside the token lock.
	votes := make([]Vote, 0, len(e.signals))
	for _, sig := range e.signals {
		v := sig.Vote(ctx, &in)
		v.Weight = e.weights[sig.Name()]
		if v.Fallback {
			e.logger.Printf("%s: %s advisory unavailable, using local rule (%s)", token, sig.Name(), v.Action)
		}
		votes = append(votes, v)
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	tally := Tally(votes)
	winner := Winner(tally)
	action, overridden := e.maybeOverride(winner)
	observability.RecordEnsembleDecision(string(action), overridden)

	return Decision{
		Token:      token,
		Action:     action,
		Winner:     winner,
		Overridden: overridden,
		Votes:      votes,
		Tally:      tally,
		Price:      price,
		Sentiment:  in.Sentiment,
	}, nil
}

func (e *Ensemble) maybeOverride(winner domain.Action) (domain.Action, bool) {
	if e.override <= 0 || !randsrc.Chance(e.rng, e.override) {
		return winner, false
	}
	others := make([]domain.Action, 0, len(domain.Actions)-1)
	for _, a := range domain.Actions {
		if a != winner {
			others = append(others, a)
		}
	}
	return others[e.rng.IntN(len(others))], true
}

// Tally sums vote weights per action. Every action has an entry.
func Tally(votes []Vote) map[domain.Action]float64 {
	tally := make(map[domain.Action]float64, len(domain.Actions))
	for _, a := range domain.Actions {
		tally[a] = 0
	}
	for _, v := range votes {
		if v.Action.IsValid() {
			tally[v.Action] += v.Weight
		}
	}
	for a, w := range tally {
		tally[a] = math.Round(w*1e9) / 1e9
	}
	return tally
}

// Winner returns the highest-weighted action. Ties resolve BUY, then SELL,
// then HOLD.
func Winner(tally map[domain.Action]float64) domain.Action {
	best := domain.Actions[0]
	for _, a := range domain.Actions[1:] {
		if tally[a] > tally[best] {
			best = a
		}
	}
	return best
}
