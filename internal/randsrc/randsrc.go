// Package randsrc provides the pseudo-random source threaded through the
// simulation. Every random decision (jitter, slippage, fills, stop-loss
// triggers, ensemble overrides) draws from a Source so tests can seed or
// script it.
package randsrc

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is a pseudo-random number generator safe for the caller's use.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// NormFloat64 returns a standard normal value.
	NormFloat64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// Locked is a goroutine-safe Source backed by a PCG generator.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a Source seeded from the wall clock.
func New() *Locked {
	return NewSeeded(uint64(time.Now().UnixNano()))
}

// NewSeeded returns a deterministic Source.
func NewSeeded(seed uint64) *Locked {
	return &Locked{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *Locked) NormFloat64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.NormFloat64()
}

func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Uniform returns a value in [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// Normal returns a normally distributed value.
func Normal(src Source, mean, stddev float64) float64 {
	return mean + stddev*src.NormFloat64()
}

// Chance reports true with probability p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

var _ Source = (*Locked)(nil)
