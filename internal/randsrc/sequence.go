package randsrc

import "sync"

// Sequence is a scripted Source for tests. Float64 cycles through Floats
// (0.5 when empty) and NormFloat64 cycles through Norms (0 when empty).
// IntN derives its value from the next float.
type Sequence struct {
	mu     sync.Mutex
	Floats []float64
	Norms  []float64
	fi, ni int
}

// NewSequence returns a Sequence cycling through floats.
func NewSequence(floats ...float64) *Sequence {
	return &Sequence{Floats: floats}
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Floats) == 0 {
		return 0.5
	}
	v := s.Floats[s.fi%len(s.Floats)]
	s.fi++
	return v
}

func (s *Sequence) NormFloat64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Norms) == 0 {
		return 0
	}
	v := s.Norms[s.ni%len(s.Norms)]
	s.ni++
	return v
}

func (s *Sequence) IntN(n int) int {
	v := int(s.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

var _ Source = (*Sequence)(nil)
