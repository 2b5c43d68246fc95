package market

// PriceSeries is a fixed-capacity ring buffer of prices. Appending to a
// full series evicts the oldest price. Not safe for concurrent use; the
// Store serializes access per token.
type PriceSeries struct {
	buf   []float64
	start int
	n     int
}

// NewPriceSeries creates an empty series holding at most capacity prices.
func NewPriceSeries(capacity int) *PriceSeries {
	if capacity <= 0 {
		capacity = 1
	}
	return &PriceSeries{buf: make([]float64, capacity)}
}

// Append adds a price, evicting the oldest one when full.
func (s *PriceSeries) Append(p float64) {
	if s.n < len(s.buf) {
		s.buf[(s.start+s.n)%len(s.buf)] = p
		s.n++
		return
	}
	s.buf[s.start] = p
	s.start = (s.start + 1) % len(s.buf)
}

// Len returns the number of stored prices.
func (s *PriceSeries) Len() int {
	return s.n
}

// Cap returns the capacity.
func (s *PriceSeries) Cap() int {
	return len(s.buf)
}

// Last returns the newest price.
func (s *PriceSeries) Last() (float64, bool) {
	if s.n == 0 {
		return 0, false
	}
	return s.buf[(s.start+s.n-1)%len(s.buf)], true
}

// Values returns a copy of the prices, oldest first.
func (s *PriceSeries) Values() []float64 {
	return s.Tail(s.n)
}

// Tail returns a copy of the newest n prices, oldest first.
func (s *PriceSeries) Tail(n int) []float64 {
	if n > s.n {
		n = s.n
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	offset := s.n - n
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.start+offset+i)%len(s.buf)]
	}
	return out
}
