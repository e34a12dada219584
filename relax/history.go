package relax

// history holds the bounded L-BFGS memory: step displacements s, negated
// force differences y (both flat per-atom tensors) and per-system curvature
// terms rho. Fixed-capacity ring, oldest entry evicted first.
type history struct {
	s, y [][]float64
	rho  [][]float64
	head int
	size int
}

func newHistory(capacity int) *history {
	return &history{
		s:   make([][]float64, capacity),
		y:   make([][]float64, capacity),
		rho: make([][]float64, capacity),
	}
}

func (h *history) Len() int { return h.size }

func (h *history) Push(s, y, rho []float64) {
	at := h.head
	h.s[at], h.y[at], h.rho[at] = s, y, rho
	h.head = (h.head + 1) % len(h.s)
	if h.size < len(h.s) {
		h.size++
	}
}

// At returns the i-th oldest entry, i in [0, Len()).
func (h *history) At(i int) (s, y, rho []float64) {
	at := (h.head - h.size + i + len(h.s)) % len(h.s)
	return h.s[at], h.y[at], h.rho[at]
}
