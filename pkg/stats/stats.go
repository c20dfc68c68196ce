// Package stats derives frame rate and processing latency from a bounded window
// of per-frame samples.
package stats

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of samples kept when no capacity is given.
const DefaultWindow = 30

// Sample is one completed pipeline cycle.
type Sample struct {
	Timestamp  time.Time     // capture timestamp of the frame
	Processing time.Duration // time spent converting and detecting
}

// Snapshot is the result of Current. HasFPS is false with fewer than two
// samples (or when all samples share one timestamp); HasLatency is false for an
// empty window. The numeric fields are zero when their flag is false.
type Snapshot struct {
	FPS              float64
	ProcessingTimeMs float64
	Samples          int
	HasFPS           bool
	HasLatency       bool
}

// Aggregator keeps the most recent samples in a FIFO window of fixed capacity.
// It is safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	buf   []Sample
	head  int // index of the oldest sample
	count int
}

// NewAggregator creates an aggregator holding at most capacity samples.
// Non-positive capacities use DefaultWindow.
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Aggregator{buf: make([]Sample, capacity)}
}

// Capacity returns the window size.
func (a *Aggregator) Capacity() int {
	return len(a.buf)
}

// Record appends a sample, evicting the oldest when the window is full.
// Samples are expected in capture order.
func (a *Aggregator) Record(ts time.Time, processing time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.buf)
	if a.count < n {
		a.buf[(a.head+a.count)%n] = Sample{Timestamp: ts, Processing: processing}
		a.count++
		return
	}
	a.buf[a.head] = Sample{Timestamp: ts, Processing: processing}
	a.head = (a.head + 1) % n
}

// Current computes fps = (n-1) / (newest - oldest) and the mean processing time
// over exactly the retained window.
func (a *Aggregator) Current() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{Samples: a.count}
	if a.count == 0 {
		return snap
	}

	n := len(a.buf)
	ms := make([]float64, a.count)
	for i := 0; i < a.count; i++ {
		ms[i] = float64(a.buf[(a.head+i)%n].Processing) / float64(time.Millisecond)
	}
	snap.ProcessingTimeMs = stat.Mean(ms, nil)
	snap.HasLatency = true

	if a.count < 2 {
		return snap
	}
	oldest := a.buf[a.head].Timestamp
	newest := a.buf[(a.head+a.count-1)%n].Timestamp
	span := newest.Sub(oldest).Seconds()
	if span <= 0 {
		return snap
	}
	snap.FPS = float64(a.count-1) / span
	snap.HasFPS = true
	return snap
}

// Window returns the retained samples, oldest first.
func (a *Aggregator) Window() []Sample {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Sample, a.count)
	for i := range out {
		out[i] = a.buf[(a.head+i)%len(a.buf)]
	}
	return out
}

// Reset empties the window.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.head, a.count = 0, 0
	clear(a.buf)
}
