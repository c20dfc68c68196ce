package edge

import (
	"sync"
	"time"
)

// Mock implements Detector for testing.
// All methods can be customized via function fields.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, returns an all-zero edge map of the input size.
	DetectFunc func(src []byte, w, h int) ([]byte, error)

	// CloseFunc is called when Close is invoked.
	// If nil, returns nil.
	CloseFunc func() error

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Detect invocation for verification.
type MockCall struct {
	Width  int
	Height int
	Time   time.Time
}

// NewMock creates a mock that returns blank edge maps.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns "mock".
func (m *Mock) Name() string { return string(BackendMock) }

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(src []byte, w, h int) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Width: w, Height: h, Time: time.Now()})
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(src, w, h)
	}
	return make([]byte, w*h), nil
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns a copy of all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Detect calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
