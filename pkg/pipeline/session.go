package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-edgecam/pkg/stats"
)

// SessionInfo describes the current or most recent session.
type SessionInfo struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	State           string    `json:"state"`
	LastSeq         uint64    `json:"last_seq"`
	FramesProcessed uint64    `json:"frames_processed"`
	FramesDropped   uint64    `json:"frames_dropped"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
}

// session is one Start..Stop span. Only the processing goroutine writes the
// counters; readers use atomics.
type session struct {
	id      string
	started time.Time
	stats   *stats.Aggregator

	ctx    context.Context
	cancel context.CancelFunc

	done        chan struct{} // processing goroutine exited
	refreshDone chan struct{} // display refresh loop exited
	stopped     chan struct{} // teardown finished

	abandoned atomic.Bool
	stopping  atomic.Bool

	lastSeq   atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	width     atomic.Int64
	height    atomic.Int64
}

func newSession(started time.Time, window, width, height int) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:          uuid.NewString(),
		started:     started,
		stats:       stats.NewAggregator(window),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		refreshDone: make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	s.width.Store(int64(width))
	s.height.Store(int64(height))
	return s
}

func (s *session) resolution() (int, int) {
	return int(s.width.Load()), int(s.height.Load())
}

func (s *session) info(state State) SessionInfo {
	w, h := s.resolution()
	return SessionInfo{
		ID:              s.id,
		StartedAt:       s.started,
		State:           state.String(),
		LastSeq:         s.lastSeq.Load(),
		FramesProcessed: s.processed.Load(),
		FramesDropped:   s.dropped.Load(),
		Width:           w,
		Height:          h,
	}
}
