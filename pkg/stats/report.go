package stats

import (
	"fmt"
	"math"
)

// Report is the statistics feed published once per completed pipeline cycle.
type Report struct {
	// FPS is achieved processing throughput; nil means no data yet.
	FPS *float64 `json:"fps"`

	ResolutionWidth  int `json:"resolution_width"`
	ResolutionHeight int `json:"resolution_height"`

	// ProcessingTimeMs is the mean per-frame processing time; nil means no data.
	ProcessingTimeMs *float64 `json:"processing_time_ms"`

	SessionID       string `json:"session_id,omitempty"`
	Running         bool   `json:"running"`
	FramesProcessed uint64 `json:"frames_processed"`
	FramesDropped   uint64 `json:"frames_dropped"`
	FramesSkipped   uint64 `json:"frames_skipped"`
	LastError       string `json:"last_error,omitempty"`
}

// NewReport fills the rate fields from snap.
func NewReport(snap Snapshot, width, height int) Report {
	r := Report{ResolutionWidth: width, ResolutionHeight: height}
	if snap.HasFPS {
		v := round2(snap.FPS)
		r.FPS = &v
	}
	if snap.HasLatency {
		v := round2(snap.ProcessingTimeMs)
		r.ProcessingTimeMs = &v
	}
	return r
}

// String renders the report the way the viewer overlay shows it.
func (r Report) String() string {
	fps, ms := "--", "--"
	if r.FPS != nil {
		fps = fmt.Sprintf("%.1f", *r.FPS)
	}
	if r.ProcessingTimeMs != nil {
		ms = fmt.Sprintf("%.1f", *r.ProcessingTimeMs)
	}
	return fmt.Sprintf("FPS: %s | Resolution: %dx%d | Processing: %s ms", fps, r.ResolutionWidth, r.ResolutionHeight, ms)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
