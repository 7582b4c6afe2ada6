// Package progress reports coarse pipeline milestones to callers.
package progress

import "sync"

// Stage names a pipeline milestone.
type Stage string

const (
	StagePreparing   Stage = "preparing"
	StageRecognizing Stage = "recognizing"
	StageRecognized  Stage = "recognized"
	StageAnalysis    Stage = "analysis"
	StageEnrichment  Stage = "enrichment"
	StageSpreadsheet Stage = "spreadsheet"
	StageFile        Stage = "file"
	StageDone        Stage = "done"
)

// Sink receives progress updates. Percent is in [0, 100].
type Sink interface {
	Report(percent int, stage Stage)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(percent int, stage Stage)

func (f SinkFunc) Report(percent int, stage Stage) { f(percent, stage) }

type nop struct{}

func (nop) Report(int, Stage) {}

// Nop discards updates.
var Nop Sink = nop{}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop
	}
	return s
}

// Update is one recorded report.
type Update struct {
	Percent int
	Stage   Stage
}

// Recorder keeps every update it receives.
type Recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *Recorder) Report(percent int, stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, Update{Percent: percent, Stage: stage})
}

// Updates returns a copy of the recorded sequence.
func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Update, len(r.updates))
	copy(out, r.updates)
	return out
}

// Percents returns only the percentages, in order.
func (r *Recorder) Percents() []int {
	updates := r.Updates()
	out := make([]int, len(updates))
	for i, u := range updates {
		out[i] = u.Percent
	}
	return out
}
