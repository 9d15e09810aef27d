package core

import "sync"

// Progress bands per phase, in overall percent.
const (
	parseBandEnd = 10
	tagsBandEnd  = 25
	rowsBandEnd  = 100
)

// progressTracker owns the ImportProgress of one run. Percent only moves
// forward and stays below 100 until complete is called.
type progressTracker struct {
	mu       sync.Mutex
	progress ImportProgress
	onChange ProgressCallback
}

func newProgressTracker(importID, fileName string, onChange ProgressCallback) *progressTracker {
	return &progressTracker{
		progress: ImportProgress{
			ImportID: importID,
			FileName: fileName,
			Phase:    PhaseIdle,
		},
		onChange: onChange,
	}
}

// setPhase moves to phase, optionally raising percent to the band start.
func (t *progressTracker) setPhase(phase ImportPhase, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Phase = phase
	t.raise(percent)
	t.emit()
}

// advance raises percent; lower values are ignored.
func (t *progressTracker) advance(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.raise(percent) {
		t.emit()
	}
}

func (t *progressTracker) setTotal(rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.TotalRows = rows
}

// rowDone records one finished row and recomputes the row band.
func (t *progressTracker) rowDone(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Processed++
	if ok {
		t.progress.Successful++
	} else {
		t.progress.Failed++
	}
	t.raise(bandPercent(tagsBandEnd, rowsBandEnd, t.progress.Processed, t.progress.TotalRows))
	t.emit()
}

func (t *progressTracker) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Phase = PhaseCompleted
	t.progress.Percent = 100
	t.emit()
}

func (t *progressTracker) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Phase = PhaseFailed
	t.progress.Error = err.Error()
	t.emit()
}

func (t *progressTracker) snapshot() ImportProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// raise must be called with mu held.
func (t *progressTracker) raise(percent int) bool {
	percent = clampPercent(percent, 99)
	if percent <= t.progress.Percent {
		return false
	}
	t.progress.Percent = percent
	return true
}

// emit must be called with mu held so listeners see updates in order.
func (t *progressTracker) emit() {
	if t.onChange != nil {
		t.onChange(t.progress)
	}
}

// bandPercent maps done/total linearly onto [start, end].
func bandPercent(start, end, done, total int) int {
	if total <= 0 {
		return start
	}
	if done > total {
		done = total
	}
	return start + (end-start)*done/total
}
