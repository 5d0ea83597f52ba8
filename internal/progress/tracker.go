package progress

import (
	"sync"
	"time"

	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/logging"
)

// Phase is the per-task progress state.
type Phase string

const (
	PhaseStarting  Phase = "starting"  // registered, no byte event yet
	PhaseUploading Phase = "uploading" // byte events flowing
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// TransferProgress is the derived progress of one task.
type TransferProgress struct {
	TaskID        string
	BytesLoaded   int64
	BytesTotal    int64
	InstantSpeed  float64 // bytes/sec over the last sample
	SmoothedSpeed float64 // mean of the sample window
	ETA           time.Duration
	ETAKnown      bool // false: do not display ETA
	Percent       float64
	Phase         Phase
}

type taskProgress struct {
	TransferProgress
	lastSample time.Time
	lastBytes  int64
	window     []float64
}

// Tracker turns raw byte-level callbacks into a throttled, smoothed progress
// stream published as events.UploadProgressEvent.
//
// Per task: starting -> uploading -> completed | failed | cancelled. Terminal
// phases are final; the task's state is dropped once the terminal update is
// published, so later raw events for it are ignored.
type Tracker struct {
	mu sync.Mutex
	// pubMu is taken before mu is released so events leave in the order
	// the state changed.
	pubMu    sync.Mutex
	tasks    map[string]*taskProgress
	eventBus *events.EventBus
	logger   *logging.Logger
	now      func() time.Time

	minInterval time.Duration
	windowSize  int
}

// NewTracker creates a tracker publishing on eventBus (may be nil).
func NewTracker(eventBus *events.EventBus, logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Tracker{
		tasks:       make(map[string]*taskProgress),
		eventBus:    eventBus,
		logger:      logger,
		now:         time.Now,
		minInterval: constants.ProgressMinInterval,
		windowSize:  constants.SpeedWindowSize,
	}
}

// SetClock replaces the time source. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Start registers a task in phase starting and publishes 0%.
func (t *Tracker) Start(taskID string, total int64) {
	t.mu.Lock()
	tp := &taskProgress{
		TransferProgress: TransferProgress{
			TaskID:     taskID,
			BytesTotal: total,
			Phase:      PhaseStarting,
		},
		lastSample: t.now(),
		window:     make([]float64, 0, t.windowSize),
	}
	t.tasks[taskID] = tp
	t.unlockAndPublish(tp.TransferProgress, nil)
}

// Observe feeds one raw transport event. Events for unknown or finished
// tasks are ignored. Updates closer than the minimum interval to the previous
// sample are dropped unless the transfer reports completion.
func (t *Tracker) Observe(taskID string, loaded, total int64) {
	t.mu.Lock()
	tp, ok := t.tasks[taskID]
	if !ok || tp.Phase.IsTerminal() {
		t.mu.Unlock()
		return
	}

	if total > 0 {
		tp.BytesTotal = total
	}
	if tp.Phase == PhaseStarting {
		tp.Phase = PhaseUploading
	}

	now := t.now()
	elapsed := now.Sub(tp.lastSample)
	done := tp.BytesTotal > 0 && loaded >= tp.BytesTotal
	if elapsed < t.minInterval && !done {
		t.mu.Unlock()
		return
	}

	if loaded < 0 {
		loaded = 0
	}
	delta := loaded - tp.lastBytes
	if elapsed > 0 && delta >= 0 {
		tp.InstantSpeed = float64(delta) / elapsed.Seconds()
		tp.pushSample(tp.InstantSpeed, t.windowSize)
	}
	tp.SmoothedSpeed = tp.mean()
	tp.BytesLoaded = loaded

	percent := 0.0
	if tp.BytesTotal > 0 {
		percent = float64(loaded) / float64(tp.BytesTotal) * 100
	}
	percent = clamp(percent, 0, 100)
	if percent > constants.MaxPercentBeforeComplete {
		percent = constants.MaxPercentBeforeComplete
	}
	if percent < tp.Percent {
		percent = tp.Percent
	}
	tp.Percent = percent

	tp.ETA, tp.ETAKnown = estimateETA(tp.BytesTotal-loaded, tp.SmoothedSpeed, percent)

	tp.lastSample = now
	tp.lastBytes = loaded
	t.unlockAndPublish(tp.TransferProgress, nil)
}

// Complete snaps the task to 100% and finishes it.
func (t *Tracker) Complete(taskID string) {
	t.finish(taskID, PhaseCompleted, nil)
}

// Fail finishes the task as failed.
func (t *Tracker) Fail(taskID string, err error) {
	t.finish(taskID, PhaseFailed, err)
}

// Cancel finishes the task as cancelled. Tasks that never started (dropped
// from the queue) are reported too.
func (t *Tracker) Cancel(taskID string) {
	t.finish(taskID, PhaseCancelled, nil)
}

func (t *Tracker) finish(taskID string, phase Phase, err error) {
	t.mu.Lock()
	tp, ok := t.tasks[taskID]
	if !ok {
		tp = &taskProgress{TransferProgress: TransferProgress{TaskID: taskID}}
	}
	if tp.Phase.IsTerminal() {
		t.mu.Unlock()
		return
	}
	tp.Phase = phase
	tp.ETA, tp.ETAKnown = 0, false
	if phase == PhaseCompleted {
		tp.Percent = 100
		if tp.BytesTotal > 0 {
			tp.BytesLoaded = tp.BytesTotal
		}
	}
	delete(t.tasks, taskID)
	t.logger.Debug().Str("task_id", taskID).Str("phase", string(phase)).Msg("Progress finished")
	t.unlockAndPublish(tp.TransferProgress, err)
}

// Snapshot returns the current progress of a task still being tracked.
func (t *Tracker) Snapshot(taskID string) (TransferProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp, ok := t.tasks[taskID]
	if !ok {
		return TransferProgress{}, false
	}
	return tp.TransferProgress, true
}

// Len returns the number of tasks being tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// unlockAndPublish must be called with t.mu held.
func (t *Tracker) unlockAndPublish(p TransferProgress, err error) {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	t.mu.Unlock()
	t.publish(p, err)
}

func (t *Tracker) publish(p TransferProgress, err error) {
	t.eventBus.Publish(&events.UploadProgressEvent{
		BaseEvent:     events.NewBase(events.EventUploadProgress),
		TaskID:        p.TaskID,
		Phase:         string(p.Phase),
		BytesLoaded:   p.BytesLoaded,
		BytesTotal:    p.BytesTotal,
		Percent:       p.Percent,
		InstantSpeed:  p.InstantSpeed,
		SmoothedSpeed: p.SmoothedSpeed,
		ETA:           p.ETA,
		ETAKnown:      p.ETAKnown,
		Error:         err,
	})
}

func (tp *taskProgress) pushSample(speed float64, size int) {
	if len(tp.window) == size {
		copy(tp.window, tp.window[1:])
		tp.window = tp.window[:size-1]
	}
	tp.window = append(tp.window, speed)
}

func (tp *taskProgress) mean() float64 {
	if len(tp.window) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range tp.window {
		sum += s
	}
	return sum / float64(len(tp.window))
}

// estimateETA returns the time left, and false when it must not be shown:
// stalled speed, percent outside the display band, or an implausible value.
func estimateETA(remaining int64, speed, percent float64) (time.Duration, bool) {
	if speed <= constants.MinDisplaySpeed {
		return 0, false
	}
	if percent <= constants.ETAMinPercent || percent >= constants.ETAMaxPercent {
		return 0, false
	}
	if remaining < 0 {
		remaining = 0
	}
	seconds := float64(remaining) / speed
	if seconds > constants.ETAMaxDuration.Seconds() {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
