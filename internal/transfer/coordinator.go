package transfer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/logging"
	"github.com/tgdrive/tgdrive/internal/models"
)

// ErrTaskNotFound is returned by Cancel for unknown or already finished tasks.
var ErrTaskNotFound = errors.New("upload task not found or already finished")

// Transport performs the network side of one upload.
type Transport interface {
	// Upload sends the task's file to the task's folder. It must return
	// promptly once ctx is cancelled.
	Upload(ctx context.Context, task UploadTask, onProgress func(loaded, total int64)) (*models.FileMeta, error)
	// CancelUpload is the best-effort backend cancellation signal.
	CancelUpload(ctx context.Context, uploadID string) error
}

// ProgressReporter receives the lifecycle of each task. Implemented by
// progress.Tracker.
type ProgressReporter interface {
	Start(taskID string, total int64)
	Observe(taskID string, loaded, total int64)
	Complete(taskID string)
	Fail(taskID string, err error)
	Cancel(taskID string)
}

// Syncer keeps cached storage totals and listings in step with uploads.
// Implemented by services.ContentSyncService.
type Syncer interface {
	ApplyUpload(size int64)
	Reconcile(ctx context.Context)
}

// Options tune the coordinator timing.
type Options struct {
	Yield        time.Duration // pause between two uploads
	DismissDelay time.Duration // grace period before the surface is dismissed
	Background   bool          // start in background mode
}

// DefaultOptions returns the standard timing.
func DefaultOptions() Options {
	return Options{
		Yield:        constants.QueueYieldDelay,
		DismissDelay: constants.UploadDismissDelay,
	}
}

// Coordinator serializes uploads through a single slot.
//
// Tasks are processed strictly FIFO by one worker goroutine. A task is either
// in the queue or in the active set, never both. Per-task failures end in a
// terminal state and never stop the worker.
type Coordinator struct {
	transport Transport
	tracker   ProgressReporter
	syncer    Syncer
	eventBus  *events.EventBus
	logger    *logging.Logger
	opts      Options
	now       func() time.Time

	mu     sync.Mutex
	queue  []*UploadTask
	active map[string]*UploadTask
	tasks  map[string]*UploadTask
	order  []*UploadTask

	running    bool // worker is pulling from the queue
	pending    int  // worker goroutines alive, including the drain step
	idle       chan struct{}
	background bool

	surfaceVisible bool
	dismissGen     uint64
	dismissTimer   *time.Timer

	ctx      context.Context
	stop     context.CancelFunc
	cancelWG sync.WaitGroup
}

// NewCoordinator creates an idle coordinator. tracker and syncer may be nil.
func NewCoordinator(transport Transport, tracker ProgressReporter, syncer Syncer, eventBus *events.EventBus, logger *logging.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Yield < 0 {
		opts.Yield = 0
	}
	if opts.DismissDelay < 0 {
		opts.DismissDelay = 0
	}
	ctx, stop := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Coordinator{
		transport:  transport,
		tracker:    tracker,
		syncer:     syncer,
		eventBus:   eventBus,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		active:     make(map[string]*UploadTask),
		tasks:      make(map[string]*UploadTask),
		idle:       idle,
		background: opts.Background,
		ctx:        ctx,
		stop:       stop,
	}
}

// Enqueue appends one task per file, in order, all targeting folderID.
// The worker is started if it is not running.
func (c *Coordinator) Enqueue(files []LocalFile, folderID int64) []UploadTask {
	if len(files) == 0 {
		return nil
	}

	c.mu.Lock()
	now := c.now()
	created := make([]*UploadTask, 0, len(files))
	for _, f := range files {
		task := newUploadTask(f, folderID, now)
		c.queue = append(c.queue, task)
		c.tasks[task.ID] = task
		c.order = append(c.order, task)
		created = append(created, task)
	}

	c.cancelDismissLocked()
	showSurface := !c.surfaceVisible
	c.surfaceVisible = true
	background := c.background

	startWorker := !c.running
	if startWorker {
		c.running = true
		if c.pending == 0 {
			c.idle = make(chan struct{})
		}
		c.pending++
	}

	snapshots := make([]UploadTask, len(created))
	for i, task := range created {
		snapshots[i] = task.snapshot()
	}
	c.mu.Unlock()

	for _, task := range snapshots {
		c.logger.Debug().Str("task_id", task.ID).Str("name", task.Name).Int64("folder_id", folderID).Msg("Upload queued")
		c.publishTask(events.EventUploadQueued, task)
	}
	if showSurface {
		c.eventBus.Publish(&events.UploadSurfaceEvent{
			BaseEvent:  events.NewBase(events.EventUploadSurfaceShown),
			Background: background,
		})
	}
	// Started after the queued events so renderers see them first.
	if startWorker {
		go c.worker()
	}
	return snapshots
}

// worker is the single consumer of the queue.
func (c *Coordinator) worker() {
	for {
		task := c.next()
		if task == nil {
			break
		}
		c.run(task)

		select {
		case <-time.After(c.opts.Yield):
		case <-c.ctx.Done():
		}
	}
	c.drained()
}

// next pops the queue head into the active set, or marks the worker stopped.
func (c *Coordinator) next() *UploadTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 || c.ctx.Err() != nil {
		c.running = false
		return nil
	}

	task := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]

	ctx, cancel := context.WithCancel(c.ctx)
	task.cancel = cancel
	task.State = TaskUploading
	task.StartedAt = c.now()
	task.runCtx = ctx
	c.active[task.ID] = task
	// Started under the lock so a concurrent Cancel always follows it.
	if c.tracker != nil {
		c.tracker.Start(task.ID, task.Size)
	}
	return task
}

// run performs one upload and records its outcome.
func (c *Coordinator) run(task *UploadTask) {
	c.mu.Lock()
	snap := task.snapshot()
	ctx := task.runCtx
	c.mu.Unlock()

	log := c.logger.With().Str("task_id", snap.ID).Int64("folder_id", snap.FolderID).Logger()
	log.Info().Str("name", snap.Name).Int64("size", snap.Size).Msg("Upload started")
	c.publishTask(events.EventUploadStarted, snap)

	onProgress := func(loaded, total int64) {
		if c.tracker != nil {
			c.tracker.Observe(snap.ID, loaded, total)
		}
	}

	file, err := c.transport.Upload(ctx, snap, onProgress)

	c.mu.Lock()
	task.cancel()
	task.runCtx = nil
	if task.State != TaskUploading {
		// Cancel already finished the task and reported it.
		c.mu.Unlock()
		log.Debug().Err(err).Msg("Upload returned after cancellation")
		return
	}
	delete(c.active, task.ID)
	switch {
	case err == nil:
		task.finish(TaskCompleted, nil, c.now())
	case api.Classify(err) == api.KindCancelled:
		task.finish(TaskCancelled, err, c.now())
	default:
		task.finish(TaskFailed, err, c.now())
	}
	snap = task.snapshot()
	c.mu.Unlock()

	switch snap.State {
	case TaskCompleted:
		size := snap.Size
		if file != nil && file.Size > 0 {
			size = file.Size
		}
		log.Info().Int64("size", size).Msg("Upload completed")
		if c.tracker != nil {
			c.tracker.Complete(snap.ID)
		}
		if c.syncer != nil {
			c.syncer.ApplyUpload(size)
		}
		c.publishTask(events.EventUploadCompleted, snap)
	case TaskCancelled:
		log.Info().Msg("Upload cancelled")
		if c.tracker != nil {
			c.tracker.Cancel(snap.ID)
		}
		c.publishTask(events.EventUploadCancelled, snap)
	default:
		log.Warn().Err(err).Msg("Upload failed")
		if c.tracker != nil {
			c.tracker.Fail(snap.ID, err)
		}
		c.publishTask(events.EventUploadFailed, snap)
	}
}

// drained runs once the queue is empty: reconcile caches, then schedule the
// dismiss of the upload surface.
func (c *Coordinator) drained() {
	if c.syncer != nil {
		c.syncer.Reconcile(c.ctx)
	}

	c.mu.Lock()
	if !c.running && c.surfaceVisible && !c.background {
		c.scheduleDismissLocked()
	}
	c.pending--
	if c.pending == 0 {
		close(c.idle)
	}
	c.mu.Unlock()
}

// scheduleDismissLocked arms the grace timer. Enqueue disarms it.
func (c *Coordinator) scheduleDismissLocked() {
	c.cancelDismissLocked()
	gen := c.dismissGen
	c.dismissTimer = time.AfterFunc(c.opts.DismissDelay, func() {
		c.mu.Lock()
		if gen != c.dismissGen || c.running || !c.surfaceVisible {
			c.mu.Unlock()
			return
		}
		c.dismissTimer = nil
		c.mu.Unlock()
		c.dismiss()
	})
}

func (c *Coordinator) cancelDismissLocked() {
	c.dismissGen++
	if c.dismissTimer != nil {
		c.dismissTimer.Stop()
		c.dismissTimer = nil
	}
}

// dismiss publishes the surface dismissal with the final counts.
func (c *Coordinator) dismiss() {
	c.mu.Lock()
	if !c.surfaceVisible {
		c.mu.Unlock()
		return
	}
	c.surfaceVisible = false
	stats := c.statsLocked()
	background := c.background
	c.mu.Unlock()

	c.eventBus.Publish(&events.UploadSurfaceEvent{
		BaseEvent:  events.NewBase(events.EventUploadSurfaceDismissed),
		Background: background,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		Cancelled:  stats.Cancelled,
	})
}

// Cancel cancels a queued or active task. A queued task is dropped without
// any transport call. An active task has its request aborted and the backend
// is told to drop the partial upload.
func (c *Coordinator) Cancel(taskID string) error {
	c.mu.Lock()
	task, ok := c.tasks[taskID]
	if !ok || task.State.IsTerminal() {
		c.mu.Unlock()
		return ErrTaskNotFound
	}

	wasActive := c.cancelLocked(task)
	snap := task.snapshot()
	empty := len(c.queue) == 0 && len(c.active) == 0
	if empty {
		c.cancelDismissLocked()
	}
	c.mu.Unlock()

	c.reportCancelled(snap, wasActive)
	if empty {
		c.dismiss()
	}
	return nil
}

// CancelAll cancels every active and queued task and clears the queue.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	var cancelled []UploadTask
	activeIDs := make(map[string]bool)
	for _, task := range c.active {
		c.cancelLocked(task)
		activeIDs[task.ID] = true
		cancelled = append(cancelled, task.snapshot())
	}
	for len(c.queue) > 0 {
		task := c.queue[0]
		c.cancelLocked(task)
		cancelled = append(cancelled, task.snapshot())
	}
	visible := c.surfaceVisible
	c.cancelDismissLocked()
	c.mu.Unlock()

	for _, snap := range cancelled {
		c.reportCancelled(snap, activeIDs[snap.ID])
	}
	if visible {
		c.dismiss()
	}
}

// cancelLocked moves task to cancelled and out of the queue or active set.
// It returns whether the task was active.
func (c *Coordinator) cancelLocked(task *UploadTask) bool {
	wasActive := false
	if _, ok := c.active[task.ID]; ok {
		wasActive = true
		delete(c.active, task.ID)
		if task.cancel != nil {
			task.cancel()
		}
	} else {
		for i, queued := range c.queue {
			if queued == task {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
	}
	task.finish(TaskCancelled, api.ErrCancelled, c.now())
	return wasActive
}

func (c *Coordinator) reportCancelled(snap UploadTask, wasActive bool) {
	c.logger.Info().Str("task_id", snap.ID).Bool("active", wasActive).Msg("Upload cancelled by user")
	if c.tracker != nil {
		c.tracker.Cancel(snap.ID)
	}
	c.publishTask(events.EventUploadCancelled, snap)

	if !wasActive {
		return
	}
	c.cancelWG.Add(1)
	go func() {
		defer c.cancelWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), constants.CancelRequestTimeout)
		defer cancel()
		if err := c.transport.CancelUpload(ctx, snap.ID); err != nil {
			c.logger.Debug().Err(err).Str("task_id", snap.ID).Msg("Backend cancel signal failed")
		}
	}()
}

// EnableBackgroundMode suppresses the automatic dismiss of the upload
// surface; uploads keep running.
func (c *Coordinator) EnableBackgroundMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.background = true
	c.cancelDismissLocked()
}

// BackgroundMode reports whether background mode is on.
func (c *Coordinator) BackgroundMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background
}

// Uploading reports whether the upload surface is currently shown.
func (c *Coordinator) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surfaceVisible
}

// Wait blocks until the worker has drained the queue and reconciled, or ctx
// is done. Backend cancel signals still in flight are awaited too.
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.pending == 0 {
			c.mu.Unlock()
			break
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		c.cancelWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels everything and stops the worker.
func (c *Coordinator) Close() {
	c.CancelAll()
	c.stop()
	c.mu.Lock()
	c.cancelDismissLocked()
	c.mu.Unlock()
}

// Task returns a snapshot of one task.
func (c *Coordinator) Task(taskID string) (UploadTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return UploadTask{}, false
	}
	return task.snapshot(), true
}

// Tasks returns snapshots of all tasks in enqueue order.
func (c *Coordinator) Tasks() []UploadTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]UploadTask, len(c.order))
	for i, task := range c.order {
		result[i] = task.snapshot()
	}
	return result
}

// QueuedIDs returns the ids still waiting, head first.
func (c *Coordinator) QueuedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.queue))
	for i, task := range c.queue {
		ids[i] = task.ID
	}
	return ids
}

// Stats returns task counts per state.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *Coordinator) statsLocked() Stats {
	var stats Stats
	for _, task := range c.order {
		switch task.State {
		case TaskQueued:
			stats.Queued++
		case TaskUploading:
			stats.Uploading++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		case TaskCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// ClearFinished forgets terminal tasks.
func (c *Coordinator) ClearFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	filtered := make([]*UploadTask, 0, len(c.order))
	for _, task := range c.order {
		if task.State.IsTerminal() {
			delete(c.tasks, task.ID)
			continue
		}
		filtered = append(filtered, task)
	}
	c.order = filtered
}

func (c *Coordinator) publishTask(eventType events.EventType, task UploadTask) {
	c.eventBus.Publish(&events.UploadEvent{
		BaseEvent: events.NewBase(eventType),
		TaskID:    task.ID,
		Name:      task.Name,
		Size:      task.Size,
		FolderID:  task.FolderID,
		State:     string(task.State),
		Error:     task.Err,
	})
}
