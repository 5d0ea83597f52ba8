package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/events"
)

// Summary counts finished uploads as seen by the renderer.
type Summary struct {
	Completed int
	Failed    int
	Cancelled int
}

// UploadUI renders the upload queue from bus events: one mpb bar per active
// task on a terminal, one line per lifecycle transition otherwise.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	mu           sync.Mutex
	bars         map[string]*uploadBar
	folderLabels map[int64]string
	queued       int
	started      int
	summary      Summary
	dismissed    bool
}

type uploadBar struct {
	bar       *mpb.Bar
	index     int
	name      string
	size      int64
	folderID  int64
	startTime time.Time
	latest    atomic.Pointer[events.UploadProgressEvent]
}

// NewUploadUI creates a renderer on stderr, with bars if stderr is a terminal.
func NewUploadUI() *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableVirtualTerminal(os.Stderr)
	}
	return NewUploadUIWithOutput(os.Stderr, isTerminal)
}

// NewUploadUIWithOutput creates a renderer on w. Bars are drawn only when
// isTerminal is true.
func NewUploadUIWithOutput(w io.Writer, isTerminal bool) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(100),
		)
	}
	return &UploadUI{
		progress:     p,
		out:          w,
		isTerminal:   isTerminal,
		bars:         make(map[string]*uploadBar),
		folderLabels: make(map[int64]string),
	}
}

// SetFolderLabel sets the name shown for a destination folder.
func (u *UploadUI) SetFolderLabel(folderID int64, label string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.folderLabels[folderID] = label
}

// Run consumes events until the upload surface is dismissed, ch is closed or
// ctx is done.
func (u *UploadUI) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if u.Handle(e) {
				return
			}
		}
	}
}

// Handle renders one event. It returns true once the surface was dismissed.
func (u *UploadUI) Handle(e events.Event) bool {
	switch ev := e.(type) {
	case *events.UploadEvent:
		u.handleTask(ev)
	case *events.UploadProgressEvent:
		u.handleProgress(ev)
	case *events.UploadSurfaceEvent:
		if ev.Type() == events.EventUploadSurfaceDismissed {
			u.mu.Lock()
			u.dismissed = true
			u.mu.Unlock()
			u.println(fmt.Sprintf("Uploads finished: %d completed, %d failed, %d cancelled",
				ev.Completed, ev.Failed, ev.Cancelled))
			return true
		}
	case *events.NotificationEvent:
		if ev.Level >= events.WarnLevel {
			u.println(fmt.Sprintf("%s: %s", ev.Level, ev.Message))
		}
	}
	return false
}

func (u *UploadUI) handleTask(ev *events.UploadEvent) {
	switch ev.Type() {
	case events.EventUploadQueued:
		u.mu.Lock()
		u.queued++
		u.mu.Unlock()
	case events.EventUploadStarted:
		u.addBar(ev)
	case events.EventUploadCompleted:
		fb := u.take(ev.TaskID)
		u.mu.Lock()
		u.summary.Completed++
		u.mu.Unlock()
		if fb == nil {
			u.println(fmt.Sprintf("✓ %s → %s", ev.Name, u.folderLabel(ev.FolderID)))
			return
		}
		elapsed := time.Since(fb.startTime)
		if fb.bar != nil {
			fb.bar.SetCurrent(fb.size)
			fb.bar.SetTotal(fb.size, true)
		}
		speed := 0.0
		if secs := elapsed.Seconds(); secs > 0 {
			speed = float64(fb.size) / secs
		}
		u.println(fmt.Sprintf("✓ %s → %s (%s, %s, %s)",
			fb.name, u.folderLabel(fb.folderID), FormatBytes(fb.size),
			elapsed.Round(time.Second), FormatSpeed(speed)))
	case events.EventUploadFailed:
		fb := u.take(ev.TaskID)
		u.mu.Lock()
		u.summary.Failed++
		u.mu.Unlock()
		if fb != nil && fb.bar != nil {
			fb.bar.Abort(false)
		}
		u.println(fmt.Sprintf("✗ %s → %s: %v", ev.Name, u.folderLabel(ev.FolderID), ev.Error))
	case events.EventUploadCancelled:
		fb := u.take(ev.TaskID)
		u.mu.Lock()
		u.summary.Cancelled++
		u.mu.Unlock()
		if fb != nil && fb.bar != nil {
			fb.bar.Abort(true)
		}
		u.println(fmt.Sprintf("⊘ %s cancelled", ev.Name))
	}
}

func (u *UploadUI) addBar(ev *events.UploadEvent) {
	u.mu.Lock()
	u.started++
	fb := &uploadBar{
		index:     u.started,
		name:      ev.Name,
		size:      ev.Size,
		folderID:  ev.FolderID,
		startTime: time.Now(),
	}
	total := u.queued
	folder := u.folderLabelLocked(ev.FolderID)
	u.bars[ev.TaskID] = fb
	u.mu.Unlock()

	label := fmt.Sprintf("[%d/%d] %s (%s) → %s", fb.index, total, truncatePath(ev.Name, 2), FormatBytes(ev.Size), folder)
	if !u.isTerminal {
		u.println("Uploading " + label)
		return
	}

	// Total is size+1 so the bar cannot complete before the backend confirms.
	fb.bar = u.progress.New(ev.Size+1,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				p := fb.latest.Load()
				if p == nil {
					return fmt.Sprintf("0 B / %s", FormatBytes(fb.size))
				}
				return fmt.Sprintf("%s / %s", FormatBytes(p.BytesLoaded), FormatBytes(fb.size))
			}, decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(decor.Statistics) string {
				p := fb.latest.Load()
				if p == nil {
					return "0%"
				}
				return fmt.Sprintf("%.0f%%", p.Percent)
			}, decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(decor.Statistics) string {
				p := fb.latest.Load()
				if p == nil {
					return FormatSpeed(0)
				}
				return FormatSpeed(p.SmoothedSpeed)
			}, decor.WCSyncSpace),
			decor.Name("  ETA "),
			decor.Any(func(decor.Statistics) string {
				p := fb.latest.Load()
				if p == nil {
					return FormatETA(0, false)
				}
				return FormatETA(p.ETA, p.ETAKnown)
			}),
		),
		mpb.BarRemoveOnComplete(),
	)
}

func (u *UploadUI) handleProgress(ev *events.UploadProgressEvent) {
	u.mu.Lock()
	fb := u.bars[ev.TaskID]
	u.mu.Unlock()
	if fb == nil {
		return
	}
	fb.latest.Store(ev)
	if fb.bar != nil && ev.Phase == string(PhaseUploading) {
		fb.bar.SetCurrent(min(ev.BytesLoaded, fb.size))
	}
}

func (u *UploadUI) take(taskID string) *uploadBar {
	u.mu.Lock()
	defer u.mu.Unlock()
	fb := u.bars[taskID]
	delete(u.bars, taskID)
	return fb
}

func (u *UploadUI) folderLabel(folderID int64) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.folderLabelLocked(folderID)
}

func (u *UploadUI) folderLabelLocked(folderID int64) string {
	if label, ok := u.folderLabels[folderID]; ok {
		return label
	}
	if folderID == constants.RootFolderID {
		return "/"
	}
	return fmt.Sprintf("folder %d", folderID)
}

// println writes a line above the bars.
func (u *UploadUI) println(msg string) {
	if u.isTerminal && u.progress != nil {
		_, _ = u.progress.Write([]byte(msg + "\n"))
		return
	}
	fmt.Fprintln(u.out, msg)
}

// Summary returns the counts seen so far.
func (u *UploadUI) Summary() Summary {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.summary
}

// Dismissed reports whether the dismiss event was rendered.
func (u *UploadUI) Dismissed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dismissed
}

// LogWriter returns a writer that prints above the bars.
func (u *UploadUI) LogWriter() io.Writer {
	if u.isTerminal && u.progress != nil {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if bars are drawn.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Close drops leftover bars and waits for the last redraw.
func (u *UploadUI) Close() {
	u.mu.Lock()
	for id, fb := range u.bars {
		if fb.bar != nil {
			fb.bar.Abort(true)
		}
		delete(u.bars, id)
	}
	u.mu.Unlock()
	if u.progress != nil {
		u.progress.Wait()
	}
}
