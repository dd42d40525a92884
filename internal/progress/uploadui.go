package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/taxdesk/taxdesk/internal/events"
	strutil "github.com/taxdesk/taxdesk/internal/util/strings"
)

// UploadUI manages multiple concurrent upload progress bars using mpb.
// It is driven by transfer events from the bus.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	mu         sync.Mutex
	bars       map[string]*FileBar // task ID -> bar
	pathCache  sync.Map            // folderID -> human path
	isTerminal bool
	totalFiles int
	started    int32 // Atomic counter for file index (1, 2, 3, ...)
	completed  int32
	failed     int32
}

// FileBar represents a single file upload progress bar
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	name       string
	folderPath string
	size       int64
	retries    int32
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	done       atomic.Bool
}

// NewUploadUI creates an upload UI on stderr for totalFiles files.
func NewUploadUI(totalFiles int) *UploadUI {
	return NewUploadUIWithOutput(os.Stderr, totalFiles, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewUploadUIWithOutput writes to out. Without a terminal no bars are drawn,
// only one line per file start and finish.
func NewUploadUIWithOutput(out io.Writer, totalFiles int, isTerminal bool) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond), // ~3 times per second
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        out,
		bars:       make(map[string]*FileBar),
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// SetFolderPath caches a human-readable path for a folder ID
func (u *UploadUI) SetFolderPath(folderID, path string) {
	u.pathCache.Store(folderID, path)
}

// GetFolderPath retrieves the cached human-readable path for a folder ID
func (u *UploadUI) GetFolderPath(folderID string) string {
	if path, ok := u.pathCache.Load(folderID); ok {
		return path.(string)
	}
	return folderID // fallback to ID if no path cached
}

// Follow handles transfer events from ch until it is closed or ctx ends.
func (u *UploadUI) Follow(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			u.Handle(ev)
		}
	}
}

// Handle applies one event. Non-transfer events are ignored.
func (u *UploadUI) Handle(ev events.Event) {
	te, ok := ev.(*events.TransferEvent)
	if !ok {
		return
	}

	switch te.Type() {
	case events.EventTransferStarted:
		u.mu.Lock()
		fb, exists := u.bars[te.TaskID]
		u.mu.Unlock()
		if exists {
			fb.SetRetry(int(atomic.LoadInt32(&fb.retries)) + 1)
			return
		}
		u.addFileBar(te.TaskID, te.Name, te.FolderID, te.Size)

	case events.EventTransferProgress:
		if fb := u.bar(te.TaskID); fb != nil {
			fb.UpdateBytes(int64(te.Progress * float64(fb.size)))
		}

	case events.EventTransferCompleted:
		if fb := u.bar(te.TaskID); fb != nil {
			fb.Complete(nil)
		}

	case events.EventTransferFailed, events.EventTransferCancelled:
		if fb := u.bar(te.TaskID); fb != nil {
			err := te.Error
			if err == nil {
				err = fmt.Errorf("cancelled")
			}
			fb.Complete(err)
		}
	}
}

func (u *UploadUI) bar(taskID string) *FileBar {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bars[taskID]
}

// addFileBar creates a new progress bar for a file upload
func (u *UploadUI) addFileBar(taskID, name, folderID string, size int64) *FileBar {
	folderPath := u.GetFolderPath(folderID)

	// Atomic increment to get unique file index across all concurrent uploads
	index := int(atomic.AddInt32(&u.started, 1))
	label := truncatePath(name, 2)

	fb := &FileBar{
		ui:         u,
		index:      index,
		name:       name,
		folderPath: folderPath,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					retries := atomic.LoadInt32(&fb.retries)
					base := fmt.Sprintf("[%d/%d] %s (%.1f MiB) → %s",
						fb.index, u.totalFiles, label,
						float64(size)/(1024*1024),
						folderPath)
					if retries > 0 {
						return fmt.Sprintf("%s (retry %d)", base, retries)
					}
					return base
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%.1f MiB) → %s\n",
			fb.index, u.totalFiles, label,
			float64(size)/(1024*1024),
			folderPath)
	}

	u.mu.Lock()
	u.bars[taskID] = fb
	u.mu.Unlock()
	return fb
}

// UpdateBytes moves the bar to sent bytes. Updates are throttled to 300ms.
func (f *FileBar) UpdateBytes(sent int64) {
	if f.bar == nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)

	const updateInterval = 300 * time.Millisecond
	if elapsed >= updateInterval || sent >= f.size {
		// EwmaIncrBy also feeds elapsed time to the speed decorator
		f.bar.EwmaIncrBy(int(sent-f.lastBytes), elapsed)
		f.lastBytes = sent
		f.lastUpdate = now
	}
}

// SetRetry updates the retry counter and visually marks the bar
func (f *FileBar) SetRetry(count int) {
	atomic.StoreInt32(&f.retries, int32(count))
	f.startTime = time.Now()
	if f.bar != nil && count > 0 {
		f.bar.SetRefill(f.lastBytes)
		f.bar.SetCurrent(0)
		f.lastBytes = 0
	}
}

// Complete marks the upload as finished and prints a summary line.
func (f *FileBar) Complete(err error) {
	if f.done.Swap(true) {
		return
	}
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true) // Mark done, trigger BarRemoveOnComplete
		}
		speed := ""
		if secs := elapsed.Seconds(); secs > 0 {
			speed = ", " + strutil.FormatSpeed(float64(f.size)/secs)
		}
		msg = fmt.Sprintf("✓ %s → %s (%s, %s%s)\n",
			truncatePath(f.name, 2),
			f.folderPath,
			strutil.FormatBytes(f.size),
			elapsed.Round(time.Millisecond),
			speed)
	} else {
		if f.bar != nil {
			f.bar.Abort(false) // false = don't remove (show failure)
		}
		atomic.AddInt32(&f.ui.failed, 1)
		msg = fmt.Sprintf("✗ %s → %s: %v\n",
			truncatePath(f.name, 2),
			f.folderPath,
			err)
	}

	// Write through mpb's writer (not stdout) to avoid triggering redraws
	_, _ = f.ui.Writer().Write([]byte(msg))
	atomic.AddInt32(&f.ui.completed, 1)
}

// Wait blocks until all progress bars complete
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Finish aborts bars whose final event never arrived, then waits for rendering to stop.
func (u *UploadUI) Finish() {
	u.mu.Lock()
	for _, fb := range u.bars {
		if fb.bar != nil && !fb.done.Load() {
			fb.bar.Abort(false)
		}
	}
	u.mu.Unlock()
	u.Wait()
}

// Writer returns an io.Writer that safely prints above the progress bars
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Counts returns how many uploads finished and how many of those failed.
func (u *UploadUI) Counts() (completed, failed int) {
	return int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
