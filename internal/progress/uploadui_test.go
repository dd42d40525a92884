package progress

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/taxdesk/taxdesk/internal/events"
)

func transferEvent(t events.EventType, id, name string, progress float64, err error) *events.TransferEvent {
	return &events.TransferEvent{
		BaseEvent: events.NewBase(t),
		TaskID:    id,
		Name:      name,
		FolderID:  "99",
		Size:      2048,
		Progress:  progress,
		Error:     err,
	}
}

func TestUploadUIPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	ui := NewUploadUIWithOutput(&buf, 2, false)
	ui.SetFolderPath("99", "2024 Returns")

	ui.Handle(transferEvent(events.EventTransferStarted, "t1", "w2.pdf", 0, nil))
	ui.Handle(transferEvent(events.EventTransferStarted, "t2", "notes.exe", 0, nil))
	ui.Handle(transferEvent(events.EventTransferProgress, "t1", "w2.pdf", 0.5, nil))
	ui.Handle(transferEvent(events.EventTransferCompleted, "t1", "w2.pdf", 1, nil))
	ui.Handle(transferEvent(events.EventTransferFailed, "t2", "notes.exe", 0, errors.New("Invalid file type")))
	ui.Handle(&events.LogEvent{BaseEvent: events.NewBase(events.EventLog), Message: "ignored"})
	ui.Wait()

	out := buf.String()
	for _, want := range []string{
		"Uploading [1/2]: w2.pdf",
		"Uploading [2/2]: notes.exe",
		"→ 2024 Returns",
		"✓ w2.pdf → 2024 Returns",
		"✗ notes.exe → 2024 Returns: Invalid file type",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ignored") {
		t.Error("non-transfer events should not be rendered")
	}

	completed, failed := ui.Counts()
	if completed != 2 || failed != 1 {
		t.Errorf("Counts() = %d, %d, want 2, 1", completed, failed)
	}
}

func TestUploadUIRestartCountsAsRetry(t *testing.T) {
	var buf bytes.Buffer
	ui := NewUploadUIWithOutput(&buf, 1, false)

	ui.Handle(transferEvent(events.EventTransferStarted, "t1", "a.pdf", 0, nil))
	ui.Handle(transferEvent(events.EventTransferStarted, "t1", "a.pdf", 0, nil))

	if got := strings.Count(buf.String(), "Uploading"); got != 1 {
		t.Errorf("started lines = %d, want 1", got)
	}
	if fb := ui.bar("t1"); fb == nil || fb.retries != 1 {
		t.Errorf("expected one retry recorded, got %+v", fb)
	}
	if got := ui.GetFolderPath("99"); got != "99" {
		t.Errorf("uncached folder path = %q, want id fallback", got)
	}
}

func TestUploadUIFollowStopsOnClose(t *testing.T) {
	var buf bytes.Buffer
	ui := NewUploadUIWithOutput(&buf, 1, false)

	ch := make(chan events.Event, 2)
	ch <- transferEvent(events.EventTransferStarted, "t1", "a.pdf", 0, nil)
	ch <- transferEvent(events.EventTransferCancelled, "t1", "a.pdf", 0, nil)
	close(ch)

	ui.Follow(context.Background(), ch)
	if !strings.Contains(buf.String(), "✗ a.pdf → 99: cancelled") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{"file.txt", 2, "file.txt"},
		{"dir/file.txt", 2, "file.txt"},
		{"/a/b/c/d/file.txt", 3, "…/c/d/file.txt"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.n); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.n, got, tt.want)
		}
	}
}

func TestSpinnerCounts(t *testing.T) {
	var buf bytes.Buffer
	s := &Spinner{out: &buf}
	s.Start("Loading folders")
	s.Increment()
	s.Increment()
	s.Finish()
	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2", s.Count())
	}

	var r Reporter = NoOpProgress{}
	r.Start("x")
	r.Increment()
	r.Finish()
}
