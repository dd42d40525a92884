package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taxdesk/taxdesk/internal/api"
	"github.com/taxdesk/taxdesk/internal/config"
	"github.com/taxdesk/taxdesk/internal/constants"
	"github.com/taxdesk/taxdesk/internal/events"
	"github.com/taxdesk/taxdesk/internal/http"
	"github.com/taxdesk/taxdesk/internal/logging"
	"github.com/taxdesk/taxdesk/internal/models"
	"github.com/taxdesk/taxdesk/internal/transfer"
	stringutil "github.com/taxdesk/taxdesk/internal/util/strings"
)

var (
	ErrSessionClosed = errors.New("upload session is closed")
	ErrFileNotFound  = errors.New("staged file not found")
	ErrUploading     = errors.New("an upload is already running")
)

// UploadFunc sends one document. api.Client.UploadDocument satisfies it.
type UploadFunc func(ctx context.Context, payload io.Reader, meta models.UploadMetadata, progress api.ProgressFunc) (*models.UploadResult, error)

// Options tunes a session.
type Options struct {
	Workers      int
	MaxRetries   int
	MaxFileSize  int64 // bytes, 0 = unlimited
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultOptions returns the built-in limits.
func DefaultOptions() Options {
	return Options{
		Workers:      constants.DefaultUploadWorkers,
		MaxRetries:   constants.DefaultUploadMaxRetries,
		MaxFileSize:  int64(constants.DefaultMaxFileSizeMB) * 1024 * 1024,
		InitialDelay: constants.UploadRetryInitialDelay,
		MaxDelay:     constants.UploadRetryMaxDelay,
	}
}

// OptionsFromConfig applies the [upload] section of cfg over the defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.UploadWorkers > 0 {
		opts.Workers = cfg.UploadWorkers
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	opts.MaxFileSize = cfg.MaxFileSizeBytes()
	return opts
}

// File is a snapshot of one staged file.
type File struct {
	ID         string             `json:"id" yaml:"id"`
	Name       string             `json:"name" yaml:"name"`
	Size       int64              `json:"size" yaml:"size"`
	SizeLabel  string             `json:"size_label" yaml:"size_label"`
	PreviewURL string             `json:"preview_url,omitempty" yaml:"preview_url,omitempty"`
	FolderID   string             `json:"folder_id,omitempty" yaml:"folder_id,omitempty"`
	FolderPath string             `json:"folder_path,omitempty" yaml:"folder_path,omitempty"`
	Status     transfer.TaskState `json:"status" yaml:"status"`
	Errors     []string           `json:"errors,omitempty" yaml:"errors,omitempty"`
	Attempts   int                `json:"attempts" yaml:"attempts"`
	Progress   float64            `json:"progress" yaml:"progress"`
	Document   *models.Document   `json:"document,omitempty" yaml:"document,omitempty"`
}

// Summary is the outcome of a submission.
type Summary struct {
	Succeeded int
	Failed    int
	Files     []File
}

type entry struct {
	id         string // transfer task ID
	name       string
	size       int64
	payload    Payload
	preview    string
	folderID   string
	folderPath string
	errors     []string
	document   *models.Document
}

// Session holds the files staged for one upload. It is safe for concurrent use.
type Session struct {
	upload   UploadFunc
	opts     Options
	previews PreviewProvider
	queue    *transfer.Queue

	mu            sync.Mutex
	entries       []*entry
	byID          map[string]*entry
	defaultFolder string
	defaultPath   string
	submitting    bool
	closed        bool

	bus    *events.EventBus
	logger *logging.Logger
}

// NewSession creates an empty session. previews, bus and logger may be nil.
func NewSession(upload UploadFunc, opts Options, previews PreviewProvider, bus *events.EventBus, logger *logging.Logger) *Session {
	if opts.Workers <= 0 {
		opts.Workers = constants.DefaultUploadWorkers
	}
	if opts.Workers > constants.MaxUploadWorkers {
		opts.Workers = constants.MaxUploadWorkers
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &Session{
		upload:   upload,
		opts:     opts,
		previews: previews,
		queue:    transfer.NewQueue(bus),
		byID:     make(map[string]*entry),
		bus:      bus,
		logger:   logging.OrNop(logger).Child("upload"),
	}
}

// Queue exposes the task tracker, for progress displays.
func (s *Session) Queue() *transfer.Queue {
	return s.queue
}

// Add stages content under name. A preview handle is created when a
// provider is configured; preview failures are logged, not returned.
func (s *Session) Add(name string, size int64, payload Payload) (File, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return File{}, ErrSessionClosed
	}
	folderID, folderPath := s.defaultFolder, s.defaultPath
	s.mu.Unlock()

	var preview string
	if s.previews != nil {
		handle, err := s.previews.Create(name, payload)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("preview unavailable")
		} else {
			preview = handle
		}
	}

	task := s.queue.Track(name, size, sourceLabel(payload, name), folderID)
	e := &entry{
		id:         task.ID,
		name:       name,
		size:       size,
		payload:    payload,
		preview:    preview,
		folderID:   folderID,
		folderPath: folderPath,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.release(e)
		return File{}, ErrSessionClosed
	}
	s.entries = append(s.entries, e)
	s.byID[e.id] = e
	snap := s.snapshotLocked(e)
	s.mu.Unlock()

	s.logger.Debug().Str("file_id", e.id).Str("name", name).Int64("size", size).Msg("file staged")
	return snap, nil
}

// AddPath stages a file from disk.
func (s *Session) AddPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return s.Add(filepath.Base(path), info.Size(), FilePayload{Path: path})
}

func sourceLabel(p Payload, name string) string {
	if fp, ok := p.(FilePayload); ok {
		return fp.Path
	}
	return name
}

// Remove unstages a file and revokes its preview.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	delete(s.byID, id)
	for i, x := range s.entries {
		if x == e {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.release(e)
	return nil
}

// release revokes e's preview and drops its task.
func (s *Session) release(e *entry) {
	if e.preview != "" && s.previews != nil {
		if err := s.previews.Revoke(e.preview); err != nil {
			s.logger.Warn().Err(err).Str("file_id", e.id).Msg("failed to revoke preview")
		}
	}
	if err := s.queue.Remove(e.id); err != nil && !errors.Is(err, transfer.ErrTaskNotFound) {
		s.logger.Debug().Err(err).Str("file_id", e.id).Msg("failed to drop task")
	}
}

// AssignFolder sets the destination of one file.
func (s *Session) AssignFolder(id, folderID, folderPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	e.folderID, e.folderPath = folderID, folderPath
	return s.queue.SetDest(id, folderID)
}

// AssignAll sets the destination of every file not yet uploaded, and of
// files staged later.
func (s *Session) AssignAll(folderID, folderPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultFolder, s.defaultPath = folderID, folderPath
	for _, e := range s.entries {
		if t, ok := s.queue.GetTask(e.id); ok && t.State == transfer.TaskSucceeded {
			continue
		}
		e.folderID, e.folderPath = folderID, folderPath
		_ = s.queue.SetDest(e.id, folderID)
	}
}

// Files returns snapshots of all staged files in staging order.
func (s *Session) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]File, 0, len(s.entries))
	for _, e := range s.entries {
		files = append(files, s.snapshotLocked(e))
	}
	return files
}

// File returns one snapshot.
func (s *Session) File(id string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return File{}, false
	}
	return s.snapshotLocked(e), true
}

func (s *Session) snapshotLocked(e *entry) File {
	f := File{
		ID:         e.id,
		Name:       e.name,
		Size:       e.size,
		SizeLabel:  stringutil.FormatBytes(e.size),
		PreviewURL: e.preview,
		FolderID:   e.folderID,
		FolderPath: e.folderPath,
		Status:     transfer.TaskPending,
		Errors:     append([]string(nil), e.errors...),
		Document:   e.document,
	}
	if t, ok := s.queue.GetTask(e.id); ok {
		f.Status = t.State
		f.Attempts = t.Attempts
		f.Progress = t.Progress
	}
	return f
}

// Validate checks every pending file and records the problems on each.
// The returned error joins one *ValidationError per invalid file.
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked(s.pendingLocked())
}

func (s *Session) validateLocked(entries []*entry) error {
	var errs []error
	for _, e := range entries {
		problems := validateEntry(e, s.opts.MaxFileSize)
		e.errors = problems
		if len(problems) > 0 {
			errs = append(errs, &ValidationError{FileID: e.id, Name: e.name, Messages: problems})
		}
	}
	return errors.Join(errs...)
}

func (s *Session) pendingLocked() []*entry {
	var pending []*entry
	for _, e := range s.entries {
		if t, ok := s.queue.GetTask(e.id); ok && t.State == transfer.TaskPending {
			pending = append(pending, e)
		}
	}
	return pending
}

// Submit uploads every pending file, Options.Workers at a time. Invalid
// files stop the submission before any request is made. A failed file does
// not stop the others; its status becomes error with the server's message.
func (s *Session) Submit(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Summary{}, ErrSessionClosed
	}
	if s.submitting {
		s.mu.Unlock()
		return Summary{}, ErrUploading
	}
	pending := s.pendingLocked()
	if err := s.validateLocked(pending); err != nil {
		s.mu.Unlock()
		return Summary{}, err
	}
	s.submitting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	s.logger.Info().Int("files", len(pending)).Int("workers", s.opts.Workers).Msg("submitting uploads")

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for _, e := range pending {
		e := e
		g.Go(func() error {
			s.uploadOne(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	summary := s.summarize(pending)
	s.publishDocumentsChanged(summary)
	return summary, ctx.Err()
}

// Retry re-attempts one failed file.
func (s *Session) Retry(ctx context.Context, id string) (File, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return File{}, ErrSessionClosed
	}
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return File{}, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	if err := s.queue.Requeue(id); err != nil {
		s.mu.Unlock()
		return File{}, fmt.Errorf("cannot retry %s: %w", e.name, err)
	}
	if err := s.validateLocked([]*entry{e}); err != nil {
		snap := s.snapshotLocked(e)
		s.mu.Unlock()
		return snap, err
	}
	s.mu.Unlock()

	s.uploadOne(ctx, e)

	summary := s.summarize([]*entry{e})
	s.publishDocumentsChanged(summary)
	f := summary.Files[0]
	if f.Status != transfer.TaskSucceeded {
		return f, fmt.Errorf("retry of %s failed: %s", f.Name, firstOr(f.Errors, "unknown error"))
	}
	return f, nil
}

// FailedIDs returns the ids of files whose last attempt failed.
func (s *Session) FailedIDs() []string {
	var ids []string
	for _, f := range s.Files() {
		if f.Status == transfer.TaskFailed {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func (s *Session) uploadOne(ctx context.Context, e *entry) {
	s.mu.Lock()
	meta := models.UploadMetadata{FolderID: models.FlexID(e.folderID), Name: e.name}
	s.mu.Unlock()

	s.queue.Start(e.id)

	uctx, cancel := context.WithTimeout(ctx, constants.UploadContextTimeout)
	defer cancel()
	s.queue.SetCancel(e.id, cancel)

	retryCfg := http.Config{
		MaxRetries:   s.opts.MaxRetries,
		InitialDelay: s.opts.InitialDelay,
		MaxDelay:     s.opts.MaxDelay,
		OnRetry: func(attempt int, err error, errType http.ErrorType) {
			s.logger.Warn().
				Err(err).
				Str("name", e.name).
				Int("attempt", attempt).
				Str("error_type", http.ErrorTypeName(errType)).
				Msg("upload failed, retrying")
		},
	}

	var result *models.UploadResult
	err := http.ExecuteWithRetry(uctx, retryCfg, func() error {
		rc, err := e.payload.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		res, err := s.upload(uctx, rc, meta, func(sent int64) {
			s.queue.UpdateProgress(e.id, sent)
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	s.mu.Lock()
	if err != nil {
		e.errors = []string{failureMessage(err)}
		e.document = nil
	} else {
		e.errors = nil
		if result != nil {
			e.document = result.Document
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("name", meta.Name).Str("folder_id", meta.FolderID.String()).Msg("upload failed")
		s.queue.Fail(e.id, err)
		return
	}
	s.logger.Info().Str("name", meta.Name).Str("folder_id", meta.FolderID.String()).Msg("upload complete")
	s.queue.Complete(e.id)
}

// failureMessage prefers the portal's own message.
func failureMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func firstOr(msgs []string, fallback string) string {
	if len(msgs) > 0 {
		return msgs[0]
	}
	return fallback
}

func (s *Session) summarize(entries []*entry) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum Summary
	for _, e := range entries {
		f := s.snapshotLocked(e)
		switch f.Status {
		case transfer.TaskSucceeded:
			sum.Succeeded++
		case transfer.TaskFailed, transfer.TaskCancelled:
			sum.Failed++
		}
		sum.Files = append(sum.Files, f)
	}
	return sum
}

// publishDocumentsChanged tells document listings to reload after any success.
func (s *Session) publishDocumentsChanged(sum Summary) {
	if sum.Succeeded == 0 {
		return
	}
	seen := make(map[string]struct{})
	var folders []string
	for _, f := range sum.Files {
		if f.Status != transfer.TaskSucceeded {
			continue
		}
		if _, ok := seen[f.FolderID]; !ok {
			seen[f.FolderID] = struct{}{}
			folders = append(folders, f.FolderID)
		}
	}
	sort.Strings(folders)

	s.bus.Publish(&events.DocumentsChangedEvent{
		BaseEvent: events.NewBase(events.EventDocumentsChanged),
		FolderIDs: folders,
		Succeeded: sum.Succeeded,
		Failed:    sum.Failed,
	})
}

// Reset unstages everything and revokes all previews.
func (s *Session) Reset() {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.byID = make(map[string]*entry)
	s.defaultFolder, s.defaultPath = "", ""
	s.mu.Unlock()

	for _, e := range entries {
		s.release(e)
	}
	s.queue.Reset()
}

// Close resets the session and rejects further use.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Reset()
}
