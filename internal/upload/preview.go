package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/taxdesk/taxdesk/internal/constants"
	"github.com/taxdesk/taxdesk/internal/util/buffers"
	"github.com/taxdesk/taxdesk/internal/validation"
)

// ErrUnknownPreview is returned when revoking a handle that is not outstanding.
var ErrUnknownPreview = errors.New("unknown preview handle")

const previewScheme = "file://"

// PreviewProvider creates and releases transient preview handles for staged files.
// Every handle returned by Create must be passed to Revoke exactly once.
type PreviewProvider interface {
	Create(name string, payload Payload) (string, error)
	Revoke(handle string) error
	Outstanding() int
}

// TempPreviews writes the head of each file to a temp directory and hands
// out file:// URLs. Revoke deletes the file.
type TempPreviews struct {
	dir      string
	maxBytes int64

	mu      sync.Mutex
	handles map[string]string // handle -> path
	created int
	revoked int
}

// NewTempPreviews stores previews under dir.
func NewTempPreviews(dir string) *TempPreviews {
	return &TempPreviews{
		dir:      dir,
		maxBytes: constants.PreviewMaxBytes,
		handles:  make(map[string]string),
	}
}

// Create copies up to PreviewMaxBytes of payload into a new preview file.
func (p *TempPreviews) Create(name string, payload Payload) (string, error) {
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}

	src, err := payload.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	pattern := "preview-*-" + strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, filepath.Base(name))

	f, err := os.CreateTemp(p.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create preview: %w", err)
	}
	if _, err := buffers.Copy(f, io.LimitReader(src, p.maxBytes)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write preview: %w", err)
	}

	handle := previewScheme + filepath.ToSlash(f.Name())

	p.mu.Lock()
	p.handles[handle] = f.Name()
	p.created++
	p.mu.Unlock()

	return handle, nil
}

// Revoke deletes the preview behind handle.
func (p *TempPreviews) Revoke(handle string) error {
	p.mu.Lock()
	path, ok := p.handles[handle]
	if ok {
		delete(p.handles, handle)
		p.revoked++
	}
	p.mu.Unlock()

	if !ok {
		return ErrUnknownPreview
	}
	if err := validation.ValidatePathInDirectory(path, p.dir); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove preview: %w", err)
	}
	return nil
}

// Outstanding returns how many handles have not been revoked.
func (p *TempPreviews) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Stats returns the number of handles created and revoked so far.
func (p *TempPreviews) Stats() (created, revoked int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, p.revoked
}
