// Package upload stages local files for upload into a portal folder, tracks
// each file through validation and upload, and lets single failures be retried.
package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Payload is reopenable file content. Each upload attempt opens it afresh.
type Payload interface {
	Open() (io.ReadCloser, error)
}

// FilePayload reads a file from disk.
type FilePayload struct {
	Path string
}

func (p FilePayload) Open() (io.ReadCloser, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(p.Path), err)
	}
	return f, nil
}

// BytesPayload serves content held in memory.
type BytesPayload struct {
	Data []byte
}

func (p BytesPayload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.Data)), nil
}
