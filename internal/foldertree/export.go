package foldertree

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Snapshot is the exported form of the tree.
type Snapshot struct {
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	ClientID   string    `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Folders    []*Node   `json:"folders" yaml:"folders"`
	Total      int       `json:"total" yaml:"total"`
}

// NewSnapshot captures the folders below root.
func NewSnapshot(root *Node, clientID string) Snapshot {
	folders := []*Node{}
	if root != nil {
		folders = append(folders, root.Children...)
	}
	return Snapshot{
		ExportedAt: time.Now().UTC(),
		ClientID:   clientID,
		Folders:    folders,
		Total:      Count(root),
	}
}

// Export writes snap to w in format (json or yaml).
func Export(w io.Writer, snap Snapshot, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported export format %q (use json or yaml)", format)
	}
}
