package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexID is a server-assigned identifier that may arrive as a JSON number or string.
// It is always carried as a string client-side; null decodes to "".
type FlexID string

// UnmarshalJSON accepts 99, "99" and null.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid id %s: %w", data, err)
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = FlexID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so the portal sees the shape it issued.
func (id FlexID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id FlexID) String() string { return string(id) }

// FolderRecord is one folder as returned by the list and create endpoints.
type FolderRecord struct {
	ID             FlexID `json:"id"`
	Title          string `json:"title,omitempty"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	ParentID       FlexID `json:"parent_id,omitempty"`
	DocumentCount  int    `json:"document_count,omitempty"`
	SubfolderCount int    `json:"subfolder_count,omitempty"`
}

// DisplayName returns the title, falling back to name.
func (r FolderRecord) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// FolderListing is the decoded response of GET /api/folders/.
// The portal returns either a bare array or an envelope with totals.
type FolderListing struct {
	Folders         []FolderRecord `json:"folders"`
	TotalDocuments  int            `json:"total_documents"`
	TotalSubfolders int            `json:"total_subfolders"`
}

type folderListingEnvelope struct {
	Folders         []FolderRecord `json:"folders"`
	Results         []FolderRecord `json:"results"`
	TotalDocuments  int            `json:"total_documents"`
	TotalSubfolders int            `json:"total_subfolders"`
}

// UnmarshalJSON decodes either response shape.
func (l *FolderListing) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var records []FolderRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return err
		}
		*l = FolderListing{Folders: records, TotalSubfolders: len(records)}
		return nil
	}

	var env folderListingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	folders := env.Folders
	if folders == nil {
		folders = env.Results
	}
	*l = FolderListing{
		Folders:         folders,
		TotalDocuments:  env.TotalDocuments,
		TotalSubfolders: env.TotalSubfolders,
	}
	return nil
}

// CreateFolderRequest is the body of POST /api/folders/.
type CreateFolderRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ParentID    FlexID `json:"parent_id,omitempty"`
	ClientID    FlexID `json:"client_id,omitempty"`
}

// DecodeFolderRecord decodes a create response, unwrapping {"folder": {...}} when present.
func DecodeFolderRecord(data []byte) (*FolderRecord, error) {
	var wrapped struct {
		Folder *FolderRecord `json:"folder"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Folder != nil {
		return wrapped.Folder, nil
	}

	var rec FolderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
