package models

// UploadMetadata is the JSON sidecar sent in the "metadata" part of a document upload.
type UploadMetadata struct {
	FolderID FlexID `json:"folder_id"`
	Name     string `json:"name"`
	ClientID FlexID `json:"client_id,omitempty"`
}

// Document is the portal's view of an uploaded file.
type Document struct {
	ID       FlexID `json:"id"`
	Name     string `json:"name,omitempty"`
	Title    string `json:"title,omitempty"`
	FolderID FlexID `json:"folder_id,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// UploadResult is the response of POST /api/documents/upload/.
type UploadResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// ErrorBody is the set of fields the portal uses to carry an error message.
type ErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// Text returns the first non-empty message field.
func (b ErrorBody) Text() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Error != "":
		return b.Error
	default:
		return b.Detail
	}
}
