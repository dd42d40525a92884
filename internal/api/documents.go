package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/textproto"
	"sync/atomic"

	"github.com/taxdesk/taxdesk/internal/models"
	"github.com/taxdesk/taxdesk/internal/util/buffers"
)

const uploadPath = "/api/documents/upload/"

// ProgressFunc receives the cumulative number of payload bytes sent.
type ProgressFunc func(sent int64)

// UploadDocument streams one file to the portal as multipart/form-data with
// a "file" part and a JSON "metadata" part. A success=false body is returned
// as an *APIError carrying the server's message.
//
// The request is not retried here: the payload reader is consumed, so the
// caller reopens it and calls again.
func (c *Client) UploadDocument(ctx context.Context, payload io.Reader, meta models.UploadMetadata, progress ProgressFunc) (*models.UploadResult, error) {
	if meta.ClientID == "" && c.clientID != "" {
		meta.ClientID = models.FlexID(c.clientID)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadBody(mw, payload, meta.Name, metaJSON, progress)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Unblocks the writer goroutine if the server answers before reading the body
	defer pr.Close()
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.send(c.uploadClient, req, uploadPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readAPIError("upload document", resp)
	}

	var result models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "upload rejected by server"
		}
		return &result, &APIError{StatusCode: resp.StatusCode, Message: msg, Op: "upload document"}
	}

	c.logger.Debug().Str("name", meta.Name).Str("folder_id", meta.FolderID.String()).Msg("document uploaded")
	return &result, nil
}

func writeUploadBody(mw *multipart.Writer, payload io.Reader, name string, metaJSON []byte, progress ProgressFunc) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := buffers.Copy(part, &countingReader{r: payload, fn: progress}); err != nil {
		return fmt.Errorf("failed to stream %s: %w", name, err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="metadata"`)
	header.Set("Content-Type", "application/json")
	metaPart, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = metaPart.Write(metaJSON)
	return err
}

// countingReader reports cumulative bytes read.
type countingReader struct {
	r  io.Reader
	n  atomic.Int64
	fn ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		total := cr.n.Add(int64(n))
		if cr.fn != nil {
			cr.fn(total)
		}
	}
	return n, err
}
