package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"

	"github.com/taxdesk/taxdesk/internal/models"
)

const foldersPath = "/api/folders/"

// ListFolders lists the folders directly under folderID ("" for the top level),
// scoped to clientID (or the configured client when empty).
func (c *Client) ListFolders(ctx context.Context, folderID, clientID string) (*models.FolderListing, error) {
	query := url.Values{}
	if folderID != "" {
		query.Set("folder_id", folderID)
	}
	if cid := c.resolveClientID(clientID); cid != "" {
		query.Set("client_id", cid)
	}

	resp, err := c.doRequest(ctx, nethttp.MethodGet, foldersPath, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, readAPIError("list folders", resp)
	}

	var listing models.FolderListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode folder listing: %w", err)
	}

	c.logger.Debug().
		Str("folder_id", folderID).
		Int("folders", len(listing.Folders)).
		Msg("listed folders")

	return &listing, nil
}

// CreateFolder creates a folder and returns the server's record for it.
// The client scope defaults to the configured client when req.ClientID is empty.
func (c *Client) CreateFolder(ctx context.Context, req models.CreateFolderRequest) (*models.FolderRecord, error) {
	if req.ClientID == "" && c.clientID != "" {
		req.ClientID = models.FlexID(c.clientID)
	}

	resp, err := c.doRequest(ctx, nethttp.MethodPost, foldersPath, nil, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusCreated && resp.StatusCode != nethttp.StatusOK {
		return nil, readAPIError("create folder", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read create folder response: %w", err)
	}

	record, err := models.DecodeFolderRecord(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if record.ID == "" {
		return nil, fmt.Errorf("create folder response has no id")
	}

	return record, nil
}
