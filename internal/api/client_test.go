package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taxdesk/taxdesk/internal/config"
	"github.com/taxdesk/taxdesk/internal/models"
	"github.com/taxdesk/taxdesk/internal/ratelimit"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := &config.Config{
		APIBaseURL: ts.URL,
		Token:      "test-token",
		ClientID:   "77",
		ProxyMode:  config.ProxyModeNone,
	}
	c, err := NewClient(cfg, WithRateLimiter(ratelimit.NewRateLimiter(1000, 1000)))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

// TestNewClientRejectsEmptyBaseURL verifies that NewClient fails with a clear error
// when APIBaseURL is empty, instead of creating a broken client that produces
// "unsupported protocol scheme" errors on every request.
func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := &config.Config{
		APIBaseURL: "",
		Token:      "test-key",
		ProxyMode:  config.ProxyModeNone,
	}

	_, err := NewClient(cfg)
	if err == nil {
		t.Fatal("NewClient() should return error for empty APIBaseURL")
	}

	if !strings.Contains(err.Error(), "API base URL is empty") {
		t.Errorf("NewClient() error = %q, want error containing 'API base URL is empty'", err.Error())
	}
}

// TestNewClientAcceptsValidBaseURL verifies NewClient works with a valid config.
func TestNewClientAcceptsValidBaseURL(t *testing.T) {
	cfg := &config.Config{
		APIBaseURL: "https://portal.taxdesk.app/",
		Token:      "test-key",
		ProxyMode:  config.ProxyModeNone,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v, want nil", err)
	}
	if client.baseURL != "https://portal.taxdesk.app" {
		t.Errorf("trailing slash not trimmed: %s", client.baseURL)
	}
}

func TestListFolders_RootAndScoped(t *testing.T) {
	var gotQuery, gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/folders/" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":1,"title":"A"},{"id":2,"title":"B"}]`)
	}))

	listing, err := c.ListFolders(context.Background(), "", "")
	if err != nil {
		t.Fatalf("ListFolders() error = %v", err)
	}
	if len(listing.Folders) != 2 || listing.Folders[0].ID != "1" {
		t.Errorf("unexpected listing %+v", listing)
	}
	if gotQuery != "client_id=77" {
		t.Errorf("root listing should omit folder_id, got query %q", gotQuery)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}

	if _, err := c.ListFolders(context.Background(), "1", "5"); err != nil {
		t.Fatalf("ListFolders() error = %v", err)
	}
	if gotQuery != "client_id=5&folder_id=1" {
		t.Errorf("unexpected scoped query %q", gotQuery)
	}
	if c.TotalCalls() != 2 {
		t.Errorf("expected 2 calls, got %d", c.TotalCalls())
	}
}

func TestListFolders_ErrorMessageVerbatim(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Folder not found."}`)
	}))

	_, err := c.ListFolders(context.Background(), "404", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Folder not found." {
		t.Errorf("expected verbatim message, got %q", err.Error())
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should match")
	}
}

func TestCreateFolder(t *testing.T) {
	var got models.CreateFolderRequest
	var raw map[string]interface{}
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		json.Unmarshal(body, &raw)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"folder":{"id":99,"title":"2024 Returns"}}`)
	}))

	rec, err := c.CreateFolder(context.Background(), models.CreateFolderRequest{Title: "2024 Returns"})
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if rec.ID != "99" || rec.DisplayName() != "2024 Returns" {
		t.Errorf("unexpected record %+v", rec)
	}
	if got.Title != "2024 Returns" || got.ClientID != "77" {
		t.Errorf("unexpected request %+v", got)
	}
	if _, ok := raw["parent_id"]; ok {
		t.Error("parent_id must be omitted for top-level folders")
	}
}

func TestCreateFolder_ConflictNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"message":"A folder with this name already exists"}`)
	}))

	_, err := c.CreateFolder(context.Background(), models.CreateFolderRequest{Title: "Dup", ParentID: "4"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "A folder with this name already exists" {
		t.Errorf("expected verbatim message, got %q", err.Error())
	}
	if !IsConflict(err) {
		t.Error("IsConflict should match")
	}
	if calls.Load() != 1 {
		t.Errorf("create must not be retried, got %d calls", calls.Load())
	}
}

func TestCreateFolder_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.CreateFolder(context.Background(), models.CreateFolderRequest{Title: "X"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("POST must not be retried on 5xx, got %d calls", calls.Load())
	}
}

func TestUploadDocument_Multipart(t *testing.T) {
	var gotFile, gotName string
	var gotMeta models.UploadMetadata
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents/upload/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		gotFile = string(data)
		gotName = hdr.Filename
		json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta)
		io.WriteString(w, `{"success":true,"message":"ok","document":{"id":5,"name":"w2.pdf"}}`)
	}))

	var lastProgress int64
	res, err := c.UploadDocument(context.Background(), strings.NewReader("PDFDATA"),
		models.UploadMetadata{FolderID: "12", Name: "w2.pdf"},
		func(sent int64) { lastProgress = sent })
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
	if !res.Success || res.Document == nil || res.Document.ID != "5" {
		t.Errorf("unexpected result %+v", res)
	}
	if gotFile != "PDFDATA" || gotName != "w2.pdf" {
		t.Errorf("unexpected file part %q %q", gotName, gotFile)
	}
	if gotMeta.FolderID != "12" || gotMeta.Name != "w2.pdf" || gotMeta.ClientID != "77" {
		t.Errorf("unexpected metadata %+v", gotMeta)
	}
	if lastProgress != int64(len("PDFDATA")) {
		t.Errorf("expected progress %d, got %d", len("PDFDATA"), lastProgress)
	}
}

func TestUploadDocument_SuccessFalse(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"success":false,"message":"File type not allowed"}`)
	}))

	_, err := c.UploadDocument(context.Background(), strings.NewReader("x"),
		models.UploadMetadata{FolderID: "1", Name: "a.exe"}, nil)
	if err == nil || err.Error() != "File type not allowed" {
		t.Errorf("expected server message, got %v", err)
	}
}

func TestUploadDocument_EarlyReject(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		io.WriteString(w, `{"error":"File too large"}`)
	}))

	big := strings.NewReader(strings.Repeat("x", 4<<20))
	done := make(chan error, 1)
	go func() {
		_, err := c.UploadDocument(context.Background(), big, models.UploadMetadata{FolderID: "1", Name: "big.pdf"}, nil)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upload hung after early server response")
	}
}

func TestRetriesWaitForRateLimiter(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `[]`)
	}))
	// Five tokens and practically no refill
	c.limiter = ratelimit.NewRateLimiter(0.001, 5)

	if _, err := c.ListFolders(context.Background(), "", ""); err != nil {
		t.Fatalf("ListFolders() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, server saw %d requests", calls.Load())
	}
	if tokens := c.limiter.GetCurrentTokens(); tokens > 3.1 {
		t.Errorf("both attempts should take a token, %.2f left", tokens)
	}
	if c.TotalCalls() != 2 {
		t.Errorf("TotalCalls() = %d, want 2", c.TotalCalls())
	}
}

func TestThrottledResponseDrainsAndCoolsDown(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `[]`)
	}))
	// One token a second: the retry gets the first token after the cooldown
	c.limiter = ratelimit.NewRateLimiter(1, 5)

	start := time.Now()
	if _, err := c.ListFolders(context.Background(), "", ""); err != nil {
		t.Fatalf("ListFolders() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected the 429 to be retried, server saw %d requests", calls.Load())
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("retry after 429 came too early: %v", elapsed)
	}

	// The bucket was emptied, so the next call waits for a refill
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.ListFolders(ctx, "", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the drained limiter to block, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("blocked call reached the server")
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", ratelimit.DefaultCooldown},
		{"abc", ratelimit.DefaultCooldown},
		{"3", 3 * time.Second},
		{"-2", ratelimit.DefaultCooldown},
		{" 7 ", 7 * time.Second},
		{"120", 2 * time.Minute},
		{"100000", ratelimit.MaxCooldown},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.header); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestCheckRetry(t *testing.T) {
	ctx := context.Background()
	post := &http.Request{Method: http.MethodPost}
	get := &http.Request{Method: http.MethodGet}

	tests := []struct {
		name string
		resp *http.Response
		want bool
	}{
		{"post 500", &http.Response{StatusCode: 500, Request: post}, false},
		{"post 429", &http.Response{StatusCode: 429, Request: post}, true},
		{"get 503", &http.Response{StatusCode: 503, Request: get}, true},
		{"get 404", &http.Response{StatusCode: 404, Request: get}, false},
	}
	for _, tt := range tests {
		got, _ := checkRetry(ctx, tt.resp, nil)
		if got != tt.want {
			t.Errorf("%s: checkRetry = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{400, `{"message":"Title is required"}`, "Title is required"},
		{400, `{"title":["This field may not be blank."]}`, "title: This field may not be blank."},
		{502, `Bad gateway from upstream`, "Bad gateway from upstream"},
		{503, ``, "503 Service Unavailable"},
	}
	for _, tt := range tests {
		if got := errorMessage(tt.status, []byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%d, %q) = %q, want %q", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(&APIError{StatusCode: 409, Message: "conflict"}) {
		t.Error("409 should be a conflict")
	}
	if !IsConflict(errors.New("Folder name already exists")) {
		t.Error("message match should be a conflict")
	}
	if IsConflict(nil) || IsConflict(&APIError{StatusCode: 400, Message: "bad"}) {
		t.Error("unexpected conflict")
	}
	if !IsUnauthorized(&APIError{StatusCode: 401}) {
		t.Error("401 should be unauthorized")
	}
}
