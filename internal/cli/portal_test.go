package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/taxdesk/taxdesk/internal/config"
	"github.com/taxdesk/taxdesk/internal/logging"
	"github.com/taxdesk/taxdesk/internal/models"
)

type folderJSON struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ParentID string `json:"parent_id,omitempty"`
}

// fakePortalServer serves the folder and upload endpoints from memory.
type fakePortalServer struct {
	mu        sync.Mutex
	children  map[string][]folderJSON // parent id ("" = top level) -> folders
	listCalls map[string]int
	failList  map[string]bool
	created   []map[string]any
	uploads   []string
	rejects   map[string]string // file name -> portal message
	nextID    int

	// documents, when set for a folder id, switches its listing to the
	// envelope shape carrying totals
	documents map[string]int
}

func newFakePortalServer() *fakePortalServer {
	return &fakePortalServer{
		children: map[string][]folderJSON{
			"":  {{ID: "1", Title: "Clients"}, {ID: "2", Title: "Archive"}},
			"1": {{ID: "11", Title: "Smith", ParentID: "1"}},
		},
		listCalls: make(map[string]int),
		failList:  make(map[string]bool),
		rejects:   make(map[string]string),
		documents: make(map[string]int),
		nextID:    99,
	}
}

func (f *fakePortalServer) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[id]
}

func (f *fakePortalServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/api/folders/" && r.Method == http.MethodGet:
		id := r.URL.Query().Get("folder_id")
		f.listCalls[id]++
		if f.failList[id] {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"detail":"bad folder"}`)
			return
		}
		list := f.children[id]
		if list == nil {
			list = []folderJSON{}
		}
		if docs, ok := f.documents[id]; ok {
			json.NewEncoder(w).Encode(map[string]any{
				"folders":          list,
				"total_documents":  docs,
				"total_subfolders": len(list) + 1,
			})
			return
		}
		json.NewEncoder(w).Encode(list)

	case r.URL.Path == "/api/folders/" && r.Method == http.MethodPost:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body)
		parent := ""
		if v, ok := body["parent_id"]; ok && v != nil {
			parent = fmt.Sprint(v) // numeric ids arrive as JSON numbers
		}
		rec := folderJSON{ID: fmt.Sprint(f.nextID), Title: fmt.Sprint(body["title"]), ParentID: parent}
		f.nextID++
		f.children[parent] = append(f.children[parent], rec)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"folder": rec})

	case r.URL.Path == "/api/documents/upload/" && r.Method == http.MethodPost:
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var meta models.UploadMetadata
		json.Unmarshal([]byte(r.FormValue("metadata")), &meta)
		f.uploads = append(f.uploads, meta.FolderID.String()+"/"+meta.Name)
		if msg, ok := f.rejects[meta.Name]; ok {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"document": map[string]any{"id": len(f.uploads), "name": meta.Name, "folder_id": meta.FolderID},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testPortal(t *testing.T) (*portal, *fakePortalServer) {
	t.Helper()
	logger = logging.Nop()

	fake := newFakePortalServer()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	cfg := config.NewConfig()
	cfg.APIBaseURL = ts.URL
	cfg.Token = "test-token"
	cfg.ClientID = "77"
	cfg.PreviewDir = filepath.Join(t.TempDir(), "previews")

	p, err := newPortal(cfg, logging.Nop())
	if err != nil {
		t.Fatalf("newPortal() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p, fake
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewPortalRequiresToken(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Token = ""
	if _, err := newPortal(cfg, nil); err != config.ErrMissingToken {
		t.Errorf("newPortal() error = %v, want ErrMissingToken", err)
	}
}

func TestResolvePath(t *testing.T) {
	p, fake := testPortal(t)
	ctx := GetContext()

	node, err := p.resolvePath(ctx, "clients / Smith")
	if err != nil {
		t.Fatalf("resolvePath() error = %v", err)
	}
	if node.ID != "11" {
		t.Errorf("resolved id = %s, want 11", node.ID)
	}

	// Second resolution reuses the loaded levels
	if _, err := p.resolvePath(ctx, "Clients / Smith"); err != nil {
		t.Fatal(err)
	}
	if fake.calls("") != 1 || fake.calls("1") != 1 {
		t.Errorf("expected one listing per level, got root=%d clients=%d", fake.calls(""), fake.calls("1"))
	}

	if _, err := p.resolvePath(ctx, "Clients / Jones"); err == nil {
		t.Error("expected error for unknown folder")
	}
	if _, err := p.resolvePath(ctx, " / "); err == nil {
		t.Error("expected error for empty path")
	}
}
