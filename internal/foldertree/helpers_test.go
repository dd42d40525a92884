package foldertree

import (
	"context"
	"sync"

	"github.com/taxdesk/taxdesk/internal/models"
)

func rec(id, title string) models.FolderRecord {
	return models.FolderRecord{ID: models.FlexID(id), Title: title}
}

// fakePortal serves folder listings from a map and counts requests per folder.
type fakePortal struct {
	mu       sync.Mutex
	children map[string][]models.FolderRecord
	failures map[string]error
	calls    map[string]int
	created  []models.CreateFolderRequest

	// gate, when set, blocks every list call until closed
	gate chan struct{}
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		children: make(map[string][]models.FolderRecord),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (p *fakePortal) set(id string, recs ...models.FolderRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[id] = recs
}

func (p *fakePortal) fail(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[id] = err
}

func (p *fakePortal) callsFor(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func (p *fakePortal) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

func (p *fakePortal) List(ctx context.Context, folderID string) ([]models.FolderRecord, error) {
	p.mu.Lock()
	p.calls[folderID]++
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[folderID]; err != nil {
		return nil, err
	}
	return p.children[folderID], nil
}

func (p *fakePortal) Create(ctx context.Context, req models.CreateFolderRequest) (*models.FolderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, req)
	if err := p.failures["create"]; err != nil {
		return nil, err
	}
	return &models.FolderRecord{ID: "99", Title: req.Title, Description: req.Description, ParentID: req.ParentID}, nil
}

type fixture struct {
	portal     *fakePortal
	store      *Store
	loader     *Loader
	controller *Controller
	gateway    *Gateway
}

func newFixture() *fixture {
	p := newFakePortal()
	s := NewStore(nil, nil)
	l := NewLoader(s, p.List, nil, nil)
	return &fixture{
		portal:     p,
		store:      s,
		loader:     l,
		controller: NewController(s, l, nil, nil),
		gateway:    NewGateway(s, p.Create, nil, nil),
	}
}

func childIDs(n *Node) []string {
	ids := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		ids = append(ids, c.ID)
	}
	return ids
}
