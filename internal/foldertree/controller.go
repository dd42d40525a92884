package foldertree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/taxdesk/taxdesk/internal/events"
	"github.com/taxdesk/taxdesk/internal/logging"
)

var (
	// ErrFolderNotFound is returned for ids that are not in the tree.
	ErrFolderNotFound = errors.New("folder not found in tree")
	// ErrRootNotSelectable is returned when selecting the synthetic root.
	ErrRootNotSelectable = errors.New("the top level is not a folder")
)

// NodeState is the display state of one node.
type NodeState int

const (
	Collapsed NodeState = iota
	Expanding           // expanded, children not fetched yet
	Expanded
)

func (s NodeState) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Expanding:
		return "expanding"
	case Expanded:
		return "expanded"
	default:
		return "unknown"
	}
}

// Selection is the folder chosen as the upload destination.
type Selection struct {
	ID   string `json:"id" yaml:"id"`
	Path string `json:"path" yaml:"path"`
}

// Controller tracks which nodes are expanded and which folder is selected.
// Expanding a node whose children were never fetched triggers a load.
type Controller struct {
	store  *Store
	loader *Loader

	mu        sync.RWMutex
	expanded  map[string]struct{}
	selection *Selection

	bus    *events.EventBus
	logger *logging.Logger
}

// NewController creates a controller over store and loader.
func NewController(store *Store, loader *Loader, bus *events.EventBus, logger *logging.Logger) *Controller {
	return &Controller{
		store:    store,
		loader:   loader,
		expanded: make(map[string]struct{}),
		bus:      bus,
		logger:   logging.OrNop(logger).Child("controller"),
	}
}

// ToggleExpand collapses an expanded node or expands a collapsed one,
// loading its children the first time. Collapsing never touches the network
// and keeps the loaded children. On load failure the node is collapsed again
// and the error returned.
func (c *Controller) ToggleExpand(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	if _, ok := c.expanded[id]; ok {
		delete(c.expanded, id)
		c.mu.Unlock()
		c.publishExpansion(id, false)
		return false, nil
	}
	c.mu.Unlock()

	if err := c.Expand(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// Expand marks id expanded and loads it if needed. Expanding an expanded,
// loaded node does nothing.
func (c *Controller) Expand(ctx context.Context, id string) error {
	node := c.store.Find(id)
	if node == nil {
		return fmt.Errorf("%w: %s", ErrFolderNotFound, id)
	}

	c.mu.Lock()
	_, already := c.expanded[id]
	c.expanded[id] = struct{}{}
	c.mu.Unlock()

	if !already {
		c.publishExpansion(id, true)
	}
	if node.Loaded {
		return nil
	}

	if err := c.loader.Load(ctx, node); err != nil {
		c.mu.Lock()
		delete(c.expanded, id)
		c.mu.Unlock()
		c.publishExpansion(id, false)
		return err
	}
	return nil
}

// Collapse removes id from the expanded set.
func (c *Controller) Collapse(id string) {
	c.mu.Lock()
	_, was := c.expanded[id]
	delete(c.expanded, id)
	c.mu.Unlock()

	if was {
		c.publishExpansion(id, false)
	}
}

// IsExpanded reports whether id is in the expanded set.
func (c *Controller) IsExpanded(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.expanded[id]
	return ok
}

// State returns the display state of id.
func (c *Controller) State(id string) NodeState {
	if !c.IsExpanded(id) {
		return Collapsed
	}
	if n := c.store.Find(id); n == nil || !n.Loaded {
		return Expanding
	}
	return Expanded
}

// Expanded returns the expanded ids, sorted.
func (c *Controller) Expanded() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.expanded))
	for id := range c.expanded {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// SelectFolder records node as the selection. ancestorPath holds the names
// of the node's ancestors, top level first.
func (c *Controller) SelectFolder(node *Node, ancestorPath []string) Selection {
	names := append(append([]string{}, ancestorPath...), node.Name)
	sel := Selection{ID: node.ID, Path: JoinPath(names...)}

	c.mu.Lock()
	c.selection = &sel
	c.mu.Unlock()

	c.logger.Debug().Str("folder_id", sel.ID).Str("path", sel.Path).Msg("folder selected")
	c.bus.Publish(&events.FolderEvent{
		BaseEvent: events.NewBase(events.EventFolderSelected),
		FolderID:  sel.ID,
		ParentID:  node.ParentID,
		Name:      node.Name,
		Path:      sel.Path,
	})
	return sel
}

// SelectByID selects a folder already in the tree, resolving its path from the store.
func (c *Controller) SelectByID(id string) (Selection, error) {
	if id == RootID {
		return Selection{}, ErrRootNotSelectable
	}
	path := c.store.PathTo(id)
	if path == nil {
		return Selection{}, fmt.Errorf("%w: %s", ErrFolderNotFound, id)
	}

	ancestors := make([]string, 0, len(path))
	for _, n := range path[1 : len(path)-1] {
		ancestors = append(ancestors, n.Name)
	}
	return c.SelectFolder(path[len(path)-1], ancestors), nil
}

// Selection returns the current selection, if any.
func (c *Controller) Selection() (Selection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selection == nil {
		return Selection{}, false
	}
	return *c.selection, true
}

// ClearSelection forgets the selected folder.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selection = nil
	c.mu.Unlock()
}

// Reset clears expansion and selection.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.expanded = make(map[string]struct{})
	c.selection = nil
	c.mu.Unlock()
}

// VisibleRows flattens the current tree honouring the expanded set.
func (c *Controller) VisibleRows() []Row {
	c.mu.RLock()
	expanded := make(map[string]struct{}, len(c.expanded))
	for id := range c.expanded {
		expanded[id] = struct{}{}
	}
	c.mu.RUnlock()

	return Flatten(c.store.Root(), func(id string) bool {
		_, ok := expanded[id]
		return ok
	})
}

func (c *Controller) publishExpansion(id string, expanded bool) {
	c.bus.Publish(&events.ExpansionEvent{
		BaseEvent: events.NewBase(events.EventExpansionChanged),
		FolderID:  id,
		Expanded:  expanded,
	})
}
