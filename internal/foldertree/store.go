package foldertree

import (
	"sync"

	"github.com/taxdesk/taxdesk/internal/events"
	"github.com/taxdesk/taxdesk/internal/logging"
)

// Store owns the folder forest under a synthetic root.
// It is safe for concurrent use; readers get immutable snapshots.
type Store struct {
	mu         sync.RWMutex
	root       *Node
	generation uint64

	bus    *events.EventBus
	logger *logging.Logger
}

// NewStore creates an empty store. bus and logger may be nil.
func NewStore(bus *events.EventBus, logger *logging.Logger) *Store {
	return &Store{
		root:   newRoot(),
		bus:    bus,
		logger: logging.OrNop(logger).Child("foldertree"),
	}
}

func newRoot() *Node {
	return &Node{ID: RootID}
}

// Root returns the current snapshot.
func (s *Store) Root() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Find returns the node with id, or nil. Find(RootID) returns the root.
func (s *Store) Find(id string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FindByID(s.root, id)
}

// PathTo returns the nodes from the root down to id, inclusive.
func (s *Store) PathTo(id string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PathToID(s.root, id)
}

// IsLoaded reports whether id exists and its children have been fetched.
func (s *Store) IsLoaded(id string) bool {
	n := s.Find(id)
	return n != nil && n.Loaded
}

// Generation changes on every Reset. Attaches captured against an older
// generation are dropped.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SetRoots replaces the top-level folders and marks the root loaded.
func (s *Store) SetRoots(nodes []*Node) {
	s.mu.Lock()
	ok := s.attachLocked(RootID, nodes)
	s.mu.Unlock()

	if ok {
		s.bus.PublishTreeChanged("set_roots", RootID)
	}
}

// AttachChildren sets the children of id and marks it loaded.
// An unknown id is logged and ignored.
func (s *Store) AttachChildren(id string, children []*Node) bool {
	s.mu.Lock()
	ok := s.attachLocked(id, children)
	s.mu.Unlock()

	if ok {
		s.bus.PublishTreeChanged("attach", id)
	}
	return ok
}

// AttachChildrenAt is AttachChildren for a response started at generation gen.
// After a Reset it does nothing.
func (s *Store) AttachChildrenAt(gen uint64, id string, children []*Node) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Str("folder_id", id).Msg("dropping children for a reset tree")
		return false
	}
	ok := s.attachLocked(id, children)
	s.mu.Unlock()

	if ok {
		s.bus.PublishTreeChanged("attach", id)
	}
	return ok
}

func (s *Store) attachLocked(id string, children []*Node) bool {
	path := PathToID(s.root, id)
	if path == nil {
		s.logger.Warn().Str("folder_id", id).Msg("attach target not in tree, ignoring response")
		return false
	}

	lineage := make(map[string]struct{}, len(path))
	for _, n := range path {
		lineage[n.ID] = struct{}{}
	}

	merged := make([]*Node, 0, len(children))
	ids := make(map[string]struct{}, len(children))
	for _, c := range children {
		if c == nil || c.ID == RootID {
			continue
		}
		if _, dup := ids[c.ID]; dup {
			s.logger.Debug().Str("folder_id", c.ID).Msg("duplicate id in listing")
			continue
		}
		if _, cyc := lineage[c.ID]; cyc {
			s.logger.Warn().Str("folder_id", c.ID).Str("parent_id", id).Msg("listing contains an ancestor, skipping")
			continue
		}
		ids[c.ID] = struct{}{}

		nn := c.shallowCopy()
		nn.ParentID = id
		if existing := FindByID(s.root, c.ID); existing != nil {
			// Same folder seen before: keep what we know about its subtree
			nn.Loaded = existing.Loaded
			nn.Children = existing.Children
		}
		merged = append(merged, nn)
	}

	// One instance per id: drop stale copies anywhere in the forest
	root, _ := pruneIDs(s.root, ids)
	for i, n := range merged {
		merged[i], _ = pruneIDs(n, ids)
	}

	root, ok := UpdateByID(root, id, func(n *Node) {
		n.Children = merged
		n.Loaded = true
	})
	if !ok {
		return false
	}
	s.root = root
	return true
}

// pruneIDs removes every descendant of n whose id is in ids.
func pruneIDs(n *Node, ids map[string]struct{}) (*Node, bool) {
	if len(ids) == 0 || len(n.Children) == 0 {
		return n, false
	}
	changed := false
	kids := make([]*Node, 0, len(n.Children))
	for _, k := range n.Children {
		if _, drop := ids[k.ID]; drop {
			changed = true
			continue
		}
		nk, c := pruneIDs(k, ids)
		if c {
			changed = true
		}
		kids = append(kids, nk)
	}
	if !changed {
		return n, false
	}
	return n.withChildren(kids), true
}

// InsertNode appends node to parentID's children and returns the id it was
// placed under. Unknown parents fall back to the root. Inserting an id that
// is already in the tree does nothing.
func (s *Store) InsertNode(parentID string, node *Node) string {
	if node == nil || node.ID == RootID {
		s.logger.Warn().Msg("refusing to insert a node without an id")
		return RootID
	}

	s.mu.Lock()
	if path := PathToID(s.root, node.ID); path != nil {
		s.mu.Unlock()
		s.logger.Debug().Str("folder_id", node.ID).Msg("node already present")
		return path[len(path)-2].ID
	}

	if FindByID(s.root, parentID) == nil {
		s.logger.Warn().
			Str("folder_id", node.ID).
			Str("parent_id", parentID).
			Msg("parent not in tree, inserting at top level")
		parentID = RootID
	}

	nn := node.shallowCopy()
	nn.ParentID = parentID
	s.root, _ = UpdateByID(s.root, parentID, func(p *Node) {
		kids := make([]*Node, 0, len(p.Children)+1)
		kids = append(kids, p.Children...)
		p.Children = append(kids, nn)
	})
	s.mu.Unlock()

	s.bus.PublishTreeChanged("insert", nn.ID)
	return parentID
}

// Reset drops the whole tree. Responses still in flight become no-ops.
func (s *Store) Reset() {
	s.mu.Lock()
	s.root = newRoot()
	s.generation++
	s.mu.Unlock()

	s.bus.PublishTreeChanged("reset", RootID)
}
