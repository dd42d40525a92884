package foldertree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taxdesk/taxdesk/internal/events"
)

func TestStoreStartsUnloaded(t *testing.T) {
	s := NewStore(nil, nil)

	root := s.Root()
	require.True(t, root.IsRoot())
	require.False(t, root.Loaded)
	require.Empty(t, root.Children)
}

func TestSetRootsMarksRootLoaded(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})

	root := s.Root()
	require.True(t, root.Loaded)
	require.Equal(t, []string{"a", "b"}, childIDs(root))
	require.False(t, s.Find("a").Loaded)
}

func TestAttachChildrenLoadedIsSticky(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})
	require.False(t, s.IsLoaded("a"))

	require.True(t, s.AttachChildren("a", nil))
	a := s.Find("a")
	require.True(t, a.Loaded, "an empty result still counts as loaded")
	require.Empty(t, a.Children)

	require.True(t, s.AttachChildren("a", []*Node{{ID: "a1", Name: "A1"}}))
	require.True(t, s.IsLoaded("a"))
	require.Equal(t, "a", s.Find("a1").ParentID)
}

func TestAttachChildrenUnknownIDIsNoop(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})
	before := s.Root()

	require.NotPanics(t, func() {
		require.False(t, s.AttachChildren("ghost", []*Node{{ID: "x"}}))
	})
	require.Same(t, before, s.Root())
	require.Nil(t, s.Find("x"))
}

func TestAttachChildrenKeepsLoadedSubtrees(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})
	s.AttachChildren("a", []*Node{{ID: "a1", Name: "A1"}})

	// Refresh of the top level renames A and drops B
	s.SetRoots([]*Node{{ID: "a", Name: "A (renamed)"}, {ID: "c", Name: "C"}})

	a := s.Find("a")
	require.Equal(t, "A (renamed)", a.Name)
	require.True(t, a.Loaded)
	require.Equal(t, []string{"a1"}, childIDs(a))
	require.Nil(t, s.Find("b"))
	require.Equal(t, []string{"a", "c"}, childIDs(s.Root()))
}

func TestAttachChildrenSuppressesDuplicates(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})
	s.AttachChildren("a", []*Node{{ID: "x", Name: "X"}})

	// x moved under b, and the listing repeats it
	s.AttachChildren("b", []*Node{{ID: "x", Name: "X"}, {ID: "x", Name: "X again"}, {ID: "y", Name: "Y"}})

	require.Equal(t, []string{"x", "y"}, childIDs(s.Find("b")))
	require.Empty(t, s.Find("a").Children, "stale instance removed")

	seen := 0
	Walk(s.Root(), func(n *Node, _ int) bool {
		if n.ID == "x" {
			seen++
		}
		return true
	})
	require.Equal(t, 1, seen)
}

func TestAttachChildrenSkipsAncestors(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})
	s.AttachChildren("a", []*Node{{ID: "a1", Name: "A1"}})

	s.AttachChildren("a1", []*Node{{ID: "a", Name: "A"}, {ID: "a2", Name: "A2"}})

	require.Equal(t, []string{"a2"}, childIDs(s.Find("a1")))
	require.Equal(t, []string{"a"}, childIDs(s.Root()))
}

func TestInsertNodeThenFind(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})

	placed := s.InsertNode("a", &Node{ID: "99", Name: "2024 Returns"})
	require.Equal(t, "a", placed)

	n := s.Find("99")
	require.NotNil(t, n)
	require.Equal(t, "a", n.ParentID)
	require.False(t, s.IsLoaded("a"), "insert does not mark the parent loaded")
}

func TestInsertNodeUnknownParentFallsBackToRoot(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})

	placed := s.InsertNode("ghost", &Node{ID: "99", Name: "Orphan"})
	require.Equal(t, RootID, placed)
	require.Equal(t, []string{"a", "99"}, childIDs(s.Root()))
}

func TestInsertNodeExistingIDIsNoop(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})
	s.AttachChildren("a", []*Node{{ID: "a1", Name: "A1"}})

	placed := s.InsertNode(RootID, &Node{ID: "a1", Name: "dup"})
	require.Equal(t, "a", placed)
	require.Equal(t, []string{"a"}, childIDs(s.Root()))
	require.Equal(t, "A1", s.Find("a1").Name)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})
	snap := s.Root()

	s.AttachChildren("a", []*Node{{ID: "a1", Name: "A1"}})
	s.InsertNode(RootID, &Node{ID: "b", Name: "B"})

	require.Equal(t, []string{"a"}, childIDs(snap))
	require.False(t, FindByID(snap, "a").Loaded)
}

func TestResetDropsLateAttaches(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})
	gen := s.Generation()

	s.Reset()
	require.NotEqual(t, gen, s.Generation())
	require.False(t, s.AttachChildrenAt(gen, RootID, []*Node{{ID: "late"}}))
	require.Nil(t, s.Find("late"))
	require.False(t, s.Root().Loaded)
}

func TestStorePublishesTreeChanged(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventTreeChanged)

	s := NewStore(bus, nil)
	s.SetRoots([]*Node{{ID: "a", Name: "A"}})
	s.InsertNode("a", &Node{ID: "b", Name: "B"})

	var ops []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			ops = append(ops, ev.(*events.TreeChangedEvent).Op)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for tree event")
		}
	}
	require.Equal(t, []string{"set_roots", "insert"}, ops)
}
