package foldertree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTree() *Node {
	a1 := &Node{ID: "a1", Name: "A1", ParentID: "a", Loaded: true}
	a := &Node{ID: "a", Name: "A", Loaded: true, Children: []*Node{a1}}
	b := &Node{ID: "b", Name: "B"}
	return &Node{ID: RootID, Loaded: true, Children: []*Node{a, b}}
}

func TestFindByID(t *testing.T) {
	root := sampleTree()

	require.Equal(t, "A1", FindByID(root, "a1").Name)
	require.Equal(t, root, FindByID(root, RootID))
	require.Nil(t, FindByID(root, "missing"))
	require.Nil(t, FindByID(nil, "a"))
}

func TestPathToID(t *testing.T) {
	root := sampleTree()

	path := PathToID(root, "a1")
	require.Len(t, path, 3)
	require.Equal(t, []string{RootID, "a", "a1"}, []string{path[0].ID, path[1].ID, path[2].ID})

	require.Nil(t, PathToID(root, "missing"))
}

func TestUpdateByIDCopiesPath(t *testing.T) {
	root := sampleTree()
	oldA := root.Children[0]
	oldB := root.Children[1]

	updated, ok := UpdateByID(root, "a1", func(n *Node) { n.Name = "Renamed" })
	require.True(t, ok)

	require.Equal(t, "Renamed", FindByID(updated, "a1").Name)
	require.Equal(t, "A1", FindByID(root, "a1").Name, "input tree must not change")
	require.NotSame(t, oldA, updated.Children[0])
	require.Same(t, oldB, updated.Children[1], "untouched subtrees are shared")
}

func TestUpdateByIDMissing(t *testing.T) {
	root := sampleTree()
	updated, ok := UpdateByID(root, "missing", func(n *Node) { n.Name = "x" })
	require.False(t, ok)
	require.Same(t, root, updated)
}

func TestRemoveByID(t *testing.T) {
	root := sampleTree()

	updated, ok := RemoveByID(root, "a")
	require.True(t, ok)
	require.Nil(t, FindByID(updated, "a1"))
	require.Equal(t, []string{"b"}, childIDs(updated))
	require.NotNil(t, FindByID(root, "a"))

	_, ok = RemoveByID(root, RootID)
	require.False(t, ok)
}

func TestWalkAndCount(t *testing.T) {
	root := sampleTree()

	var visited []string
	Walk(root, func(n *Node, depth int) bool {
		visited = append(visited, n.ID)
		return n.ID != "a"
	})
	require.Equal(t, []string{RootID, "a", "b"}, visited)
	require.Equal(t, 3, Count(root))
	require.Equal(t, 0, Count(nil))
}

func TestJoinAndSplitPath(t *testing.T) {
	require.Equal(t, "Clients / 2024 Returns", JoinPath("Clients", "", "2024 Returns"))
	require.Equal(t, []string{"Clients", "2024 Returns"}, SplitPath(" Clients /2024 Returns "))
	require.Empty(t, SplitPath(""))
}
