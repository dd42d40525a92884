package foldertree

// Tree utilities shared by the store, controller, renderer and CLI. They
// operate on immutable nodes: anything that changes the tree returns a new
// root and leaves the input untouched.

// FindByID returns the first node with the given id in depth-first order, or nil.
func FindByID(root *Node, id string) *Node {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return root
	}
	for _, child := range root.Children {
		if found := FindByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// PathToID returns the nodes from root down to the node with id, inclusive.
// Nil when id is not in the tree.
func PathToID(root *Node, id string) []*Node {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return []*Node{root}
	}
	for _, child := range root.Children {
		if sub := PathToID(child, id); sub != nil {
			return append([]*Node{root}, sub...)
		}
	}
	return nil
}

// MapPath replaces the node with id by fn(node) and copies every ancestor so
// the result shares all untouched subtrees with root. When fn returns nil the
// node is removed from its parent. Reports false when id is not found.
func MapPath(root *Node, id string, fn func(*Node) *Node) (*Node, bool) {
	path := PathToID(root, id)
	if path == nil {
		return root, false
	}

	replaced := fn(path[len(path)-1])
	for i := len(path) - 2; i >= 0; i-- {
		parent, child := path[i], path[i+1]
		kids := make([]*Node, 0, len(parent.Children))
		for _, k := range parent.Children {
			if k != child {
				kids = append(kids, k)
			} else if replaced != nil {
				kids = append(kids, replaced)
			}
		}
		replaced = parent.withChildren(kids)
	}
	if replaced == nil {
		// fn removed the root itself; keep the tree
		return root, false
	}
	return replaced, true
}

// UpdateByID applies fn to a copy of the node with id.
func UpdateByID(root *Node, id string, fn func(*Node)) (*Node, bool) {
	return MapPath(root, id, func(n *Node) *Node {
		c := n.shallowCopy()
		fn(c)
		return c
	})
}

// RemoveByID removes the first node with id together with its subtree.
// The root cannot be removed.
func RemoveByID(root *Node, id string) (*Node, bool) {
	if root == nil || root.ID == id {
		return root, false
	}
	return MapPath(root, id, func(*Node) *Node { return nil })
}

// Walk visits nodes in pre-order. Returning false from fn skips the node's children.
func Walk(root *Node, fn func(n *Node, depth int) bool) {
	walk(root, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for _, child := range n.Children {
		walk(child, depth+1, fn)
	}
}

// Count returns the number of nodes below root.
func Count(root *Node) int {
	total := 0
	Walk(root, func(n *Node, _ int) bool {
		if n != root {
			total++
		}
		return true
	})
	return total
}
