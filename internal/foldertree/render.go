package foldertree

import (
	"fmt"
	"io"
	"strings"
)

// Affordance is what a row shows next to the folder name.
type Affordance int

const (
	// AffordanceExpand: collapsed, or never loaded. Unloaded nodes always get this.
	AffordanceExpand Affordance = iota
	AffordanceCollapse
	AffordanceLoading
	// AffordanceEmpty: loaded and confirmed to have no subfolders.
	AffordanceEmpty
)

// Marker returns the glyph drawn for the affordance.
func (a Affordance) Marker() string {
	switch a {
	case AffordanceExpand:
		return "▸"
	case AffordanceCollapse:
		return "▾"
	case AffordanceLoading:
		return "…"
	default:
		return "·"
	}
}

// Row is one visible line of the tree.
type Row struct {
	Node       *Node
	Depth      int
	State      NodeState
	Affordance Affordance
}

// Flatten lists the visible rows below root in display order. Children are
// shown only for expanded, loaded nodes. The synthetic root is not a row.
func Flatten(root *Node, isExpanded func(id string) bool) []Row {
	if root == nil {
		return nil
	}
	var rows []Row
	for _, child := range root.Children {
		rows = flatten(rows, child, 0, isExpanded)
	}
	return rows
}

func flatten(rows []Row, n *Node, depth int, isExpanded func(string) bool) []Row {
	expanded := isExpanded(n.ID)
	row := Row{Node: n, Depth: depth, State: Collapsed}

	switch {
	case expanded && !n.Loaded:
		row.State = Expanding
		row.Affordance = AffordanceLoading
	case !n.Loaded:
		row.Affordance = AffordanceExpand
	case len(n.Children) == 0:
		row.Affordance = AffordanceEmpty
		if expanded {
			row.State = Expanded
		}
	case expanded:
		row.State = Expanded
		row.Affordance = AffordanceCollapse
	default:
		row.Affordance = AffordanceExpand
	}
	rows = append(rows, row)

	if row.State == Expanded {
		for _, child := range n.Children {
			rows = flatten(rows, child, depth+1, isExpanded)
		}
	}
	return rows
}

// FlattenAll lists every loaded node as if it were expanded. Unloaded nodes
// stay collapsed.
func FlattenAll(root *Node) []Row {
	return Flatten(root, func(id string) bool {
		n := FindByID(root, id)
		return n != nil && n.Loaded
	})
}

// RenderText writes rows as a numbered, indented listing. selectedID marks
// the selected folder with an asterisk.
func RenderText(w io.Writer, rows []Row, selectedID string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "  (no folders)")
		return err
	}

	width := len(fmt.Sprint(len(rows)))
	for i, r := range rows {
		mark := " "
		if selectedID != "" && r.Node.ID == selectedID {
			mark = "*"
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s%*d  %s%s %s", mark, width, i+1, strings.Repeat("  ", r.Depth), r.Affordance.Marker(), r.Node.Name)
		if r.Node.DocumentCount > 0 {
			fmt.Fprintf(&b, " (%d docs)", r.Node.DocumentCount)
		}
		switch r.Affordance {
		case AffordanceEmpty:
			b.WriteString("  [no subfolders]")
		case AffordanceLoading:
			b.WriteString("  [loading]")
		}

		if _, err := fmt.Fprintln(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}
