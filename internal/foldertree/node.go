// Package foldertree holds the client-side model of the portal's folder
// hierarchy: a lazily populated forest of folder nodes, the loader that
// fetches one level at a time, the expansion/selection controller and the
// folder creation gateway.
//
// Nodes reachable from a snapshot are never mutated. Every store operation
// copies the nodes along the modified path, so a *Node returned by Root or
// Find can be read without locks.
package foldertree

import (
	"strings"

	"github.com/taxdesk/taxdesk/internal/constants"
	"github.com/taxdesk/taxdesk/internal/models"
)

// RootID identifies the synthetic root: "no folder_id", i.e. the top level.
const RootID = ""

// Node is one folder in the tree.
type Node struct {
	ID             string  `json:"id" yaml:"id"`
	Name           string  `json:"name" yaml:"name"`
	Description    string  `json:"description,omitempty" yaml:"description,omitempty"`
	ParentID       string  `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	DocumentCount  int     `json:"document_count,omitempty" yaml:"document_count,omitempty"`
	SubfolderCount int     `json:"subfolder_count,omitempty" yaml:"subfolder_count,omitempty"`
	Loaded         bool    `json:"loaded" yaml:"loaded"`
	Children       []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsRoot reports whether n is the synthetic root.
func (n *Node) IsRoot() bool {
	return n != nil && n.ID == RootID
}

// HasKnownChildren reports whether the children slice is authoritative and non-empty.
func (n *Node) HasKnownChildren() bool {
	return n.Loaded && len(n.Children) > 0
}

// shallowCopy copies the node; the children slice is shared until replaced.
func (n *Node) shallowCopy() *Node {
	c := *n
	return &c
}

// withChildren returns a copy of n owning a fresh children slice.
func (n *Node) withChildren(children []*Node) *Node {
	c := n.shallowCopy()
	c.Children = children
	return c
}

// NodeFromRecord maps a server record to an unloaded node.
func NodeFromRecord(rec models.FolderRecord) *Node {
	return &Node{
		ID:             rec.ID.String(),
		Name:           rec.DisplayName(),
		Description:    rec.Description,
		ParentID:       rec.ParentID.String(),
		DocumentCount:  rec.DocumentCount,
		SubfolderCount: rec.SubfolderCount,
	}
}

// NodesFromRecords maps records in server order.
func NodesFromRecords(recs []models.FolderRecord) []*Node {
	nodes := make([]*Node, 0, len(recs))
	for _, rec := range recs {
		nodes = append(nodes, NodeFromRecord(rec))
	}
	return nodes
}

// JoinPath builds the display path of a selection.
func JoinPath(names ...string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, constants.PathSeparator)
}

// SplitPath is the inverse of JoinPath. Segments are trimmed.
func SplitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, strings.TrimSpace(constants.PathSeparator)) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
