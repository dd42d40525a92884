package foldertree

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderText(t *testing.T) {
	root := sampleTree()
	root.Children[0].DocumentCount = 4

	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, FlattenAll(root), "a1"))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "▾ A (4 docs)")
	require.True(t, strings.HasPrefix(lines[1], "*"), "selected row is marked")
	require.Contains(t, lines[1], "A1  [no subfolders]")
	require.Contains(t, lines[2], "▸ B")
	require.NotContains(t, lines[2], "no subfolders", "unloaded node must offer expansion")
}

func TestFlattenAllLeavesUnloadedCollapsed(t *testing.T) {
	rows := FlattenAll(sampleTree())
	require.Len(t, rows, 3)

	b := rows[2]
	require.Equal(t, "B", b.Node.Name)
	require.False(t, b.Node.Loaded)
	require.Equal(t, Collapsed, b.State)
	require.Equal(t, AffordanceExpand, b.Affordance)
}

func TestFlattenExpandedButUnloadedShowsLoading(t *testing.T) {
	rows := Flatten(sampleTree(), func(string) bool { return true })
	require.Equal(t, Expanding, rows[2].State)
	require.Equal(t, AffordanceLoading, rows[2].Affordance)
}

func TestRenderTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, nil, ""))
	require.Contains(t, buf.String(), "(no folders)")
}

func TestFlattenHidesChildrenOfCollapsed(t *testing.T) {
	rows := Flatten(sampleTree(), func(string) bool { return false })
	require.Len(t, rows, 2)
	require.Equal(t, AffordanceExpand, rows[0].Affordance)
	require.Equal(t, Collapsed, rows[0].State)
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, NewSnapshot(sampleTree(), "42"), FormatJSON))

	var decoded struct {
		ClientID string `json:"client_id"`
		Total    int    `json:"total"`
		Folders  []struct {
			ID       string `json:"id"`
			Loaded   bool   `json:"loaded"`
			Children []struct {
				ID string `json:"id"`
			} `json:"children"`
		} `json:"folders"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "42", decoded.ClientID)
	require.Equal(t, 3, decoded.Total)
	require.Len(t, decoded.Folders, 2)
	require.True(t, decoded.Folders[0].Loaded)
	require.Equal(t, "a1", decoded.Folders[0].Children[0].ID)
}

func TestExportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, NewSnapshot(sampleTree(), ""), FormatYAML))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, 3, decoded["total"])
	require.NotContains(t, decoded, "client_id")
}

func TestExportUnknownFormat(t *testing.T) {
	require.Error(t, Export(&bytes.Buffer{}, NewSnapshot(nil, ""), "xml"))
}
