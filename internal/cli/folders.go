package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/internal/foldertree"
	"github.com/taxdesk/taxdesk/internal/models"
	"github.com/taxdesk/taxdesk/internal/progress"
	strutil "github.com/taxdesk/taxdesk/internal/util/strings"
)

// Output formats accepted by -o.
const (
	outputTable = "table"
	outputText  = "text"
)

// newFoldersCmd creates the 'folders' command group.
func newFoldersCmd() *cobra.Command {
	foldersCmd := &cobra.Command{
		Use:   "folders",
		Short: "Folder operations (list, tree, create)",
		Long:  `Commands for browsing and creating a client's document folders.`,
	}

	foldersCmd.AddCommand(newFoldersListCmd())
	foldersCmd.AddCommand(newFoldersTreeCmd())
	foldersCmd.AddCommand(newFoldersCreateCmd())

	return foldersCmd
}

// newFoldersListCmd creates the 'folders list' command.
func newFoldersListCmd() *cobra.Command {
	var folderID string
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the folders directly inside a folder",
		Long: `List one level of folders.

Example:
  # Top-level folders of the configured client
  taxdesk folders list

  # Subfolders of folder 42, as JSON
  taxdesk folders list --folder-id 42 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect()
			if err != nil {
				return err
			}
			defer p.Close()
			return runFoldersList(cmd.OutOrStdout(), p, folderID, output)
		},
	}

	cmd.Flags().StringVar(&folderID, "folder-id", "", "Folder to list (default: top level)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")

	return cmd
}

func runFoldersList(w io.Writer, p *portal, folderID, output string) error {
	listing, err := p.listing(GetContext(), folderID)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	nodes := foldertree.NodesFromRecords(listing.Folders)

	if output != outputTable {
		listing := &foldertree.Node{ID: folderID, Loaded: true, Children: nodes}
		return foldertree.Export(w, foldertree.NewSnapshot(listing, p.clientID), output)
	}

	if len(nodes) == 0 {
		fmt.Fprintln(w, "  (no folders)")
		return nil
	}
	fmt.Fprintf(w, "%-12s  %-40s  %9s  %10s\n", "ID", "NAME", "DOCUMENTS", "SUBFOLDERS")
	for _, n := range nodes {
		fmt.Fprintf(w, "%-12s  %-40s  %9d  %10d\n", n.ID, truncate(n.Name, 40), n.DocumentCount, n.SubfolderCount)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, listingFooter(listing, len(nodes)))
	return nil
}

// listingFooter summarizes a listing. The portal's totals cover the whole
// subtree when it sends them; a bare array only yields the folder count.
func listingFooter(listing *models.FolderListing, shown int) string {
	footer := fmt.Sprintf("%d %s", shown, strutil.Pluralize("folder", int64(shown)))
	if listing.TotalSubfolders > shown {
		footer += fmt.Sprintf(" (%d in all)", listing.TotalSubfolders)
	}
	if listing.TotalDocuments > 0 {
		footer += fmt.Sprintf(", %d %s", listing.TotalDocuments, strutil.Pluralize("document", int64(listing.TotalDocuments)))
	}
	return footer
}

// newFoldersTreeCmd creates the 'folders tree' command.
func newFoldersTreeCmd() *cobra.Command {
	var depth int
	var output string

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the folder tree down to a depth",
		Long: `Load the folder tree level by level and print it.

Folders below --depth are not fetched; they are shown with an expand
marker (▸) because their subfolders are unknown, never as empty.

Example:
  taxdesk folders tree --depth 2
  taxdesk folders tree -o yaml > folders.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect()
			if err != nil {
				return err
			}
			defer p.Close()

			reporter := progress.NewReporter(quiet)
			return runFoldersTree(cmd.OutOrStdout(), p, depth, output, reporter)
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", 3, "Levels to load (1 = top level only)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")

	return cmd
}

func runFoldersTree(w io.Writer, p *portal, depth int, output string, reporter progress.Reporter) error {
	reporter.Start("Loading folders")
	crawlErr := p.tree.ExpandToDepth(GetContext(), depth, func(string) { reporter.Increment() })
	reporter.Finish()

	var loadErr *foldertree.LoadError
	switch {
	case crawlErr == nil:
	case !p.store.IsLoaded(foldertree.RootID):
		return fmt.Errorf("%s: %w", foldertree.LoadFailedMessage, crawlErr)
	case errors.As(crawlErr, &loadErr):
		// Partial tree: the failed folders stay collapsed and unloaded
		GetLogger().Warn().Err(crawlErr).Msg(loadErr.UserMessage())
	default:
		return crawlErr
	}

	if output != outputText {
		return foldertree.Export(w, foldertree.NewSnapshot(p.store.Root(), p.clientID), output)
	}
	return foldertree.RenderText(w, p.tree.VisibleRows(), "")
}

// newFoldersCreateCmd creates the 'folders create' command.
func newFoldersCreateCmd() *cobra.Command {
	var name, description, parentID, parentPath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new folder",
		Long: `Create a folder at the top level or inside a parent folder.

Example:
  # Create folder at the top level
  taxdesk folders create --name "2024 Returns"

  # Create subfolder by parent path
  taxdesk folders create --name "W-2s" --parent-path "2024 Returns"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if parentID != "" && parentPath != "" {
				return fmt.Errorf("use either --parent-id or --parent-path, not both")
			}

			p, err := connect()
			if err != nil {
				return err
			}
			defer p.Close()
			return runFoldersCreate(cmd.OutOrStdout(), p, name, description, parentID, parentPath)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Folder name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Folder description")
	cmd.Flags().StringVar(&parentID, "parent-id", "", "Parent folder ID (default: top level)")
	cmd.Flags().StringVar(&parentPath, "parent-path", "", `Parent folder path, e.g. "Clients / Smith"`)

	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runFoldersCreate(w io.Writer, p *portal, name, description, parentID, parentPath string) error {
	ctx := GetContext()
	log := GetLogger()

	if parentPath != "" {
		parent, err := p.resolvePath(ctx, parentPath)
		if err != nil {
			return err
		}
		parentID = parent.ID
	}

	log.Info().Str("name", name).Str("parent", parentID).Msg("Creating folder")

	node, err := p.gateway.CreateFolder(ctx, name, description, parentID)
	if err != nil {
		var verr *foldertree.ValidationError
		if errors.As(err, &verr) {
			return err
		}
		return fmt.Errorf("failed to create folder: %w", err)
	}

	// The tree only knows the parent when it was resolved by path
	path := node.Name
	if parentID == foldertree.RootID || parentPath != "" {
		if sel, err := p.tree.SelectByID(node.ID); err == nil {
			path = sel.Path
		}
	}

	log.Info().Str("folder_id", node.ID).Msg("Folder created")
	fmt.Fprintf(w, "✓ Folder created successfully\n")
	fmt.Fprintf(w, "  Name: %s\n", node.Name)
	fmt.Fprintf(w, "  Path: %s\n", path)
	fmt.Fprintf(w, "  ID:   %s\n", node.ID)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
