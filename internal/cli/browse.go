package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/internal/foldertree"
	"github.com/taxdesk/taxdesk/internal/upload"
	"github.com/taxdesk/taxdesk/internal/util/filter"
)

const browseHelp = `Commands:
  ls [-a]            show the folder tree (-a: every loaded folder)
  open N             expand or collapse folder N
  select N           make folder N the destination for new files and folders
  mkdir NAME [-- DESCRIPTION]
                     create a folder inside the selected one (top level if none)
  stage PATH...      add files (or the files in a directory) to upload,
                     assigned to the selected folder
  files              list staged files
  assign N|all       assign staged file N (or all) to the selected folder
  unstage N          remove staged file N
  upload             upload every pending file
  retry N            retry failed file N
  refresh            reload the tree from the portal
  help               show this help
  quit               leave (staged files are discarded)`

// newBrowseCmd creates the 'browse' command.
func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse folders and stage uploads interactively",
		Long: `Open an interactive folder browser.

Folders are fetched one level at a time as you open them. Opening a folder
a second time collapses it without contacting the portal.

` + browseHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect()
			if err != nil {
				return err
			}
			defer p.Close()

			sh := newShell(p, os.Stdin, cmd.OutOrStdout())
			defer sh.Close()
			return sh.Run(GetContext())
		},
	}
}

// shell is the interactive browser over one portal.
type shell struct {
	p       *portal
	session *upload.Session
	in      *bufio.Scanner
	out     io.Writer
	rows    []foldertree.Row
	files   []upload.File
}

func newShell(p *portal, in io.Reader, out io.Writer) *shell {
	return &shell{
		p:       p,
		session: p.newUploadSession(true),
		in:      bufio.NewScanner(in),
		out:     out,
	}
}

// Close discards staged files and their previews.
func (s *shell) Close() {
	s.session.Close()
}

// Run loads the top level and reads commands until quit or end of input.
func (s *shell) Run(ctx context.Context) error {
	if err := s.p.loader.LoadRoots(ctx); err != nil {
		return fmt.Errorf("%s: %w", foldertree.LoadFailedMessage, err)
	}
	if err := s.list(false); err != nil {
		return err
	}

	for {
		fmt.Fprint(s.out, "taxdesk> ")
		if !s.in.Scan() {
			fmt.Fprintln(s.out)
			return s.in.Err()
		}
		quit, err := s.exec(ctx, s.in.Text())
		if err != nil {
			fmt.Fprintf(s.out, "error: %s\n", userMessage(err))
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(s.out, browseHelp)
	case "ls":
		return false, s.list(arg == "-a")
	case "open":
		return false, s.open(ctx, arg)
	case "select":
		return false, s.selectRow(arg)
	case "mkdir":
		return false, s.mkdir(ctx, arg)
	case "stage":
		return false, s.stage(arg)
	case "files":
		s.listFiles()
	case "assign":
		return false, s.assign(arg)
	case "unstage":
		return false, s.unstage(arg)
	case "upload":
		return false, s.upload(ctx)
	case "retry":
		return false, s.retry(ctx, arg)
	case "refresh":
		return false, s.refresh(ctx)
	default:
		return false, fmt.Errorf("unknown command %q (type help)", cmd)
	}
	return false, nil
}

// list prints the tree and remembers the rows for numbered commands. With
// all set every loaded folder is shown, expanded or not.
func (s *shell) list(all bool) error {
	if all {
		s.rows = foldertree.FlattenAll(s.p.store.Root())
	} else {
		s.rows = s.p.tree.VisibleRows()
	}
	selected := ""
	if sel, ok := s.p.tree.Selection(); ok {
		selected = sel.ID
		fmt.Fprintf(s.out, "Selected: %s\n", sel.Path)
	}
	if err := foldertree.RenderText(s.out, s.rows, selected); err != nil {
		return fmt.Errorf("failed to print folders: %w", err)
	}
	return nil
}

func (s *shell) row(arg string) (*foldertree.Node, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.rows) {
		return nil, fmt.Errorf("pick a folder number between 1 and %d", len(s.rows))
	}
	return s.rows[n-1].Node, nil
}

func (s *shell) open(ctx context.Context, arg string) error {
	node, err := s.row(arg)
	if err != nil {
		return err
	}
	if _, err := s.p.tree.ToggleExpand(ctx, node.ID); err != nil {
		return err
	}
	return s.list(false)
}

func (s *shell) selectRow(arg string) error {
	node, err := s.row(arg)
	if err != nil {
		return err
	}
	sel, err := s.p.tree.SelectByID(node.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Selected: %s\n", sel.Path)
	return nil
}

func (s *shell) mkdir(ctx context.Context, arg string) error {
	name, description, _ := strings.Cut(arg, "--")
	parentID := foldertree.RootID
	if sel, ok := s.p.tree.Selection(); ok {
		parentID = sel.ID
	}

	node, err := s.p.gateway.CreateFolder(ctx, name, description, parentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "✓ Created %q (id %s)\n", node.Name, node.ID)
	return s.list(false)
}

func (s *shell) stage(arg string) error {
	if arg == "" {
		return errors.New("usage: stage PATH...")
	}
	sel, hasSel := s.p.tree.Selection()

	paths, err := filter.Expand(strings.Fields(arg), filter.Config{})
	if err != nil {
		return err
	}

	var errs []error
	for _, path := range paths {
		f, err := s.session.AddPath(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if hasSel {
			_ = s.session.AssignFolder(f.ID, sel.ID, sel.Path)
		}
		fmt.Fprintf(s.out, "  + %s (%s)\n", f.Name, f.SizeLabel)
	}
	s.files = nil
	return errors.Join(errs...)
}

func (s *shell) listFiles() {
	s.files = s.session.Files()
	if len(s.files) == 0 {
		fmt.Fprintln(s.out, "  (no staged files)")
		return
	}
	for i, f := range s.files {
		dest := f.FolderPath
		if dest == "" {
			dest = "(no folder)"
		}
		fmt.Fprintf(s.out, "%3d  %-10s %-30s %9s  → %s\n", i+1, f.Status, truncate(f.Name, 30), f.SizeLabel, dest)
		for _, msg := range f.Errors {
			fmt.Fprintf(s.out, "       ✗ %s\n", msg)
		}
	}
}

func (s *shell) file(arg string) (upload.File, error) {
	if s.files == nil {
		s.files = s.session.Files()
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.files) {
		return upload.File{}, fmt.Errorf("pick a file number between 1 and %d (see files)", len(s.files))
	}
	return s.files[n-1], nil
}

func (s *shell) assign(arg string) error {
	sel, ok := s.p.tree.Selection()
	if !ok {
		return errors.New("select a destination folder first")
	}
	if arg == "all" {
		s.session.AssignAll(sel.ID, sel.Path)
		s.listFiles()
		return nil
	}
	f, err := s.file(arg)
	if err != nil {
		return err
	}
	if err := s.session.AssignFolder(f.ID, sel.ID, sel.Path); err != nil {
		return err
	}
	s.listFiles()
	return nil
}

func (s *shell) unstage(arg string) error {
	f, err := s.file(arg)
	if err != nil {
		return err
	}
	if err := s.session.Remove(f.ID); err != nil {
		return err
	}
	s.listFiles()
	return nil
}

func (s *shell) upload(ctx context.Context) error {
	summary, err := s.session.Submit(ctx)
	if err != nil {
		s.listFiles()
		return err
	}
	s.listFiles()
	fmt.Fprintf(s.out, "Uploaded %d, failed %d\n", summary.Succeeded, summary.Failed)
	return nil
}

func (s *shell) retry(ctx context.Context, arg string) error {
	f, err := s.file(arg)
	if err != nil {
		return err
	}
	_, err = s.session.Retry(ctx, f.ID)
	s.listFiles()
	return err
}

func (s *shell) refresh(ctx context.Context) error {
	s.p.tree.Reset()
	s.p.store.Reset()
	if err := s.p.loader.LoadRoots(ctx); err != nil {
		return err
	}
	return s.list(false)
}

// userMessage turns load failures into the generic message and keeps
// everything else as returned.
func userMessage(err error) string {
	var loadErr *foldertree.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.UserMessage()
	}
	var verr *upload.ValidationError
	if errors.As(err, &verr) {
		return "some files need attention (see files)"
	}
	return err.Error()
}
