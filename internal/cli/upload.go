package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/internal/progress"
	"github.com/taxdesk/taxdesk/internal/transfer"
	"github.com/taxdesk/taxdesk/internal/upload"
	"github.com/taxdesk/taxdesk/internal/util/filter"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var folderID, folderPath string
	var include, exclude string
	var retryFailed bool
	var sel filter.Config

	cmd := &cobra.Command{
		Use:   "upload PATH...",
		Short: "Upload documents into a folder",
		Long: `Upload one or more documents into a destination folder.

Files are validated before anything is sent: each needs a name the portal
accepts and a size within the configured limit. A file the portal rejects
does not stop the others.

Directory arguments contribute the files directly inside them (all levels
with --recursive), narrowed by --include and --exclude. Hidden files are
skipped.

Example:
  taxdesk upload w2.pdf 1099-int.pdf --folder-path "2024 Returns / Income"
  taxdesk upload ./scans --include "*.pdf" --exclude "draft*" --folder-id 42
  taxdesk upload scan.pdf --folder-id 42 --retry-failed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (folderID == "") == (folderPath == "") {
				return fmt.Errorf("exactly one of --folder-id or --folder-path is required")
			}

			sel.Include = filter.ParsePatternList(include)
			sel.Exclude = filter.ParsePatternList(exclude)

			p, err := connect()
			if err != nil {
				return err
			}
			defer p.Close()

			return runUpload(cmd.OutOrStdout(), p, args, sel, folderID, folderPath, retryFailed, !quiet)
		},
	}

	cmd.Flags().StringVar(&folderID, "folder-id", "", "Destination folder ID")
	cmd.Flags().StringVar(&folderPath, "folder-path", "", `Destination folder path, e.g. "2024 Returns / Income"`)
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Retry each failed file once more after the first pass")
	cmd.Flags().StringVar(&include, "include", "", `Comma-separated patterns for files inside directories, e.g. "*.pdf,*.jpg"`)
	cmd.Flags().StringVar(&exclude, "exclude", "", "Comma-separated patterns to skip inside directories")
	cmd.Flags().BoolVarP(&sel.Recursive, "recursive", "r", false, "Include files in subdirectories")

	return cmd
}

func runUpload(w io.Writer, p *portal, args []string, sel filter.Config, folderID, folderPath string, retryFailed, showProgress bool) error {
	ctx := GetContext()
	log := GetLogger()

	paths, err := filter.Expand(args, sel)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files to upload (check --include and --exclude)")
	}

	displayPath := folderID
	if folderPath != "" {
		node, err := p.resolvePath(ctx, folderPath)
		if err != nil {
			return err
		}
		dest, err := p.tree.SelectByID(node.ID)
		if err != nil {
			return err
		}
		folderID, displayPath = dest.ID, dest.Path
	}

	session := p.newUploadSession(false)
	defer session.Close()

	for _, path := range paths {
		if _, err := session.AddPath(path); err != nil {
			return err
		}
	}
	session.AssignAll(folderID, displayPath)

	stop := followUploads(ctx, p, len(paths), folderID, displayPath, showProgress)
	_, err = session.Submit(ctx)
	if err == nil && retryFailed {
		for _, id := range session.FailedIDs() {
			if _, rerr := session.Retry(ctx, id); rerr != nil {
				log.Warn().Err(rerr).Msg("retry failed")
			}
		}
	}
	stop()

	var verr *upload.ValidationError
	if errors.As(err, &verr) {
		printFileErrors(w, session.Files())
		return fmt.Errorf("nothing was uploaded: fix the files above and try again")
	}
	if err != nil {
		return err
	}

	files := session.Files()
	summary := tally(files)
	fmt.Fprintf(w, "\nUploaded %d of %d files to %s\n", summary.Succeeded, len(files), displayPath)
	if summary.Failed > 0 {
		printFileErrors(w, files)
		return fmt.Errorf("%d of %d uploads failed", summary.Failed, len(files))
	}
	return nil
}

// followUploads shows upload progress from the bus until the returned stop
// function is called. Without showProgress nothing is drawn.
func followUploads(ctx context.Context, p *portal, total int, folderID, folderPath string, showProgress bool) func() {
	if !showProgress {
		return func() {}
	}

	ui := progress.NewUploadUI(total)
	ui.SetFolderPath(folderID, folderPath)

	ch := p.bus.SubscribeAll()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.Follow(ctx, ch)
	}()

	return func() {
		p.bus.UnsubscribeAll(ch)
		<-done
		ui.Finish()
	}
}

func tally(files []upload.File) upload.Summary {
	s := upload.Summary{Files: files}
	for _, f := range files {
		switch f.Status {
		case transfer.TaskSucceeded:
			s.Succeeded++
		case transfer.TaskFailed:
			s.Failed++
		}
	}
	return s
}

func printFileErrors(w io.Writer, files []upload.File) {
	for _, f := range files {
		if len(f.Errors) == 0 {
			continue
		}
		for _, msg := range f.Errors {
			fmt.Fprintf(w, "  ✗ %s: %s\n", f.Name, msg)
		}
	}
}
