package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/localfs"
	"github.com/tgdrive/tgdrive/internal/progress"
	"github.com/tgdrive/tgdrive/internal/transfer"
)

// dismissGrace bounds how long past the dismiss delay the CLI waits for the
// upload surface to be dismissed before it stops rendering on its own.
const dismissGrace = 2 * time.Second

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var folderID int64
	var background bool
	var recursive bool

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files",
		Long: `Upload files into a folder (the root folder by default).

Files are uploaded one at a time in the order given. Press Ctrl+C to cancel
the running upload and everything still queued.

With --background (or uploads.background = true in the config file) the
progress display is not dismissed automatically when the queue drains.

With --recursive, directories are walked and every file below them is
uploaded into the destination folder. Hidden files are skipped and the
directory structure is not recreated.

Examples:
  tgdrive upload report.pdf
  tgdrive upload *.jpg --folder 12
  tgdrive upload "data/*.csv" --background
  tgdrive upload ./photos --recursive --folder 12`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if folderID < 0 {
				return fmt.Errorf("--folder must be a non-negative folder id")
			}
			paths, err := expandGlobPatterns(args)
			if err != nil {
				return err
			}
			paths, err = expandDirectories(paths, recursive)
			if err != nil {
				return err
			}

			return runWithSession(func(ctx context.Context, s *session) error {
				_, err := executeUpload(ctx, s, progress.NewUploadUI(), cmd.ErrOrStderr(), paths, folderID, background || s.cfg.BackgroundUploads)
				return err
			})
		},
	}

	cmd.Flags().Int64VarP(&folderID, "folder", "f", constants.RootFolderID, "Destination folder id")
	cmd.Flags().BoolVarP(&background, "background", "b", false, "Keep the progress display until all uploads are done, without auto-dismiss")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Upload the files below directories")

	return cmd
}

// expandGlobPatterns expands glob patterns like *.zip, even when quoted.
// Returns a deduplicated list of absolute paths in argument order.
func expandGlobPatterns(patterns []string) ([]string, error) {
	var expanded []string
	seen := make(map[string]bool)

	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		if !seen[abs] {
			expanded = append(expanded, abs)
			seen[abs] = true
		}
		return nil
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[]") {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}

	return expanded, nil
}

// expandDirectories replaces each directory in paths by the files below it.
// Without recursive a directory is an error. Paths that cannot be stat'ed
// are kept so the queue reports them as skipped.
func expandDirectories(paths []string, recursive bool) ([]string, error) {
	var expanded []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			expanded = append(expanded, p)
			seen[p] = true
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			add(p)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use --recursive)", p)
		}
		files, err := localfs.CollectFiles(p, localfs.WalkOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		if len(files) == 0 {
			GetLogger().Warn().Str("path", p).Msg("Directory has no files to upload")
		}
		for _, f := range files {
			add(f)
		}
	}
	return expanded, nil
}

// executeUpload queues paths, renders the queue on ui and blocks until every
// upload has reached a terminal state. Cancelling ctx cancels all uploads.
// Unreadable paths are skipped and reported in the returned error.
func executeUpload(ctx context.Context, s *session, ui *progress.UploadUI, errOut io.Writer, paths []string, folderID int64, background bool) (transfer.Stats, error) {
	log := GetLogger()
	if background {
		s.transfers.EnableBackgroundMode()
	}

	ch := s.bus.SubscribeAll()
	defer s.bus.UnsubscribeAll(ch)

	if ui.IsTerminal() {
		prev := log.SetOutput(ui.LogWriter())
		defer log.SetOutput(prev)
	}

	uiCtx, stopUI := context.WithCancel(context.Background())
	defer stopUI()
	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		ui.Run(uiCtx, ch)
	}()

	tasks, skipped := s.transfers.StartUploads(paths, folderID)
	if len(tasks) == 0 {
		stopUI()
		<-uiDone
		ui.Close()
		if skipped != nil {
			return transfer.Stats{}, skipped
		}
		return transfer.Stats{}, fmt.Errorf("no files to upload")
	}
	log.Debug().Int("count", len(tasks)).Int64("folder_id", folderID).Bool("background", background).Msg("Uploads queued")

	stop := context.AfterFunc(ctx, func() {
		log.Warn().Msg("Cancelling uploads")
		s.transfers.CancelAll()
	})
	defer stop()

	if err := s.transfers.Wait(context.Background()); err != nil {
		return s.transfers.GetStats(), err
	}

	if !background && s.transfers.Uploading() {
		select {
		case <-uiDone:
		case <-time.After(s.cfg.DismissDelay + dismissGrace):
		}
	}
	stopUI()
	<-uiDone
	drainEvents(ui, ch)
	ui.Close()

	stats := s.transfers.GetStats()
	if !ui.Dismissed() {
		fmt.Fprintf(errOut, "Uploads finished: %d completed, %d failed, %d cancelled\n",
			stats.Completed, stats.Failed, stats.Cancelled)
	}

	var errs []error
	if skipped != nil {
		errs = append(errs, skipped)
	}
	if ctx.Err() != nil {
		errs = append(errs, fmt.Errorf("uploads cancelled: %w", ctx.Err()))
	}
	if stats.Failed > 0 {
		errs = append(errs, fmt.Errorf("%d of %d uploads failed", stats.Failed, stats.Total()))
	}
	return stats, errors.Join(errs...)
}

// drainEvents renders whatever is still buffered in ch without blocking.
func drainEvents(ui *progress.UploadUI, ch <-chan events.Event) {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			ui.Handle(e)
		default:
			return
		}
	}
}
