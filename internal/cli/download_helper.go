package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/progress"
	"github.com/tgdrive/tgdrive/internal/services"
)

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download <file-id> [file-id...]",
		Short: "Download files",
		Long: `Download files into a local directory.

Files that would end up with the same local name get their file id added
before the extension (output_12.zip, output_31.zip).

Examples:
  tgdrive download 42
  tgdrive download 42 43 -o ./downloads`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "file id")
			if err != nil {
				return err
			}

			newReporter := func() progress.Reporter { return progress.NewNoOpProgress() }
			if term.IsTerminal(int(os.Stderr.Fd())) {
				newReporter = func() progress.Reporter { return progress.NewCLIProgress() }
			}

			return runWithSession(func(ctx context.Context, s *session) error {
				return executeDownload(ctx, s.transfers, cmd.OutOrStdout(), ids, outputDir, newReporter)
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "outdir", "o", ".", "Output directory for downloaded files")

	return cmd
}

// executeDownload fetches ids into outputDir one after another. A failed file
// does not stop the others; the returned error counts the failures.
func executeDownload(
	ctx context.Context,
	transfers *services.TransferService,
	out io.Writer,
	ids []int64,
	outputDir string,
	newReporter func() progress.Reporter,
) error {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	specs, collisions, err := transfers.PrepareDownloads(ctx, ids, outputDir)
	if err != nil {
		return err
	}
	if collisions > 0 {
		fmt.Fprintf(out, "Note: %d files share a name; their file ids were added to keep them apart\n", collisions)
	}

	GetLogger().Info().Int("count", len(specs)).Str("outdir", outputDir).Msg("Starting download")

	failed := 0
	for _, spec := range specs {
		r := newReporter()
		res := transfers.Download(ctx, []services.DownloadFileSpec{spec}, func(spec services.DownloadFileSpec) api.ProgressFunc {
			return progress.Callback(r, spec.Name)
		})[0]
		if res.Err != nil {
			failed++
			r.Error(res.Err)
			fmt.Fprintf(out, "✗ %d: %s\n", spec.FileID, userError(res.Err))
			continue
		}
		r.Finish()
		fmt.Fprintf(out, "✓ %s (%s)\n", spec.LocalPath, progress.FormatBytes(res.Bytes))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(specs))
	}
	return nil
}
