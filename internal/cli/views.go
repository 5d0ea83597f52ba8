package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/models"
)

// newViewCmd builds a command that prints one of the file views.
func newViewCmd(use, short, empty string, load func(ctx context.Context, s *session) ([]models.FileMeta, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(func(ctx context.Context, s *session) error {
				files, err := load(ctx, s)
				if err != nil {
					return err
				}
				printFiles(cmd.OutOrStdout(), files, empty)
				return nil
			})
		},
	}
}

func newRecentCmd() *cobra.Command {
	return newViewCmd("recent", "List recently uploaded files", "No recent files",
		func(ctx context.Context, s *session) ([]models.FileMeta, error) {
			return s.files.Recent(ctx)
		})
}

func newStarredCmd() *cobra.Command {
	return newViewCmd("starred", "List starred files", "No starred files",
		func(ctx context.Context, s *session) ([]models.FileMeta, error) {
			return s.files.Starred(ctx)
		})
}

func newBinCmd() *cobra.Command {
	return newViewCmd("bin", "List files in the bin", "The bin is empty",
		func(ctx context.Context, s *session) ([]models.FileMeta, error) {
			return s.files.Bin(ctx)
		})
}

// newSearchCmd creates the 'search' command.
func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search files by name",
		Long: `Search all files by name.

Examples:
  tgdrive search report
  tgdrive search "tax 2024"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runWithSession(func(ctx context.Context, s *session) error {
				files, err := s.files.Search(ctx, query)
				if err != nil {
					return err
				}
				printFiles(cmd.OutOrStdout(), files, "No files match "+query)
				return nil
			})
		},
	}
}

// newStorageCmd creates the 'storage' command.
func newStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Show storage usage",
		Long: `Show the storage used by the account.

The total comes from the server's storage summary. When that is unavailable
it is summed over all files, and as a last resort over the root folder, in
which case it is marked approximate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(func(ctx context.Context, s *session) error {
				// Load the root listing so the last fallback has something to sum.
				if err := s.sync.Reload(ctx); api.Classify(err) == api.KindUnauthorized {
					return err
				}
				summary := s.sync.RefreshStorage(ctx)
				printStorage(cmd.OutOrStdout(), summary)
				if err := s.state.LastError(); summary.Source.Approximate() && err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: folder listing unavailable: %s\n", userError(err))
				}
				return nil
			})
		},
	}
}
