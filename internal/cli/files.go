package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/state"
)

// runWithSession opens a session for the duration of fn.
func runWithSession(fn func(ctx context.Context, s *session) error) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(GetContext(), s)
}

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	var sortBy string
	var reverse bool

	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List the contents of a folder",
		Long: `List the folders and files of a folder (the root folder by default).

Examples:
  tgdrive ls
  tgdrive ls 12
  tgdrive ls 12 --sort size --reverse`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID := constants.RootFolderID
			if len(args) == 1 {
				id, err := parseID(args[0], "folder id")
				if err != nil {
					return err
				}
				folderID = id
			}

			key := state.SortKey(sortBy)
			switch key {
			case state.SortByName, state.SortBySize, state.SortByDate:
			default:
				return fmt.Errorf("--sort must be one of name, size, date, got %q", sortBy)
			}

			return runWithSession(func(ctx context.Context, s *session) error {
				if err := s.sync.Navigate(ctx, folderID); err != nil {
					return err
				}
				listing, _ := s.state.Listing()
				printListing(cmd.OutOrStdout(), listing.Sorted(key, !reverse))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sortBy, "sort", "s", string(state.SortByName), "Sort files by name, size or date")
	cmd.Flags().BoolVarP(&reverse, "reverse", "r", false, "Reverse the sort order")

	return cmd
}

// newCatCmd creates the 'cat' command.
func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file-id>",
		Short: "Write a file's content to stdout",
		Long: `Stream a file's content to stdout.

Examples:
  tgdrive cat 42 > notes.txt
  tgdrive cat 17 | mpv -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID(args[0], "file id")
			if err != nil {
				return err
			}
			client, err := getAPIClient()
			if err != nil {
				return err
			}
			if _, err := client.Download(GetContext(), fileID, cmd.OutOrStdout(), nil); err != nil {
				return fmt.Errorf("failed to read file %d: %w", fileID, err)
			}
			return nil
		},
	}
}

// newRmCmd creates the 'rm' command.
func newRmCmd() *cobra.Command {
	var permanent bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <file-id> [file-id...]",
		Short: "Move files to the bin",
		Long: `Move files to the bin. With --permanent the files are deleted for good
and cannot be restored.

Examples:
  tgdrive rm 42
  tgdrive rm 42 43 --permanent --yes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "file id")
			if err != nil {
				return err
			}

			if permanent && !yes {
				ok, err := promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
					fmt.Sprintf("Permanently delete %d file(s)?", len(ids)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			return runWithSession(func(ctx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				var errs []error
				for _, id := range ids {
					var err error
					if permanent {
						err = s.files.DeleteFilePermanent(ctx, id)
					} else {
						err = s.files.DeleteFile(ctx, id)
					}
					switch {
					case api.IsNotFound(err):
						fmt.Fprintf(cmd.ErrOrStderr(), "File %d not found, skipped\n", id)
						errs = append(errs, err)
					case err != nil:
						errs = append(errs, err)
					case permanent:
						fmt.Fprintf(out, "Deleted file %d\n", id)
					default:
						fmt.Fprintf(out, "Moved file %d to the bin\n", id)
					}
				}
				return errors.Join(errs...)
			})
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "Delete for good instead of moving to the bin")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

// newRmdirCmd creates the 'rmdir' command.
func newRmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <folder-id>",
		Short: "Delete a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseID(args[0], "folder id")
			if err != nil {
				return err
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				if err := s.files.DeleteFolder(ctx, folderID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder %d\n", folderID)
				return nil
			})
		},
	}
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	var parentID int64

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Long: `Create a folder, in the root folder unless --parent is given.

Examples:
  tgdrive mkdir Photos
  tgdrive mkdir 2024 --parent 12`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("folder name is empty")
			}
			if parentID < 0 {
				return fmt.Errorf("--parent must be a non-negative folder id")
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				folder, err := s.files.CreateFolder(ctx, name, parentID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created folder %q (id %d)\n", folder.Name, folder.ID)
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&parentID, "parent", "p", constants.RootFolderID, "Parent folder id")

	return cmd
}

// newMvCmd creates the 'mv' command.
func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <file-id> <folder-id>",
		Short: "Move a file into a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, folderID, err := parseFileAndFolder(args)
			if err != nil {
				return err
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				if err := s.files.MoveFile(ctx, fileID, folderID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved file %d to folder %d\n", fileID, folderID)
				return nil
			})
		},
	}
}

// newCpCmd creates the 'cp' command.
func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <file-id> <folder-id>",
		Short: "Copy a file into a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, folderID, err := parseFileAndFolder(args)
			if err != nil {
				return err
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				if err := s.files.CopyFile(ctx, fileID, folderID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Copied file %d to folder %d\n", fileID, folderID)
				return nil
			})
		},
	}
}

func parseFileAndFolder(args []string) (int64, int64, error) {
	fileID, err := parseID(args[0], "file id")
	if err != nil {
		return 0, 0, err
	}
	folderID, err := parseID(args[1], "folder id")
	if err != nil {
		return 0, 0, err
	}
	return fileID, folderID, nil
}

// newRenameCmd creates the 'rename' command.
func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <file-id> <new-name>",
		Short: "Rename a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID(args[0], "file id")
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[1])
			if name == "" {
				return fmt.Errorf("new name is empty")
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				if err := s.files.RenameFile(ctx, fileID, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed file %d to %q\n", fileID, name)
				return nil
			})
		},
	}
}

// newRestoreCmd creates the 'restore' command.
func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file-id>",
		Short: "Restore a file from the bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID(args[0], "file id")
			if err != nil {
				return err
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				if err := s.files.RestoreFile(ctx, fileID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored file %d\n", fileID)
				return nil
			})
		},
	}
}

// newStarCmd creates the 'star' command.
func newStarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "star <file-id>",
		Short: "Star or unstar a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID(args[0], "file id")
			if err != nil {
				return err
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				res, err := s.files.ToggleStar(ctx, fileID)
				if err != nil {
					return err
				}
				if res.Starred {
					fmt.Fprintf(cmd.OutOrStdout(), "Starred file %d\n", fileID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Unstarred file %d\n", fileID)
				}
				return nil
			})
		},
	}
}

// newVersionsCmd creates the 'versions' command.
func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <file-id>",
		Short: "List the stored versions of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID(args[0], "file id")
			if err != nil {
				return err
			}
			return runWithSession(func(ctx context.Context, s *session) error {
				versions, err := s.files.ListVersions(ctx, fileID)
				if err != nil {
					return err
				}
				printVersions(cmd.OutOrStdout(), versions)
				return nil
			})
		},
	}
}

// newRestoreVersionCmd creates the 'restore-version' command.
func newRestoreVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-version <file-id> <version-id>",
		Short: "Make a stored version the current content of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID(args[0], "file id")
			if err != nil {
				return err
			}
			versionID := strings.TrimSpace(args[1])
			return runWithSession(func(ctx context.Context, s *session) error {
				if err := s.files.RestoreVersion(ctx, fileID, versionID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored version %s of file %d\n", versionID, fileID)
				return nil
			})
		},
	}
}
