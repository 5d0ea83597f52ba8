package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgdrive/tgdrive/internal/models"
)

// newBulkCmd creates the 'bulk' command.
func newBulkCmd() *cobra.Command {
	var target int64

	cmd := &cobra.Command{
		Use:   "bulk <delete|move|copy|restore|star> <file-id> [file-id...]",
		Short: "Apply one operation to many files at once",
		Long: `Apply one operation to a selection of files in a single request.

move and copy need --target. When the server processes only part of the
selection, the count and the server's errors are printed.

Examples:
  tgdrive bulk delete 10 11 12
  tgdrive bulk move 10 11 --target 5`,
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: []string{"delete", "move", "copy", "restore", "star"},
		RunE: func(cmd *cobra.Command, args []string) error {
			op := models.BulkOperation(args[0])
			if !op.Valid() {
				return fmt.Errorf("unknown bulk operation %q", args[0])
			}

			ids, err := parseIDs(args[1:], "file id")
			if err != nil {
				return err
			}

			var targetID *int64
			if cmd.Flags().Changed("target") {
				if target < 0 {
					return fmt.Errorf("--target must be a non-negative folder id")
				}
				targetID = &target
			}
			if op.NeedsTarget() && targetID == nil {
				return fmt.Errorf("bulk %s needs --target", op)
			}

			return runWithSession(func(ctx context.Context, s *session) error {
				outcome, err := s.files.Bulk(ctx, op, ids, targetID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, outcome.Summary())
				for _, e := range outcome.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&target, "target", "t", 0, "Target folder id for move and copy")

	return cmd
}
