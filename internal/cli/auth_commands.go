package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/auth"
	"github.com/tgdrive/tgdrive/internal/config"
)

// verifyTimeout bounds the token check of login and whoami.
const verifyTimeout = 15 * time.Second

// newLoginCmd creates the 'login' command.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with a bearer token",
		Long: `Sign in by storing a bearer token in ~/.config/tgdrive/token.

The token is read from --token or prompted for (input is hidden on a
terminal). It is checked against the server before it is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()

			token := tokenFlag
			if token == "" {
				var err error
				token, err = promptToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			if token == "" {
				return fmt.Errorf("no token given")
			}
			if err := auth.CheckToken(token, time.Now()); err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Token = token

			client, err := api.NewClient(cfg, log.Named("api"))
			if err != nil {
				return fmt.Errorf("failed to create API client: %w", err)
			}

			ctx, cancel := context.WithTimeout(GetContext(), verifyTimeout)
			defer cancel()
			user, err := client.VerifyToken(ctx)
			if err != nil {
				return fmt.Errorf("failed to verify token: %w", err)
			}

			tokenPath := config.DefaultTokenPath()
			if tokenPath == "" {
				return fmt.Errorf("could not determine config directory")
			}
			if err := config.WriteTokenFile(tokenPath, token); err != nil {
				return err
			}
			log.Info().Str("path", tokenPath).Msg("Token saved")

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s\n", displayName(user.Username, user.FirstName, user.UserID))
			return nil
		},
	}
}

// newLogoutCmd creates the 'logout' command.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RemoveTokenFile(config.DefaultTokenPath()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Logged out")

			cfg, err := config.Load(cfgFile)
			if err == nil && cfg.Token != "" {
				fmt.Fprintln(out, "Note: the config file still holds a token; clear it with 'tgdrive config set tgdrive.token \"\"'")
			}
			return nil
		},
	}
}

// newWhoamiCmd creates the 'whoami' command.
func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), verifyTimeout)
			defer cancel()
			user, err := client.VerifyToken(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:    %s\n", displayName(user.Username, user.FirstName, user.UserID))
			fmt.Fprintf(out, "User ID: %d\n", user.UserID)
			fmt.Fprintf(out, "Server:  %s\n", client.BaseURL())

			cfg := client.GetConfig()
			fmt.Fprintf(out, "Token:   from %s", cfg.TokenSource)
			if info, err := auth.Inspect(cfg.Token); err == nil && !info.ExpiresAt.IsZero() {
				fmt.Fprintf(out, ", expires %s (in %s)", info.ExpiresAt.Local().Format(timeLayout),
					info.Remaining(time.Now()).Round(time.Minute))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

func displayName(username, firstName string, userID int64) string {
	switch {
	case username != "" && firstName != "":
		return fmt.Sprintf("%s (@%s)", firstName, username)
	case username != "":
		return "@" + username
	case firstName != "":
		return firstName
	}
	return fmt.Sprintf("user %d", userID)
}
