package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveToken returns the bearer token from the highest-priority source.
// See ResolveTokenSource.
func ResolveToken(flagToken, fileToken string) string {
	token, _ := ResolveTokenSource(flagToken, fileToken)
	return token
}

// ResolveTokenSource returns the bearer token and where it was found.
//
// Priority (highest to lowest):
//  1. flagToken (e.g. from --token)
//  2. default token file (~/.config/tgdrive/token), written by 'tgdrive login'
//  3. configToken ([tgdrive] token in the config file)
//  4. TGDRIVE_TOKEN environment variable
//
// The source is "flag", "token-file", "config", "environment", or "" when
// no token was found.
func ResolveTokenSource(flagToken, configToken string) (string, string) {
	if flagToken = strings.TrimSpace(flagToken); flagToken != "" {
		return flagToken, "flag"
	}

	if tokenPath := DefaultTokenPath(); tokenPath != "" {
		if token, err := ReadTokenFile(tokenPath); err == nil && token != "" {
			return token, "token-file"
		}
	}

	if configToken = strings.TrimSpace(configToken); configToken != "" {
		return configToken, "config"
	}

	if envToken := strings.TrimSpace(os.Getenv("TGDRIVE_TOKEN")); envToken != "" {
		return envToken, "environment"
	}

	return "", ""
}

// ReadTokenFile reads a bearer token from a file (whitespace is trimmed).
// Warns on stderr if the file is readable by group or others.
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty")
	}
	return token, nil
}

// WriteTokenFile writes a bearer token to a file with 0600 permissions.
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cannot write empty token")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// RemoveTokenFile deletes the token file. A missing file is not an error.
func RemoveTokenFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
