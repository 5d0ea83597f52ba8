package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// isolateHome points the user's home (and therefore the token file) at a
// temp directory and clears the environment overrides.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("APPDATA", filepath.Join(home, "AppData"))
	t.Setenv("TGDRIVE_TOKEN", "")
	t.Setenv("TGDRIVE_API_URL", "")
	t.Setenv("HTTPS_PROXY", "")
	return home
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.APIBaseURL != "http://127.0.0.1:8000/api" {
		t.Errorf("expected default api url, got %s", cfg.APIBaseURL)
	}
	if cfg.DismissDelay != 2500*time.Millisecond {
		t.Errorf("expected default dismiss delay 2.5s, got %v", cfg.DismissDelay)
	}
	if cfg.QueueYield != 100*time.Millisecond {
		t.Errorf("expected default queue yield 100ms, got %v", cfg.QueueYield)
	}
	if cfg.ProxyMode != "no-proxy" {
		t.Errorf("expected default proxy mode no-proxy, got %s", cfg.ProxyMode)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != NewConfig().APIBaseURL {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")

	cfg := NewConfig()
	cfg.APIBaseURL = "https://drive.example.com/api"
	cfg.Token = "abc.def.ghi"
	cfg.BackgroundUploads = true
	cfg.DismissDelay = 4 * time.Second
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.example.com"
	cfg.ProxyPort = 3128
	cfg.NoProxy = "localhost,127.0.0.1"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected permissions 0600, got %04o", perm)
		}
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.APIBaseURL != cfg.APIBaseURL {
		t.Errorf("APIBaseURL mismatch: expected %s, got %s", cfg.APIBaseURL, loaded.APIBaseURL)
	}
	if loaded.Token != cfg.Token {
		t.Errorf("Token mismatch: expected %s, got %s", cfg.Token, loaded.Token)
	}
	if !loaded.BackgroundUploads {
		t.Error("expected BackgroundUploads to round-trip")
	}
	if loaded.DismissDelay != 4*time.Second {
		t.Errorf("DismissDelay mismatch: got %v", loaded.DismissDelay)
	}
	if loaded.ProxyMode != "basic" || loaded.ProxyHost != "proxy.example.com" || loaded.ProxyPort != 3128 {
		t.Errorf("proxy settings mismatch: %+v", loaded)
	}
	if loaded.NoProxy != cfg.NoProxy {
		t.Errorf("NoProxy mismatch: expected %s, got %s", cfg.NoProxy, loaded.NoProxy)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("[tgdrive\napi_url"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestMergeWithFlags_TokenPriority(t *testing.T) {
	home := isolateHome(t)

	cfg := NewConfig()
	cfg.Token = "from-config"
	t.Setenv("TGDRIVE_TOKEN", "from-env")

	cfg.MergeWithFlags("", "", "", "", 0)
	if cfg.Token != "from-config" || cfg.TokenSource != "config" {
		t.Errorf("expected config token to beat env, got %s (%s)", cfg.Token, cfg.TokenSource)
	}

	tokenPath := filepath.Join(home, ".config", "tgdrive", "token")
	if runtime.GOOS == "windows" {
		tokenPath = DefaultTokenPath()
	}
	if err := WriteTokenFile(tokenPath, "from-file"); err != nil {
		t.Fatal(err)
	}

	cfg = NewConfig()
	cfg.Token = "from-config"
	cfg.MergeWithFlags("", "", "", "", 0)
	if cfg.Token != "from-file" || cfg.TokenSource != "token-file" {
		t.Errorf("expected token file to beat config, got %s (%s)", cfg.Token, cfg.TokenSource)
	}

	cfg = NewConfig()
	cfg.MergeWithFlags("from-flag", "", "", "", 0)
	if cfg.Token != "from-flag" || cfg.TokenSource != "flag" {
		t.Errorf("expected flag to win, got %s (%s)", cfg.Token, cfg.TokenSource)
	}
}

func TestMergeWithFlags_EnvironmentFallback(t *testing.T) {
	isolateHome(t)
	t.Setenv("TGDRIVE_TOKEN", "from-env")

	cfg := NewConfig()
	cfg.MergeWithFlags("", "", "", "", 0)
	if cfg.Token != "from-env" || cfg.TokenSource != "environment" {
		t.Errorf("expected env token, got %s (%s)", cfg.Token, cfg.TokenSource)
	}
}

func TestMergeWithFlags_APIURL(t *testing.T) {
	isolateHome(t)
	t.Setenv("TGDRIVE_API_URL", "http://env.example.com/api/")

	cfg := NewConfig()
	cfg.MergeWithFlags("", "", "", "", 0)
	if cfg.APIBaseURL != "http://env.example.com/api" {
		t.Errorf("expected env URL with trailing slash trimmed, got %s", cfg.APIBaseURL)
	}

	cfg.MergeWithFlags("", "drive.example.com/api", "", "", 0)
	if cfg.APIBaseURL != "https://drive.example.com/api" {
		t.Errorf("expected flag URL with https scheme, got %s", cfg.APIBaseURL)
	}
}

func TestMergeWithFlags_ProxyFromEnvironment(t *testing.T) {
	isolateHome(t)
	t.Setenv("HTTPS_PROXY", "http://proxy.corp:3128")

	cfg := NewConfig()
	cfg.MergeWithFlags("", "", "", "", 0)
	if cfg.ProxyHost != "proxy.corp" || cfg.ProxyPort != 3128 {
		t.Errorf("expected proxy.corp:3128, got %s:%d", cfg.ProxyHost, cfg.ProxyPort)
	}
	if cfg.ProxyMode != "system" {
		t.Errorf("expected proxy mode system, got %s", cfg.ProxyMode)
	}
}

func TestValidate(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}

	cfg.Token = "t"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.APIBaseURL = " "
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIURL) {
		t.Errorf("expected ErrMissingAPIURL, got %v", err)
	}

	cfg.APIBaseURL = "http://x"
	cfg.ProxyMode = "socks"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidProxyMode) {
		t.Errorf("expected ErrInvalidProxyMode, got %v", err)
	}
}

func TestSetAndGet(t *testing.T) {
	cfg := NewConfig()

	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"tgdrive.api_url", "http://localhost:9000/api", "http://localhost:9000/api"},
		{"uploads.background", "true", "true"},
		{"uploads.dismiss_delay", "3s", "3s"},
		{"proxy.mode", "NTLM", "ntlm"},
		{"proxy.port", "8080", "8080"},
		{"proxy.port", "", ""},
	}

	for _, tt := range tests {
		if err := cfg.Set(tt.key, tt.value); err != nil {
			t.Fatalf("Set(%s, %s) failed: %v", tt.key, tt.value, err)
		}
		got, err := cfg.Get(tt.key)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Get(%s): expected %q, got %q", tt.key, tt.want, got)
		}
	}
}

func TestSet_Invalid(t *testing.T) {
	cfg := NewConfig()

	if err := cfg.Set("nope.key", "x"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey, got %v", err)
	}
	if err := cfg.Set("uploads.background", "maybe"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := cfg.Set("uploads.queue_yield", "-1s"); err == nil {
		t.Error("expected error for negative duration")
	}
	if err := cfg.Set("proxy.mode", "socks"); !errors.Is(err, ErrInvalidProxyMode) {
		t.Errorf("expected ErrInvalidProxyMode, got %v", err)
	}
	if cfg.ProxyMode != "no-proxy" {
		t.Errorf("invalid proxy mode must not be applied, got %s", cfg.ProxyMode)
	}
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "token")

	if err := WriteTokenFile(path, "  secret  "); err != nil {
		t.Fatalf("WriteTokenFile failed: %v", err)
	}

	token, err := ReadTokenFile(path)
	if err != nil {
		t.Fatalf("ReadTokenFile failed: %v", err)
	}
	if token != "secret" {
		t.Errorf("expected trimmed token 'secret', got %q", token)
	}

	if err := WriteTokenFile(path, "   "); err == nil {
		t.Error("expected error writing empty token")
	}

	if err := RemoveTokenFile(path); err != nil {
		t.Fatalf("RemoveTokenFile failed: %v", err)
	}
	if err := RemoveTokenFile(path); err != nil {
		t.Errorf("removing a missing token file should not fail: %v", err)
	}
	if _, err := ReadTokenFile(path); err == nil {
		t.Error("expected error reading removed token file")
	}
}
