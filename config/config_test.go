package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "FILES_URL", "DIFY_API_URL", "FETCH_TIMEOUT", "MAX_PARALLEL_FILES", "PDF_RENDERER"} {
		t.Setenv(key, "")
	}

	cfg := LoadServerConfig()

	if cfg.ListenAddrPort != "8000" {
		t.Errorf("Expected default port 8000, got %s", cfg.ListenAddrPort)
	}
	if cfg.FilesURL != "" || cfg.DifyAPIURL != "" {
		t.Errorf("Expected empty file URL bases, got %q / %q", cfg.FilesURL, cfg.DifyAPIURL)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("Expected 30s fetch timeout, got %v", cfg.FetchTimeout)
	}
	if cfg.MaxParallelFiles != 2 {
		t.Errorf("Expected 2 parallel files, got %d", cfg.MaxParallelFiles)
	}
	if cfg.Renderer != "fitz" {
		t.Errorf("Expected fitz renderer, got %s", cfg.Renderer)
	}
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	t.Setenv("FILES_URL", "http://files.local")
	t.Setenv("FETCH_TIMEOUT", "5")
	t.Setenv("REQUEST_TIMEOUT", "90s")
	t.Setenv("MAX_PARALLEL_FILES", "0")
	t.Setenv("MAX_PAGE_PIXELS", "1234")
	t.Setenv("S3_USE_SSL", "false")

	cfg := LoadServerConfig()

	if cfg.FilesURL != "http://files.local" {
		t.Errorf("Expected FILES_URL override, got %s", cfg.FilesURL)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("Expected plain seconds to parse, got %v", cfg.FetchTimeout)
	}
	if cfg.RequestTimeout != 90*time.Second {
		t.Errorf("Expected 90s request timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxParallelFiles != 1 {
		t.Errorf("Expected parallelism clamped to 1, got %d", cfg.MaxParallelFiles)
	}
	if cfg.MaxPagePixels != 1234 {
		t.Errorf("Expected pixel limit 1234, got %d", cfg.MaxPagePixels)
	}
	if cfg.S3UseSSL {
		t.Error("Expected S3_USE_SSL=false to disable SSL")
	}
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	t.Setenv("SOME_TIMEOUT", "soon")
	if got := getEnvDuration("SOME_TIMEOUT", time.Minute); got != time.Minute {
		t.Errorf("Expected default on invalid value, got %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
