package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CAREERLENS_CONFIG_FILE", "")
	t.Setenv("CAREERLENS_RULES_FILE", "")
	t.Setenv("CAREERLENS_ADDR", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if cfg.Rules.Path != filepath.Join(home, ".config", "careerlens", "vocabulary.rules") {
		t.Fatalf("unexpected rules path: %q", cfg.Rules.Path)
	}
	if cfg.Session.MaxExchanges != 6 || cfg.Session.SilenceTimeout != 2*time.Second {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Deepgram.SpeakModel != "aura-2-thalia-en" || cfg.Deepgram.SpeakSampleRate != 24000 {
		t.Fatalf("unexpected speak defaults: %+v", cfg.Deepgram)
	}
	if cfg.Server.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected log level: %v", cfg.Server.LogLevel)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CAREERLENS_CONFIG_FILE", "")
	t.Setenv("CAREERLENS_ADDR", "")
	t.Setenv("PORT", "9090")
	t.Setenv("CAREERLENS_LOG_LEVEL", "debug")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "off")
	t.Setenv("DEEPGRAM_ENDPOINTING", "500")
	t.Setenv("D_ID_API_KEY", "")
	t.Setenv("DID_API_KEY", "did-key")
	t.Setenv("CAREERLENS_SAMPLE_RATE", "bad")
	t.Setenv("CAREERLENS_AUDIO_CHUNK_SIZE", "12")
	t.Setenv("CAREERLENS_SESSION_MAX_EXCHANGES", "9")
	t.Setenv("CAREERLENS_SESSION_SILENCE_TIMEOUT", "3s")
	t.Setenv("CAREERLENS_SESSION_MAX_CAPTURE_RESTARTS", "-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Deepgram.APIKey != "test-key" || cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Deepgram.Endpointing != 500*time.Millisecond {
		t.Fatalf("expected millisecond endpointing, got %s", cfg.Deepgram.Endpointing)
	}
	if cfg.DID.APIKey != "did-key" {
		t.Fatalf("expected DID_API_KEY fallback, got %q", cfg.DID.APIKey)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.ChunkSize != 0 {
		t.Fatalf("expected invalid audio values to fall back: %+v", cfg.Audio)
	}
	if cfg.Session.MaxExchanges != 9 || cfg.Session.SilenceTimeout != 3*time.Second {
		t.Fatalf("expected session env overrides: %+v", cfg.Session)
	}
	if cfg.Session.MaxCaptureRestarts != 5 {
		t.Fatalf("expected restart fallback, got %d", cfg.Session.MaxCaptureRestarts)
	}
}

func TestLoadReadsSessionFile(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, "session:\n  max_exchanges: 10\n  wrap_up_lead: 2\n  ttl: 30m\n")
	t.Setenv("HOME", dir)
	t.Setenv("CAREERLENS_CONFIG_FILE", file)
	t.Setenv("CAREERLENS_SESSION_MAX_EXCHANGES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.File != file {
		t.Fatalf("unexpected file: %q", cfg.File)
	}
	if cfg.Session.MaxExchanges != 10 || cfg.Session.WrapUpLead != 2 || cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
}

func TestLoadFailsOnMissingConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CAREERLENS_CONFIG_FILE", filepath.Join(dir, "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestWatchSessionWithoutFile(t *testing.T) {
	cfg := Config{Session: SessionConfig{MaxExchanges: 3}}
	if got := cfg.WatchSession(nil).Get(); got.MaxExchanges != 3 {
		t.Fatalf("unexpected session config: %+v", got)
	}
}

func TestWatchSessionReloadsFile(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, "session:\n  max_exchanges: 4\n")
	t.Setenv("HOME", dir)
	t.Setenv("CAREERLENS_CONFIG_FILE", file)
	t.Setenv("CAREERLENS_SESSION_MAX_EXCHANGES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	live := cfg.WatchSession(slog.New(slog.DiscardHandler))
	if got := live.Get().MaxExchanges; got != 4 {
		t.Fatalf("expected 4 exchanges, got %d", got)
	}

	writeConfig(t, dir, "session:\n  max_exchanges: 8\n")

	deadline := time.Now().Add(5 * time.Second)
	for live.Get().MaxExchanges != 8 {
		if time.Now().After(deadline) {
			t.Fatalf("session defaults were not reloaded, got %+v", live.Get())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	if parseLevel("warn") != slog.LevelWarn {
		t.Fatalf("expected warn")
	}
	if parseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "careerlens.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}
