package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores runtime configuration for the career coaching service.
type Config struct {
	Server   ServerConfig
	Deepgram DeepgramConfig
	LLM      LLMConfig
	DID      DIDConfig
	Audio    AudioConfig
	Rules    RulesConfig
	Session  SessionConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Supabase SupabaseConfig

	// File is the optional YAML file session tunables are read from.
	File string

	v *viper.Viper
}

type ServerConfig struct {
	Addr            string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
}

type DeepgramConfig struct {
	APIKey          string
	APIBaseURL      string
	Model           string
	Language        string
	SmartFormat     bool
	SpeakModel      string
	SpeakSampleRate int
	Endpointing     time.Duration
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// TemplatesFile replaces the built-in mode table when set.
	TemplatesFile string
}

type DIDConfig struct {
	APIKey       string
	BaseURL      string
	ReadyTimeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

// SessionConfig holds the session tunables. These may change while the
// process runs; see SessionDefaults.
type SessionConfig struct {
	MaxExchanges        int
	WrapUpLead          int
	SilenceTimeout      time.Duration
	CaptureRestartDelay time.Duration
	MaxCaptureRestarts  int
	ReleaseTimeout      time.Duration
	RenderTimeout       time.Duration
	TTL                 time.Duration
	MaxSessions         int
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type PostgresConfig struct {
	URL string
}

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Load resolves configuration from .env, environment variables, the
// optional YAML file and defaults, in that order of precedence after the
// environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	v := newViper()
	file := strings.TrimSpace(os.Getenv("CAREERLENS_CONFIG_FILE"))
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", file, err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            firstNonEmpty(os.Getenv("CAREERLENS_ADDR"), portAddr(os.Getenv("PORT")), ":8080"),
			LogLevel:        parseLevel(os.Getenv("CAREERLENS_LOG_LEVEL")),
			ShutdownTimeout: envOrDefaultDuration("CAREERLENS_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Deepgram: DeepgramConfig{
			APIKey:          strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:      envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:           envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:        strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat:     envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			SpeakModel:      envOrDefault("DEEPGRAM_SPEAK_MODEL", "aura-2-thalia-en"),
			SpeakSampleRate: envOrDefaultInt("DEEPGRAM_SPEAK_SAMPLE_RATE", 24000),
			Endpointing:     envOrDefaultDuration("DEEPGRAM_ENDPOINTING", 300*time.Millisecond),
		},
		LLM: LLMConfig{
			BaseURL:       envOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:        firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("OPENAI_API_KEY")),
			Model:         envOrDefault("LLM_MODEL", "gpt-4o-mini"),
			Timeout:       envOrDefaultDuration("LLM_TIMEOUT", 30*time.Second),
			TemplatesFile: strings.TrimSpace(os.Getenv("CAREERLENS_TEMPLATES_FILE")),
		},
		DID: DIDConfig{
			APIKey:       firstNonEmpty(os.Getenv("D_ID_API_KEY"), os.Getenv("DID_API_KEY")),
			BaseURL:      envOrDefault("D_ID_API_BASE", "https://api.d-id.com"),
			ReadyTimeout: envOrDefaultDuration("D_ID_READY_TIMEOUT", 30*time.Second),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("CAREERLENS_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("CAREERLENS_FFPLAY_COMMAND", "ffplay"),
			InputFormat:     envOrDefault("CAREERLENS_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     firstNonEmpty(os.Getenv("CAREERLENS_AUDIO_INPUT_DEVICE"), os.Getenv("DEEPGRAM_PULSE_SOURCE"), "default"),
			SampleRate:      envOrDefaultInt("CAREERLENS_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("CAREERLENS_CHANNELS", 1),
			ChunkSize:       envOrDefaultInt("CAREERLENS_AUDIO_CHUNK_SIZE", 0),
		},
		Rules: RulesConfig{
			Path:           envOrDefault("CAREERLENS_RULES_FILE", filepath.Join(home, ".config", "careerlens", "vocabulary.rules")),
			IterationLimit: envOrDefaultInt("CAREERLENS_RULE_ITERATION_LIMIT", 30),
		},
		Session: sessionFrom(v),
		Mongo: MongoConfig{
			URI:        strings.TrimSpace(os.Getenv("MONGODB_URI")),
			Database:   envOrDefault("MONGODB_DATABASE", "careerlens"),
			Collection: envOrDefault("MONGODB_PROFILE_COLLECTION", "profiles"),
		},
		Postgres: PostgresConfig{URL: strings.TrimSpace(os.Getenv("DATABASE_URL"))},
		Supabase: SupabaseConfig{
			URL:            strings.TrimSpace(os.Getenv("SUPABASE_URL")),
			ServiceRoleKey: strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
			Bucket:         envOrDefault("SUPABASE_BUCKET", "session-transcripts"),
		},
		File: file,
		v:    v,
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	// Zero sizes provider frames from the sample rate.
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 0
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Deepgram.SpeakSampleRate <= 0 {
		cfg.Deepgram.SpeakSampleRate = 24000
	}

	return cfg, nil
}

// Session tunables live under "session." in the YAML file and as
// CAREERLENS_SESSION_* in the environment.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CAREERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("session.max_exchanges", 6)
	v.SetDefault("session.wrap_up_lead", 1)
	v.SetDefault("session.silence_timeout", "2s")
	v.SetDefault("session.capture_restart_delay", "750ms")
	v.SetDefault("session.max_capture_restarts", 5)
	v.SetDefault("session.release_timeout", "5s")
	v.SetDefault("session.render_timeout", "2m")
	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.max_sessions", 1024)
	return v
}

func sessionFrom(v *viper.Viper) SessionConfig {
	s := SessionConfig{
		MaxExchanges:        v.GetInt("session.max_exchanges"),
		WrapUpLead:          v.GetInt("session.wrap_up_lead"),
		SilenceTimeout:      v.GetDuration("session.silence_timeout"),
		CaptureRestartDelay: v.GetDuration("session.capture_restart_delay"),
		MaxCaptureRestarts:  v.GetInt("session.max_capture_restarts"),
		ReleaseTimeout:      v.GetDuration("session.release_timeout"),
		RenderTimeout:       v.GetDuration("session.render_timeout"),
		TTL:                 v.GetDuration("session.ttl"),
		MaxSessions:         v.GetInt("session.max_sessions"),
	}

	if s.MaxExchanges <= 0 {
		s.MaxExchanges = 6
	}
	if s.WrapUpLead <= 0 {
		s.WrapUpLead = 1
	}
	if s.SilenceTimeout <= 0 {
		s.SilenceTimeout = 2 * time.Second
	}
	if s.CaptureRestartDelay <= 0 {
		s.CaptureRestartDelay = 750 * time.Millisecond
	}
	if s.MaxCaptureRestarts <= 0 {
		s.MaxCaptureRestarts = 5
	}
	if s.ReleaseTimeout <= 0 {
		s.ReleaseTimeout = 5 * time.Second
	}
	if s.RenderTimeout <= 0 {
		s.RenderTimeout = 2 * time.Minute
	}
	if s.TTL <= 0 {
		s.TTL = time.Hour
	}
	if s.MaxSessions <= 0 {
		s.MaxSessions = 1024
	}
	return s
}

// SessionDefaults is the live view of the session tunables. When a config
// file is in use it follows edits to that file.
type SessionDefaults struct {
	mu  sync.RWMutex
	cur SessionConfig
}

func (d *SessionDefaults) Get() SessionConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur
}

func (d *SessionDefaults) set(s SessionConfig) {
	d.mu.Lock()
	d.cur = s
	d.mu.Unlock()
}

// WatchSession returns the session tunables and, when a config file is set,
// reloads them whenever the file changes. Sessions already running keep
// the values they started with.
func (c Config) WatchSession(logger *slog.Logger) *SessionDefaults {
	if logger == nil {
		logger = slog.Default()
	}
	d := &SessionDefaults{cur: c.Session}
	if c.File == "" || c.v == nil {
		return d
	}

	v := c.v
	v.OnConfigChange(func(e fsnotify.Event) {
		next := sessionFrom(v)
		d.set(next)
		logger.Info("session defaults reloaded", "file", e.Name, "max_exchanges", next.MaxExchanges, "silence_timeout", next.SilenceTimeout)
	})
	v.WatchConfig()
	return d
}

func portAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	return ":" + port
}

func parseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
