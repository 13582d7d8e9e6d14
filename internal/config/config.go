package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "GLOSSVOICE"

// Config stores runtime configuration for the desktop app.
type Config struct {
	Audio     AudioConfig
	Session   SessionConfig
	Storage   StorageConfig
	Identity  IdentityConfig
	Answers   AnswersConfig
	Translate TranslateConfig
	Playback  PlaybackConfig
	Log       LogConfig
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int    `validate:"gt=0"`
	Channels        int    `validate:"gt=0"`
	Encoding        string `validate:"oneof=wav mulaw"`
	ChunkSize       int    `validate:"gte=256"`
}

type SessionConfig struct {
	Deadline      time.Duration `validate:"gt=0"`
	UploadTimeout time.Duration `validate:"gt=0"`
}

type StorageConfig struct {
	Backend         string `validate:"oneof=s3 gcs http memory"`
	Bucket          string `validate:"required_if=Backend s3"`
	Region          string
	Endpoint        string `validate:"omitempty,url"`
	BaseURL         string `validate:"required_if=Backend http,omitempty,url"`
	Prefix          string
	DemoDirectory   string `validate:"required"`
	CacheControl    string
	PublicURLBase   string `validate:"omitempty,url"`
	AccessKeyID     string
	SecretAccessKey string
	CredentialsFile string
}

type IdentityConfig struct {
	Token    string
	Secret   string
	DemoMode bool
}

type AnswersConfig struct {
	Path string `validate:"required"`
	Term string `validate:"required"`
}

type TranslateConfig struct {
	CatalogPath string
}

type PlaybackConfig struct {
	Command      string
	CacheSize    int           `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Level   string `validate:"oneof=debug info warn error"`
	Path    string
	Console bool
}

// Load resolves configuration from an optional .env file, an optional config
// file named by GLOSSVOICE_CONFIG, GLOSSVOICE_* environment variables and
// defaults, in increasing order of precedence for the last three.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	if err := loadDotEnv(home); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, home)

	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := Config{
		Audio: AudioConfig{
			RecorderCommand: stringOrDefault(v, "audio.ffmpeg_command", "ffmpeg"),
			InputFormat:     stringOrDefault(v, "audio.input_format", "pulse"),
			InputDevice: firstNonEmpty(
				v.GetString("audio.input_device"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate: v.GetInt("audio.sample_rate"),
			Channels:   v.GetInt("audio.channels"),
			Encoding:   strings.ToLower(stringOrDefault(v, "audio.encoding", "wav")),
			ChunkSize:  v.GetInt("audio.chunk_size"),
		},
		Session: SessionConfig{
			Deadline:      v.GetDuration("session.deadline"),
			UploadTimeout: v.GetDuration("session.upload_timeout"),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(stringOrDefault(v, "storage.backend", "memory")),
			Bucket:          strings.TrimSpace(v.GetString("storage.bucket")),
			Region:          strings.TrimSpace(v.GetString("storage.region")),
			Endpoint:        strings.TrimSpace(v.GetString("storage.endpoint")),
			BaseURL:         strings.TrimSpace(v.GetString("storage.base_url")),
			Prefix:          strings.Trim(strings.TrimSpace(v.GetString("storage.prefix")), "/"),
			DemoDirectory:   strings.Trim(stringOrDefault(v, "storage.demo_directory", "demo"), "/"),
			CacheControl:    strings.TrimSpace(v.GetString("storage.cache_control")),
			PublicURLBase:   strings.TrimSpace(v.GetString("storage.public_url_base")),
			AccessKeyID:     strings.TrimSpace(v.GetString("storage.access_key_id")),
			SecretAccessKey: strings.TrimSpace(v.GetString("storage.secret_access_key")),
			CredentialsFile: strings.TrimSpace(v.GetString("storage.credentials_file")),
		},
		Identity: IdentityConfig{
			Token:    strings.TrimSpace(v.GetString("identity.token")),
			Secret:   v.GetString("identity.secret"),
			DemoMode: v.GetBool("identity.demo_mode"),
		},
		Answers: AnswersConfig{
			Path: stringOrDefault(v, "answers.path", filepath.Join(home, ".local", "share", "glossvoice", "answers.db")),
			Term: stringOrDefault(v, "answers.term", "glossary"),
		},
		Translate: TranslateConfig{
			CatalogPath: strings.TrimSpace(v.GetString("translate.catalog")),
		},
		Playback: PlaybackConfig{
			Command:      stringOrDefault(v, "playback.ffplay_command", "ffplay"),
			CacheSize:    v.GetInt("playback.cache_size"),
			FetchTimeout: v.GetDuration("playback.fetch_timeout"),
		},
		Log: LogConfig{
			Level:   strings.ToLower(stringOrDefault(v, "log.level", "info")),
			Path:    strings.TrimSpace(v.GetString("log.path")),
			Console: v.GetBool("log.console"),
		},
	}

	// Unparseable numbers read as zero; fall back like an unset variable.
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Session.Deadline <= 0 {
		cfg.Session.Deadline = 60 * time.Second
	}
	if cfg.Session.UploadTimeout <= 0 {
		cfg.Session.UploadTimeout = 30 * time.Second
	}
	if cfg.Playback.CacheSize <= 0 {
		cfg.Playback.CacheSize = 32
	}
	if cfg.Playback.FetchTimeout <= 0 {
		cfg.Playback.FetchTimeout = 15 * time.Second
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("audio.ffmpeg_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.encoding", "wav")
	v.SetDefault("audio.chunk_size", 4096)
	v.SetDefault("session.deadline", "60s")
	v.SetDefault("session.upload_timeout", "30s")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.base_url", "")
	v.SetDefault("storage.prefix", "answers")
	v.SetDefault("storage.demo_directory", "demo")
	v.SetDefault("storage.cache_control", "public, max-age=31536000")
	v.SetDefault("storage.public_url_base", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.credentials_file", "")
	v.SetDefault("identity.token", "")
	v.SetDefault("identity.secret", "")
	v.SetDefault("identity.demo_mode", false)
	v.SetDefault("answers.path", filepath.Join(home, ".local", "share", "glossvoice", "answers.db"))
	v.SetDefault("answers.term", "glossary")
	v.SetDefault("translate.catalog", firstExisting(
		filepath.Join(home, ".config", "glossvoice", "strings.catalog"),
	))
	v.SetDefault("playback.ffplay_command", "ffplay")
	v.SetDefault("playback.cache_size", 32)
	v.SetDefault("playback.fetch_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", filepath.Join(home, ".local", "state", "glossvoice", "glossvoice.log"))
	v.SetDefault("log.console", false)
}

// loadDotEnv reads GLOSSVOICE_ENV_FILE, ./.env or ~/.config/glossvoice/.env,
// whichever exists first. Variables already set in the environment win.
func loadDotEnv(home string) error {
	path := firstExistingOnly(
		strings.TrimSpace(os.Getenv(envPrefix+"_ENV_FILE")),
		".env",
		filepath.Join(home, ".config", "glossvoice", ".env"),
	)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

func firstExisting(paths ...string) string {
	if found := firstExistingOnly(paths...); found != "" {
		return found
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstExistingOnly(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
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

func stringOrDefault(v *viper.Viper, key string, fallback string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	return value
}
