package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Assets   AssetsConfig   `toml:"assets"`
	YouTube  YouTubeConfig  `toml:"youtube"`
	Auth     AuthConfig     `toml:"auth"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// AssetsConfig contains object storage settings for cached audio and thumbnails.
type AssetsConfig struct {
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	PublicBaseURL string `toml:"public_base_url"`
}

// YouTubeConfig contains settings for the search/stream/download providers.
//
// Cookies are used only by the yt-dlp fallback. CookiesBase64 takes effect
// when CookiesPath is empty and is materialized to a temp file per attempt.
type YouTubeConfig struct {
	CookiesPath   string  `toml:"cookies_path"`
	CookiesBase64 string  `toml:"cookies_base64"`
	SearchRate    float64 `toml:"search_rate"`
}

// AuthConfig contains identity token settings.
type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLDays  int    `toml:"token_ttl_days"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// PipelineConfig contains acquisition pipeline settings.
type PipelineConfig struct {
	WorkDir              string `toml:"work_dir"`
	StreamTimeoutSeconds int    `toml:"stream_timeout_seconds"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.ApplyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the config. Deploy targets set
// secrets through the environment rather than the TOML file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PEERLESS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ASSETS_BUCKET"); v != "" {
		c.Assets.Bucket = v
	}
	if v := os.Getenv("ASSETS_REGION"); v != "" {
		c.Assets.Region = v
	}
	if v := os.Getenv("ASSETS_PUBLIC_BASE_URL"); v != "" {
		c.Assets.PublicBaseURL = v
	}
	if v := os.Getenv("YOUTUBE_COOKIES_PATH"); v != "" {
		c.YouTube.CookiesPath = v
	}
	if v := os.Getenv("YOUTUBE_COOKIES_BASE64"); v != "" {
		c.YouTube.CookiesBase64 = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate checks settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}
	if c.Assets.Bucket == "" {
		return fmt.Errorf("%w: assets bucket is required", ErrInvalidConfig)
	}
	return nil
}
