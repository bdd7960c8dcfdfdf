// Package config loads daemon configuration from an optional YAML board
// profile, environment variables and command-line overrides, in that order
// of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// globalConfig stores the configuration loaded with command-line overrides
// This allows other packages to access the same configuration that was loaded by the daemon
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the application configuration
type Config struct {
	Display  DisplayConfig  `json:"display" yaml:"display"`
	Sprite   SpriteConfig   `json:"sprite" yaml:"sprite"`
	Playback PlaybackConfig `json:"playback" yaml:"playback"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Panel    PanelConfig    `json:"panel" yaml:"panel"`
	Preview  PreviewConfig  `json:"preview" yaml:"preview"`
	Assets   AssetsConfig   `json:"assets" yaml:"assets"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// LoadOptions holds command-line override options
type LoadOptions struct {
	ConfigFile     string
	AssetPack      string
	DefaultEmotion string
	LogLevel       string
	Host           string
	Port           string
	EnablePreview  bool
	EnableSPI      bool
	SPIPort        string
	SPIDCPin       string
}

// DisplayConfig holds screen geometry and engine timing
type DisplayConfig struct {
	Width        int    `json:"width" yaml:"width" env:"DISPLAY_WIDTH" default:"240"`
	Height       int    `json:"height" yaml:"height" env:"DISPLAY_HEIGHT" default:"240"`
	TileRows     int    `json:"tileRows" yaml:"tile_rows" env:"DISPLAY_TILE_ROWS" default:"24"`
	RefreshFPS   int    `json:"refreshFps" yaml:"refresh_fps" env:"DISPLAY_REFRESH_FPS" default:"30"`
	MirrorLabels bool   `json:"mirrorLabels" yaml:"mirror_labels" env:"DISPLAY_MIRROR_LABELS" default:"false"`
	Background   string `json:"background" yaml:"background" env:"DISPLAY_BACKGROUND" default:"000000"`
}

// SpriteConfig holds eye geometry and resampling settings
type SpriteConfig struct {
	EyeWidth       int    `json:"eyeWidth" yaml:"eye_width" env:"SPRITE_EYE_WIDTH" default:"100"`
	EyeHeight      int    `json:"eyeHeight" yaml:"eye_height" env:"SPRITE_EYE_HEIGHT" default:"100"`
	Gap            int    `json:"gap" yaml:"gap" env:"SPRITE_GAP" default:"10"`
	YOffset        int    `json:"yOffset" yaml:"y_offset" env:"SPRITE_Y_OFFSET" default:"0"`
	Filter         string `json:"filter" yaml:"filter" env:"SPRITE_FILTER" default:"bilinear"`
	BlendThreshold int    `json:"blendThreshold" yaml:"blend_threshold" env:"SPRITE_BLEND_THRESHOLD" default:"48"`
}

// PlaybackConfig holds playback driver settings
type PlaybackConfig struct {
	DefaultFPS int           `json:"defaultFps" yaml:"default_fps" env:"PLAYBACK_DEFAULT_FPS" default:"20"`
	IdlePoll   time.Duration `json:"idlePoll" yaml:"idle_poll" env:"PLAYBACK_IDLE_POLL" default:"50ms"`
	Emotion    string        `json:"emotion" yaml:"emotion" env:"PLAYBACK_EMOTION" default:"neutral"`
}

// MemoryConfig holds heap budgets in bytes, zero meaning unbounded, and the
// largest frame geometry the decoder accepts.
type MemoryConfig struct {
	InternalBytes int `json:"internalBytes" yaml:"internal_bytes" env:"MEMORY_INTERNAL_BYTES" default:"0"`
	SPIRAMBytes   int `json:"spiramBytes" yaml:"spiram_bytes" env:"MEMORY_SPIRAM_BYTES" default:"0"`
	// MaxFramePixels bounds the geometry a source frame may claim.
	MaxFramePixels int `json:"maxFramePixels" yaml:"max_frame_pixels" env:"MEMORY_MAX_FRAME_PIXELS" default:"262144"`
}

// PanelConfig holds the optional SPI panel wiring
type PanelConfig struct {
	SPIEnabled bool   `json:"spiEnabled" yaml:"spi_enabled" env:"PANEL_SPI_ENABLED" default:"false"`
	SPIPort    string `json:"spiPort" yaml:"spi_port" env:"PANEL_SPI_PORT" default:"SPI0.0"`
	DCPin      string `json:"dcPin" yaml:"dc_pin" env:"PANEL_DC_PIN" default:"GPIO25"`
	ResetPin   string `json:"resetPin" yaml:"reset_pin" env:"PANEL_RESET_PIN" default:""`
	SpeedHz    int64  `json:"speedHz" yaml:"speed_hz" env:"PANEL_SPEED_HZ" default:"40000000"`
	XOffset    int    `json:"xOffset" yaml:"x_offset" env:"PANEL_X_OFFSET" default:"0"`
	YOffset    int    `json:"yOffset" yaml:"y_offset" env:"PANEL_Y_OFFSET" default:"0"`
	MemAccess  int    `json:"memAccess" yaml:"mem_access" env:"PANEL_MEM_ACCESS" default:"0"`
	SwapBytes  bool   `json:"swapBytes" yaml:"swap_bytes" env:"PANEL_SWAP_BYTES" default:"false"`
}

// PreviewConfig holds the websocket preview server settings
type PreviewConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" env:"PREVIEW_ENABLED" default:"false"`
	Host           string   `json:"host" yaml:"host" env:"PREVIEW_HOST" default:"127.0.0.1"`
	Port           string   `json:"port" yaml:"port" env:"PREVIEW_PORT" default:"8080"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowed_origins" env:"PREVIEW_ALLOWED_ORIGINS" default:""`
	MaxClients     int      `json:"maxClients" yaml:"max_clients" env:"PREVIEW_MAX_CLIENTS" default:"8"`
}

// AssetsConfig holds asset pack settings
type AssetsConfig struct {
	Pack string `json:"pack" yaml:"pack" env:"ASSETS_PACK" default:""`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Display: DisplayConfig{Width: 240, Height: 240, TileRows: 24, RefreshFPS: 30, Background: "000000"},
		Sprite: SpriteConfig{
			EyeWidth: 100, EyeHeight: 100, Gap: 10, Filter: "bilinear", BlendThreshold: 48,
		},
		Playback: PlaybackConfig{DefaultFPS: 20, IdlePoll: 50 * time.Millisecond, Emotion: "neutral"},
		Memory:   MemoryConfig{MaxFramePixels: 512 * 512},
		Panel: PanelConfig{
			SPIPort: "SPI0.0", DCPin: "GPIO25", SpeedHz: 40_000_000,
		},
		Preview: PreviewConfig{Host: "127.0.0.1", Port: "8080", AllowedOrigins: []string{}, MaxClients: 8},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := Defaults()

	profile := getOverrideOrEnv(opts.ConfigFile, "EMOTE_CONFIG", "")
	if profile != "" {
		if err := config.LoadProfile(profile); err != nil {
			return nil, err
		}
	}

	// Display config
	config.Display.Width = getIntWithDefault("DISPLAY_WIDTH", config.Display.Width)
	config.Display.Height = getIntWithDefault("DISPLAY_HEIGHT", config.Display.Height)
	config.Display.TileRows = getIntWithDefault("DISPLAY_TILE_ROWS", config.Display.TileRows)
	config.Display.RefreshFPS = getIntWithDefault("DISPLAY_REFRESH_FPS", config.Display.RefreshFPS)
	config.Display.MirrorLabels = getBoolWithDefault("DISPLAY_MIRROR_LABELS", config.Display.MirrorLabels)
	config.Display.Background = getEnvWithDefault("DISPLAY_BACKGROUND", config.Display.Background)

	// Sprite config
	config.Sprite.EyeWidth = getIntWithDefault("SPRITE_EYE_WIDTH", config.Sprite.EyeWidth)
	config.Sprite.EyeHeight = getIntWithDefault("SPRITE_EYE_HEIGHT", config.Sprite.EyeHeight)
	config.Sprite.Gap = getIntWithDefault("SPRITE_GAP", config.Sprite.Gap)
	config.Sprite.YOffset = getIntWithDefault("SPRITE_Y_OFFSET", config.Sprite.YOffset)
	config.Sprite.Filter = getEnvWithDefault("SPRITE_FILTER", config.Sprite.Filter)
	config.Sprite.BlendThreshold = getIntWithDefault("SPRITE_BLEND_THRESHOLD", config.Sprite.BlendThreshold)

	// Playback config
	config.Playback.DefaultFPS = getIntWithDefault("PLAYBACK_DEFAULT_FPS", config.Playback.DefaultFPS)
	config.Playback.IdlePoll = getDurationWithDefault("PLAYBACK_IDLE_POLL", config.Playback.IdlePoll)
	config.Playback.Emotion = getOverrideOrEnv(opts.DefaultEmotion, "PLAYBACK_EMOTION", config.Playback.Emotion)

	// Memory config
	config.Memory.InternalBytes = getIntWithDefault("MEMORY_INTERNAL_BYTES", config.Memory.InternalBytes)
	config.Memory.SPIRAMBytes = getIntWithDefault("MEMORY_SPIRAM_BYTES", config.Memory.SPIRAMBytes)
	config.Memory.MaxFramePixels = getIntWithDefault("MEMORY_MAX_FRAME_PIXELS", config.Memory.MaxFramePixels)

	// Panel config
	config.Panel.SPIEnabled = getBoolWithDefault("PANEL_SPI_ENABLED", config.Panel.SPIEnabled) || opts.EnableSPI
	config.Panel.SPIPort = getOverrideOrEnv(opts.SPIPort, "PANEL_SPI_PORT", config.Panel.SPIPort)
	config.Panel.DCPin = getOverrideOrEnv(opts.SPIDCPin, "PANEL_DC_PIN", config.Panel.DCPin)
	config.Panel.ResetPin = getEnvWithDefault("PANEL_RESET_PIN", config.Panel.ResetPin)
	config.Panel.SpeedHz = int64(getIntWithDefault("PANEL_SPEED_HZ", int(config.Panel.SpeedHz)))
	config.Panel.XOffset = getIntWithDefault("PANEL_X_OFFSET", config.Panel.XOffset)
	config.Panel.YOffset = getIntWithDefault("PANEL_Y_OFFSET", config.Panel.YOffset)
	config.Panel.MemAccess = getIntWithDefault("PANEL_MEM_ACCESS", config.Panel.MemAccess)
	config.Panel.SwapBytes = getBoolWithDefault("PANEL_SWAP_BYTES", config.Panel.SwapBytes)

	// Preview config
	config.Preview.Enabled = getBoolWithDefault("PREVIEW_ENABLED", config.Preview.Enabled) || opts.EnablePreview
	config.Preview.Host = getOverrideOrEnv(opts.Host, "PREVIEW_HOST", config.Preview.Host)
	config.Preview.Port = getOverrideOrEnv(opts.Port, "PREVIEW_PORT", config.Preview.Port)
	config.Preview.AllowedOrigins = getStringSliceWithDefault("PREVIEW_ALLOWED_ORIGINS", config.Preview.AllowedOrigins)
	config.Preview.MaxClients = getIntWithDefault("PREVIEW_MAX_CLIENTS", config.Preview.MaxClients)

	// Assets config
	config.Assets.Pack = getOverrideOrEnv(opts.AssetPack, "ASSETS_PACK", config.Assets.Pack)

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnvWithDefault("LOG_FORMAT", config.Logging.Format)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store the configuration globally so other packages can access it
	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// LoadProfile overlays a YAML board profile onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read board profile %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse board profile %s", path)
	}
	return nil
}

// GetGlobalConfig returns the globally stored configuration
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// BackgroundRGB parses Display.Background as RRGGBB hex.
func (c *Config) BackgroundRGB() (r, g, b uint8, err error) {
	s := strings.TrimPrefix(c.Display.Background, "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("background must be RRGGBB: %q", c.Display.Background)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("background must be RRGGBB: %q", c.Display.Background)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate display config
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display dimensions must be positive")
	}

	if c.Display.Width > 0xFFFF || c.Display.Height > 0xFFFF {
		return fmt.Errorf("display dimensions must fit in 16 bits")
	}

	if c.Display.TileRows <= 0 || c.Display.TileRows > c.Display.Height {
		return fmt.Errorf("tile rows must be between 1 and the display height")
	}

	if c.Display.RefreshFPS <= 0 {
		return fmt.Errorf("refresh fps must be positive")
	}

	if _, _, _, err := c.BackgroundRGB(); err != nil {
		return err
	}

	// Validate sprite config
	if c.Sprite.EyeWidth <= 0 || c.Sprite.EyeHeight <= 0 {
		return fmt.Errorf("eye dimensions must be positive")
	}

	if c.Sprite.Gap < 0 {
		return fmt.Errorf("eye gap cannot be negative")
	}

	validFilters := map[string]bool{
		"nearest":  true,
		"bilinear": true,
	}

	if !validFilters[c.Sprite.Filter] {
		return fmt.Errorf("invalid sprite filter: %s", c.Sprite.Filter)
	}

	// Validate playback config
	if c.Playback.DefaultFPS <= 0 {
		return fmt.Errorf("default fps must be positive")
	}

	if c.Playback.IdlePoll <= 0 {
		return fmt.Errorf("idle poll interval must be positive")
	}

	// Validate memory config
	if c.Memory.InternalBytes < 0 || c.Memory.SPIRAMBytes < 0 {
		return fmt.Errorf("memory budgets cannot be negative")
	}
	if c.Memory.MaxFramePixels < 0 {
		return fmt.Errorf("max frame pixels cannot be negative")
	}

	// Validate panel config
	if c.Panel.SPIEnabled {
		if c.Panel.SPIPort == "" || c.Panel.DCPin == "" {
			return fmt.Errorf("SPI port and DC pin must be specified when the SPI panel is enabled")
		}

		if c.Panel.MemAccess < 0 || c.Panel.MemAccess > 0xFF {
			return fmt.Errorf("invalid panel mem access value: %d", c.Panel.MemAccess)
		}
	}

	// Validate preview config
	if c.Preview.Enabled {
		if port, err := strconv.Atoi(c.Preview.Port); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid preview port: %s", c.Preview.Port)
		}

		if c.Preview.MaxClients <= 0 {
			return fmt.Errorf("max preview clients must be positive")
		}
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
