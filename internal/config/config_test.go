package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv sets vars for the duration of the test.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 240, cfg.Display.Width)
				assert.Equal(t, 240, cfg.Display.Height)
				assert.Equal(t, 100, cfg.Sprite.EyeWidth)
				assert.Equal(t, 100, cfg.Sprite.EyeHeight)
				assert.Equal(t, 10, cfg.Sprite.Gap)
				assert.Equal(t, "bilinear", cfg.Sprite.Filter)
				assert.Equal(t, 48, cfg.Sprite.BlendThreshold)
				assert.Equal(t, 20, cfg.Playback.DefaultFPS)
				assert.Equal(t, 50*time.Millisecond, cfg.Playback.IdlePoll)
				assert.False(t, cfg.Panel.SPIEnabled)
				assert.False(t, cfg.Preview.Enabled)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "text", cfg.Logging.Format)
			},
		},
		{
			name: "environment overrides",
			envVars: map[string]string{
				"DISPLAY_WIDTH":           "320",
				"DISPLAY_HEIGHT":          "172",
				"SPRITE_FILTER":           "nearest",
				"SPRITE_BLEND_THRESHOLD":  "-1",
				"PLAYBACK_IDLE_POLL":      "100ms",
				"MEMORY_SPIRAM_BYTES":     "2097152",
				"MEMORY_MAX_FRAME_PIXELS": "10000",
				"PREVIEW_ENABLED":         "true",
				"PREVIEW_ALLOWED_ORIGINS": "http://a, http://b",
				"LOG_FORMAT":              "json",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 320, cfg.Display.Width)
				assert.Equal(t, 172, cfg.Display.Height)
				assert.Equal(t, "nearest", cfg.Sprite.Filter)
				assert.Equal(t, -1, cfg.Sprite.BlendThreshold)
				assert.Equal(t, 100*time.Millisecond, cfg.Playback.IdlePoll)
				assert.Equal(t, 2097152, cfg.Memory.SPIRAMBytes)
				assert.Equal(t, 10000, cfg.Memory.MaxFramePixels)
				assert.True(t, cfg.Preview.Enabled)
				assert.Equal(t, []string{"http://a", "http://b"}, cfg.Preview.AllowedOrigins)
				assert.Equal(t, "json", cfg.Logging.Format)
			},
		},
		{
			name:    "invalid filter",
			envVars: map[string]string{"SPRITE_FILTER": "lanczos"},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			envVars: map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.envVars)

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv("PREVIEW_PORT", "9000")

	cfg, err := LoadWithOverrides(LoadOptions{
		Host:           "0.0.0.0",
		Port:           "8443",
		LogLevel:       "warn",
		AssetPack:      "/data/emotes.epak",
		DefaultEmotion: "happy",
		EnablePreview:  true,
		EnableSPI:      true,
		SPIPort:        "SPI1.0",
	})

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Preview.Host)
	assert.Equal(t, "8443", cfg.Preview.Port)
	assert.True(t, cfg.Preview.Enabled)
	assert.True(t, cfg.Panel.SPIEnabled)
	assert.Equal(t, "SPI1.0", cfg.Panel.SPIPort)
	assert.Equal(t, "GPIO25", cfg.Panel.DCPin)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/data/emotes.epak", cfg.Assets.Pack)
	assert.Equal(t, "happy", cfg.Playback.Emotion)
	assert.Same(t, cfg, GetGlobalConfig())
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "board.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(`
display:
  width: 360
  height: 360
  tile_rows: 36
  mirror_labels: true
sprite:
  eye_width: 120
  gap: 16
panel:
  spi_enabled: true
  dc_pin: GPIO24
  swap_bytes: true
`), 0o644))

	t.Run("profile values", func(t *testing.T) {
		cfg, err := LoadWithOverrides(LoadOptions{ConfigFile: profile})
		require.NoError(t, err)
		assert.Equal(t, 360, cfg.Display.Width)
		assert.Equal(t, 36, cfg.Display.TileRows)
		assert.True(t, cfg.Display.MirrorLabels)
		assert.Equal(t, 120, cfg.Sprite.EyeWidth)
		assert.Equal(t, 100, cfg.Sprite.EyeHeight)
		assert.Equal(t, 16, cfg.Sprite.Gap)
		assert.True(t, cfg.Panel.SPIEnabled)
		assert.Equal(t, "GPIO24", cfg.Panel.DCPin)
		assert.True(t, cfg.Panel.SwapBytes)
	})

	t.Run("environment beats profile", func(t *testing.T) {
		t.Setenv("SPRITE_GAP", "4")
		cfg, err := LoadWithOverrides(LoadOptions{ConfigFile: profile})
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Sprite.Gap)
	})

	t.Run("profile from environment", func(t *testing.T) {
		t.Setenv("EMOTE_CONFIG", profile)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 360, cfg.Display.Height)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadWithOverrides(LoadOptions{ConfigFile: filepath.Join(dir, "nope.yaml")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read board profile")
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("display: [1, 2"), 0o644))
		_, err := LoadWithOverrides(LoadOptions{ConfigFile: bad})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse board profile")
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "zero width", mutate: func(c *Config) { c.Display.Width = 0 }, wantErr: true},
		{name: "oversized height", mutate: func(c *Config) { c.Display.Height = 70000 }, wantErr: true},
		{name: "tile rows above height", mutate: func(c *Config) { c.Display.TileRows = 241 }, wantErr: true},
		{name: "zero refresh", mutate: func(c *Config) { c.Display.RefreshFPS = 0 }, wantErr: true},
		{name: "bad background", mutate: func(c *Config) { c.Display.Background = "red" }, wantErr: true},
		{name: "hash background", mutate: func(c *Config) { c.Display.Background = "#102030" }},
		{name: "zero eye", mutate: func(c *Config) { c.Sprite.EyeHeight = 0 }, wantErr: true},
		{name: "negative gap", mutate: func(c *Config) { c.Sprite.Gap = -1 }, wantErr: true},
		{name: "blend disabled", mutate: func(c *Config) { c.Sprite.BlendThreshold = -1 }},
		{name: "zero fps", mutate: func(c *Config) { c.Playback.DefaultFPS = 0 }, wantErr: true},
		{name: "zero poll", mutate: func(c *Config) { c.Playback.IdlePoll = 0 }, wantErr: true},
		{name: "negative budget", mutate: func(c *Config) { c.Memory.InternalBytes = -1 }, wantErr: true},
		{name: "negative frame cap", mutate: func(c *Config) { c.Memory.MaxFramePixels = -1 }, wantErr: true},
		{
			name: "spi without dc pin",
			mutate: func(c *Config) {
				c.Panel.SPIEnabled = true
				c.Panel.DCPin = ""
			},
			wantErr: true,
		},
		{
			name: "spi bad madctl",
			mutate: func(c *Config) {
				c.Panel.SPIEnabled = true
				c.Panel.MemAccess = 0x100
			},
			wantErr: true,
		},
		{
			name: "preview bad port",
			mutate: func(c *Config) {
				c.Preview.Enabled = true
				c.Preview.Port = "http"
			},
			wantErr: true,
		},
		{
			name: "disabled preview ignores port",
			mutate: func(c *Config) {
				c.Preview.Port = "http"
			},
		},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBackgroundRGB(t *testing.T) {
	cfg := Defaults()
	cfg.Display.Background = "#FF8001"
	r, g, b, err := cfg.BackgroundRGB()
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{0xFF, 0x80, 0x01}, [3]uint8{r, g, b})
}

func TestEnvHelpers(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "default", getEnvWithDefault("TEST_CONFIG_VAR", "default"))
		t.Setenv("TEST_CONFIG_VAR", "set")
		assert.Equal(t, "set", getEnvWithDefault("TEST_CONFIG_VAR", "default"))
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, 42, getIntWithDefault("TEST_INT_VAR", 42))
		t.Setenv("TEST_INT_VAR", "100")
		assert.Equal(t, 100, getIntWithDefault("TEST_INT_VAR", 42))
		t.Setenv("TEST_INT_VAR", "invalid")
		assert.Equal(t, 42, getIntWithDefault("TEST_INT_VAR", 42))
	})

	t.Run("bool", func(t *testing.T) {
		assert.False(t, getBoolWithDefault("TEST_BOOL_VAR", false))
		t.Setenv("TEST_BOOL_VAR", "true")
		assert.True(t, getBoolWithDefault("TEST_BOOL_VAR", false))
		t.Setenv("TEST_BOOL_VAR", "invalid")
		assert.True(t, getBoolWithDefault("TEST_BOOL_VAR", true))
	})

	t.Run("duration", func(t *testing.T) {
		assert.Equal(t, time.Second, getDurationWithDefault("TEST_DURATION_VAR", time.Second))
		t.Setenv("TEST_DURATION_VAR", "60s")
		assert.Equal(t, time.Minute, getDurationWithDefault("TEST_DURATION_VAR", time.Second))
		t.Setenv("TEST_DURATION_VAR", "soon")
		assert.Equal(t, time.Second, getDurationWithDefault("TEST_DURATION_VAR", time.Second))
	})

	t.Run("slice", func(t *testing.T) {
		def := []string{"d"}
		assert.Equal(t, def, getStringSliceWithDefault("TEST_SLICE_VAR", def))
		t.Setenv("TEST_SLICE_VAR", "a,b")
		assert.Equal(t, []string{"a", "b"}, getStringSliceWithDefault("TEST_SLICE_VAR", def))
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("TEST_OVERRIDE_VAR", "env")
		assert.Equal(t, "flag", getOverrideOrEnv("flag", "TEST_OVERRIDE_VAR", "def"))
		assert.Equal(t, "env", getOverrideOrEnv("", "TEST_OVERRIDE_VAR", "def"))
		os.Unsetenv("TEST_OVERRIDE_VAR")
		assert.Equal(t, "def", getOverrideOrEnv("", "TEST_OVERRIDE_VAR", "def"))
	})
}

func TestSplitString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "normal comma separation", input: "a,b,c", expected: []string{"a", "b", "c"}},
		{name: "with whitespace", input: "a, b , c", expected: []string{"a", "b", "c"}},
		{name: "empty input", input: "", expected: []string{}},
		{name: "empty elements", input: "a,,c", expected: []string{"a", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitString(tt.input, ","))
		})
	}
}
