package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/shipway/shipway/pkg/logger"
	"github.com/shipway/shipway/pkg/validation"
)

// Config is the full shipway configuration, loaded from shipway.yaml
// with SHIPWAY_* environment overrides.
type Config struct {
	Image    ImageConfig `mapstructure:"image"`
	Build    BuildConfig `mapstructure:"build"`
	Sign     SignConfig  `mapstructure:"sign"`
	LogLevel string      `mapstructure:"log_level"`
}

// ImageConfig names the image the pipeline publishes.
type ImageConfig struct {
	Registry string `mapstructure:"registry"` // e.g. "ghcr.io"
	Name     string `mapstructure:"name"`     // e.g. "acme/widget"
}

// BuildConfig configures the external builder invocation.
type BuildConfig struct {
	Context   string   `mapstructure:"context"`    // build context dir
	Recipe    string   `mapstructure:"recipe"`     // Dockerfile path
	CacheFrom string   `mapstructure:"cache_from"` // --cache-from value
	CacheTo   string   `mapstructure:"cache_to"`   // --cache-to value
	Builder   []string `mapstructure:"builder"`    // builder argv prefix
}

// SignConfig configures the external keyless signer invocation.
type SignConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Tool    []string `mapstructure:"tool"` // signer argv prefix
}

// Repository returns the fully-qualified repository ("registry/name").
func (c *Config) Repository() string {
	return c.Image.Registry + "/" + c.Image.Name
}

// Load reads configuration via viper. Defaults first, then shipway.yaml
// (or the file viper was pointed at), then SHIPWAY_* env overrides.
func Load() (*Config, error) {
	viper.SetDefault("image.registry", "ghcr.io")
	viper.SetDefault("build.context", ".")
	viper.SetDefault("build.recipe", "Dockerfile")
	viper.SetDefault("build.cache_from", "type=gha")
	viper.SetDefault("build.cache_to", "type=gha,mode=max")
	viper.SetDefault("build.builder", []string{"docker", "buildx", "build"})
	viper.SetDefault("sign.enabled", true)
	viper.SetDefault("sign.tool", []string{"cosign", "sign", "--yes"})
	viper.SetDefault("log_level", "info")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Config loaded", "repository", cfg.Repository(), "recipe", cfg.Build.Recipe)
	return &cfg, nil
}

// Validate checks the fields every publish run needs.
func (c *Config) Validate() error {
	if c.Image.Registry == "" {
		return fmt.Errorf("image.registry is required")
	}
	if c.Image.Name == "" {
		return fmt.Errorf("image.name is required")
	}
	// The pipeline derives every tag itself; a tag or digest embedded
	// in the configured name would silently corrupt each derived ref.
	if name, _ := validation.ParseImageReference(c.Repository()); name != c.Repository() {
		return fmt.Errorf("image.name must not embed a tag or digest: %q", c.Image.Name)
	}
	if len(c.Build.Builder) == 0 {
		return fmt.Errorf("build.builder must name the builder command")
	}
	if c.Sign.Enabled && len(c.Sign.Tool) == 0 {
		return fmt.Errorf("sign.tool must name the signer command when signing is enabled")
	}
	if _, err := os.Stat(c.Build.Context); err != nil {
		return fmt.Errorf("build.context %q: %w", c.Build.Context, err)
	}
	return nil
}
