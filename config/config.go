// Package config loads dictate's settings from defaults, a YAML file, .env
// files, the environment and command-line flags, in increasing precedence.
//
// Environment variables use the DICTATE_ prefix with dots replaced by
// underscores (DICTATE_CAPTURE_COMMAND). The API key is also read from the
// conventional OPENAI_API_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "DICTATE"

// APIKeyEnv is the conventional variable holding the OpenAI key
const APIKeyEnv = "OPENAI_API_KEY"

// Config holds every runtime setting
type Config struct {
	APIKey         string        `mapstructure:"api_key"`
	Endpoint       string        `mapstructure:"endpoint"`
	Model          string        `mapstructure:"model"`
	ResponseFormat string        `mapstructure:"response_format"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`

	MinArtifactBytes int64         `mapstructure:"min_artifact_bytes"`
	MaxArtifactBytes int64         `mapstructure:"max_artifact_bytes"`
	ArtifactPath     string        `mapstructure:"artifact_path"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`

	Capture CaptureConfig `mapstructure:"capture"`
	Refine  RefineConfig  `mapstructure:"refine"`
	Log     LogConfig     `mapstructure:"log"`

	Debug bool `mapstructure:"debug"`
}

// CaptureConfig selects the recording and stop commands
type CaptureConfig struct {
	Command     string   `mapstructure:"command"`
	Args        []string `mapstructure:"args"`
	StopCommand string   `mapstructure:"stop_command"`
	StopArgs    []string `mapstructure:"stop_args"`
}

// RefineConfig selects the external refinement tool
type RefineConfig struct {
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig controls the log file
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// HasAPIKey reports whether a credential was found. Without one the
// recorder runs in degraded mode.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Validate rejects settings the rest of the program cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1 (got: %d)", c.MaxAttempts))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative (got: %s)", c.RetryDelay))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive (got: %s)", c.RequestTimeout))
	}
	if c.MinArtifactBytes < 0 {
		errs = append(errs, fmt.Errorf("min_artifact_bytes must not be negative (got: %d)", c.MinArtifactBytes))
	}
	if c.MaxArtifactBytes <= c.MinArtifactBytes {
		errs = append(errs, fmt.Errorf("max_artifact_bytes (%d) must be greater than min_artifact_bytes (%d)",
			c.MaxArtifactBytes, c.MinArtifactBytes))
	}
	if c.ArtifactPath == "" {
		errs = append(errs, errors.New("artifact_path is required"))
	}
	if c.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("grace_period must not be negative (got: %s)", c.GracePeriod))
	}
	if c.Capture.Command == "" {
		errs = append(errs, errors.New("capture.command is required"))
	}
	if c.Refine.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("refine.timeout must be positive (got: %s)", c.Refine.Timeout))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}
	return errors.Join(errs...)
}

// LoaderConfig holds optional file overrides for Load
type LoaderConfig struct {
	ConfigFile string
	EnvFiles   []string
	Flags      *pflag.FlagSet
}

// LoaderOption is a functional option for Load
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit YAML config file. A missing explicit
// file is an error; the default location is optional.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFiles replaces the .env search list. Earlier files win.
func WithEnvFiles(paths ...string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFiles = paths }
}

// WithFlags binds command-line flags. Flag names use dashes where the
// keys use underscores (--max-attempts sets max_attempts).
func WithFlags(fs *pflag.FlagSet) LoaderOption {
	return func(lc *LoaderConfig) { lc.Flags = fs }
}

// Load resolves the configuration. It does not validate it.
func Load(opts ...LoaderOption) (*Config, error) {
	lc := LoaderConfig{EnvFiles: DefaultEnvFiles()}
	for _, opt := range opts {
		opt(&lc)
	}

	v := viper.New()
	setDefaults(v)

	// 1. YAML config file (base configuration)
	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", lc.ConfigFile, err)
		}
	} else if path := DefaultConfigFile(); fileExists(path) {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// 2. .env files sit above the config file but below the real environment
	dotenv, err := readEnvFiles(lc.EnvFiles)
	if err != nil {
		return nil, err
	}
	if layer := envLayer(v.AllKeys(), dotenv); len(layer) > 0 {
		if err := v.MergeConfigMap(layer); err != nil {
			return nil, fmt.Errorf("failed to merge .env values: %w", err)
		}
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", APIKeyEnv); err != nil {
		return nil, fmt.Errorf("failed to bind api key: %w", err)
	}

	// 4. Flags
	if lc.Flags != nil {
		if err := bindFlags(v, lc.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Debug {
		cfg.Log.Level = zerolog.LevelDebugValue
	}
	return &cfg, nil
}

// readEnvFiles parses the .env files without touching the process
// environment. A key found in an earlier file is not overwritten.
func readEnvFiles(paths []string) (map[string]string, error) {
	values := make(map[string]string)
	for _, path := range paths {
		if !fileExists(path) {
			continue
		}
		m, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, val := range m {
			if _, ok := values[k]; !ok {
				values[k] = val
			}
		}
	}
	return values, nil
}

// envLayer converts .env values into a nested map keyed like the config
// file, keeping only variables that name a known key.
func envLayer(keys []string, dotenv map[string]string) map[string]any {
	layer := make(map[string]any)
	for _, key := range keys {
		names := []string{EnvName(key)}
		if key == "api_key" {
			names = append(names, APIKeyEnv)
		}
		for _, name := range names {
			if val, ok := dotenv[name]; ok {
				setNested(layer, key, val)
				break
			}
		}
	}
	return layer
}

func setNested(m map[string]any, key string, val string) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		child, ok := m[p].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[p] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = val
}

// EnvName returns the environment variable that sets key
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(v, key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
