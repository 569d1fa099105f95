package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AppName names the per-user config and state directories
const AppName = "dictate"

// Defaults for the transcription pipeline. The size limits and retry
// budget are hand-tuned, not negotiated with the service.
const (
	DefaultEndpoint         = "https://api.openai.com/v1/audio/transcriptions"
	DefaultModel            = "whisper-1"
	DefaultResponseFormat   = "text"
	DefaultRequestTimeout   = 60 * time.Second
	DefaultMaxAttempts      = 3
	DefaultRetryDelay       = 2 * time.Second
	DefaultMinArtifactBytes = 4096
	DefaultMaxArtifactBytes = 25_000_000
	DefaultArtifactPath     = "/tmp/whisper_record.wav"
	DefaultGracePeriod      = 300 * time.Millisecond
	DefaultRefineCommand    = "fabric"
	DefaultRefineTimeout    = 2 * time.Minute
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("endpoint", DefaultEndpoint)
	v.SetDefault("model", DefaultModel)
	v.SetDefault("response_format", DefaultResponseFormat)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("max_attempts", DefaultMaxAttempts)
	v.SetDefault("retry_delay", DefaultRetryDelay)

	v.SetDefault("min_artifact_bytes", DefaultMinArtifactBytes)
	v.SetDefault("max_artifact_bytes", DefaultMaxArtifactBytes)
	v.SetDefault("artifact_path", DefaultArtifactPath)
	v.SetDefault("grace_period", DefaultGracePeriod)

	v.SetDefault("capture.command", "arecord")
	v.SetDefault("capture.args", []string{"-f", "cd", "-t", "wav", "-q"})
	v.SetDefault("capture.stop_command", "pkill")
	v.SetDefault("capture.stop_args", []string{"arecord"})

	v.SetDefault("refine.command", DefaultRefineCommand)
	v.SetDefault("refine.args", []string{"--pattern", "improve_writing"})
	v.SetDefault("refine.timeout", DefaultRefineTimeout)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", DefaultLogFile())

	v.SetDefault("debug", false)
}

// ConfigDir returns $XDG_CONFIG_HOME/dictate, or its platform equivalent
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+AppName)
	}
	return filepath.Join(dir, AppName)
}

// StateDir returns $XDG_STATE_HOME/dictate, falling back to
// ~/.local/state/dictate
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, ".local", "state", AppName)
}

// DefaultConfigFile is the optional YAML file read when no --config is given
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// UserEnvFile is the .env file written by "dictate setup"
func UserEnvFile() string {
	return filepath.Join(ConfigDir(), ".env")
}

// DefaultEnvFiles lists the .env files consulted, highest precedence first
func DefaultEnvFiles() []string {
	return []string{".env", UserEnvFile()}
}

// DefaultLogFile is where the log goes when log.file is not set
func DefaultLogFile() string {
	return filepath.Join(StateDir(), AppName+".log")
}
