package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files.
	ConfigFileName = "scanprep"

	// EnvPrefix is the prefix for environment variables, so
	// SCANPREP_LOG_LEVEL overrides log_level.
	EnvPrefix = "SCANPREP"
)

// Loader assembles configuration from files and environment variables.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load reads configuration from the search paths and the environment.
// It always returns a usable configuration: any problem with the file
// is logged at warn level and the defaults take over.
func (l *Loader) Load() Config {
	return l.load("")
}

// LoadWithFile is Load with an explicit file path. An empty path falls
// back to the search paths.
func (l *Loader) LoadWithFile(configFile string) Config {
	return l.load(configFile)
}

func (l *Loader) load(configFile string) Config {
	cfg := Default()

	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.addConfigPaths()
	}
	l.setupEnvironmentVariables()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configFile == "" {
			// No file anywhere on the search path, defaults apply.
			return cfg
		}
		slog.Warn("cannot read config, using defaults", "error", err)
		return Default()
	}

	if err := l.v.Unmarshal(&cfg); err != nil {
		slog.Warn("cannot parse config, using defaults",
			"file", l.v.ConfigFileUsed(), "error", err)
		return Default()
	}
	return cfg
}

// addConfigPaths registers the file search paths: working directory,
// then the user config directory, then /etc.
func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home + "/.config/scanprep")
	}
	l.v.AddConfigPath("/etc/scanprep")
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}
