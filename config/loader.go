package config

import (
	"os"
	"path/filepath"

	"github.com/hupe1980/quill/logging"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "quill.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/quill"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger logging.Logger
	getenv func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(logger logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Loader{logger: logger, getenv: os.Getenv}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. explicit path, or the first of: project config (quill.yaml in the
// current or a parent directory), user config (~/.config/quill/config.yaml)
// 3. Environment variables
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		path = l.findProjectConfig()
	}
	if path == "" {
		if p := UserConfigPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}

	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
		l.logger.Debug("Loaded config", "path", path)
	} else {
		l.logger.Debug("No config file found, using defaults")
	}

	config.applyEnv(l.getenv)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// UserConfigPath returns the path to the user config file
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for quill.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
