package config

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/go-errors/errors"
	"github.com/imdario/mergo"
	yaml "github.com/jesseduffield/yaml"
	"github.com/spkg/bom"
)

// AppConfig contains the base configuration fields required for kswingsd.
type AppConfig struct {
	Debug       bool   `long:"debug" env:"DEBUG" default:"false"`
	Version     string `long:"version" env:"VERSION" default:"unversioned"`
	Commit      string `long:"commit" env:"COMMIT"`
	BuildDate   string `long:"build-date" env:"BUILD_DATE"`
	Name        string `long:"name" env:"NAME" default:"kswingsd"`
	BuildSource string `long:"build-source" env:"BUILD_SOURCE" default:""`
	UserConfig  *UserConfig
	ConfigDir   string
}

// UserConfig holds all of the user-configurable options. The fields here are
// in PascalCase but in your config.yml they'll be in camelCase.
type UserConfig struct {
	// Port is the TCP port the control API and session channel listen on
	Port int `yaml:"port,omitempty"`

	// Key is the shared secret the panel authenticates with. The agent
	// refuses to start without one.
	Key string `yaml:"key,omitempty"`

	// Root is the data directory holding storage/ and volumes/. Defaults to
	// the working directory the agent was started from.
	Root string `yaml:"root,omitempty"`

	// RuntimeSocket overrides the container runtime socket path. Defaults to
	// the OS-specific socket; KSWINGS_RUNTIME_SOCKET takes precedence over
	// both.
	RuntimeSocket string `yaml:"runtimeSocket,omitempty"`

	// LogBufferSize caps the number of buffered log records kept per
	// container for session replay
	LogBufferSize int `yaml:"logBufferSize,omitempty"`

	// StatsIntervalSeconds is the stats session sampling period
	StatsIntervalSeconds int `yaml:"statsIntervalSeconds,omitempty"`
}

// GetDefaultConfig returns the app default configuration
func GetDefaultConfig() *UserConfig {
	return &UserConfig{
		Port:                 3002,
		Root:                 "",
		LogBufferSize:        1000,
		StatsIntervalSeconds: 1,
	}
}

// NewAppConfig makes a new app config
func NewAppConfig(name, version, commit, date, buildSource string, debuggingFlag bool, rootFlag, projectDir string) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir(name)
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfig(configDir)
	if err != nil {
		return nil, err
	}

	if rootFlag != "" {
		userConfig.Root = rootFlag
	}
	if userConfig.Root == "" {
		userConfig.Root = projectDir
	}
	if userConfig.Key == "" {
		return nil, errors.New("no access key configured: set `key` in " + filepath.Join(configDir, "config.yml"))
	}

	appConfig := &AppConfig{
		Name:        name,
		Version:     version,
		Commit:      commit,
		BuildDate:   date,
		Debug:       debuggingFlag || os.Getenv("DEBUG") == "TRUE",
		BuildSource: buildSource,
		UserConfig:  userConfig,
		ConfigDir:   configDir,
	}

	return appConfig, nil
}

func findOrCreateConfigDir(projectName string) (string, error) {
	configDirs := xdg.New("kswings", projectName)
	folder := configDirs.ConfigHome()
	return folder, os.MkdirAll(folder, 0o755)
}

func loadUserConfig(configDir string) (*UserConfig, error) {
	config := GetDefaultConfig()

	fileName := filepath.Join(configDir, "config.yml")
	content, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, errors.Wrap(err, 0)
	}

	return mergeWithDefaults(content)
}

// mergeWithDefaults parses yaml content and merges it over the default
// config, tolerating a leading byte-order mark.
func mergeWithDefaults(content []byte) (*UserConfig, error) {
	loaded := &UserConfig{}
	if err := yaml.Unmarshal(bom.Clean(content), loaded); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	config := GetDefaultConfig()
	if err := mergo.Merge(config, loaded, mergo.WithOverride); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return config, nil
}

// RuntimeSocket resolves the runtime socket, letting the environment win
// over the config file.
func (c *AppConfig) RuntimeSocket() string {
	if env := os.Getenv("KSWINGS_RUNTIME_SOCKET"); env != "" {
		return env
	}
	return c.UserConfig.RuntimeSocket
}

// StoragePath is where the durable state document lives
func (c *AppConfig) StoragePath() string {
	return filepath.Join(c.UserConfig.Root, "storage")
}

// VolumesPath is the parent directory of all instance volumes
func (c *AppConfig) VolumesPath() string {
	return filepath.Join(c.UserConfig.Root, "volumes")
}
