// Package app wires configuration, storage, state and autosave together
// and exposes the commands the CLI and editor call.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ConfigManager handles the global configuration file.
type ConfigManager struct {
	configDir        string
	globalConfigPath string
	globalConfig     *types.GlobalConfig

	// envRefs remembers ${VAR} API keys by provider so saving does not
	// write the resolved secret.
	envRefs map[string]string
}

// NewConfigManager creates a configuration manager for the user config directory.
func NewConfigManager() (*ConfigManager, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return NewConfigManagerAt(configDir), nil
}

// NewConfigManagerAt creates a configuration manager rooted at dir.
func NewConfigManagerAt(dir string) *ConfigManager {
	return &ConfigManager{
		configDir:        dir,
		globalConfigPath: filepath.Join(dir, "config.yaml"),
	}
}

// getConfigDir returns the configuration directory path.
func getConfigDir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "storyloom"), nil
}

// Path returns the config file path.
func (cm *ConfigManager) Path() string {
	return cm.globalConfigPath
}

// LoadGlobalConfig loads the global configuration. A missing file yields
// defaults. A .env file next to the config is loaded first so that
// ${VAR} references in API keys can point at it.
func (cm *ConfigManager) LoadGlobalConfig() (*types.GlobalConfig, error) {
	if cm.globalConfig != nil {
		return cm.globalConfig, nil
	}

	envPath := filepath.Join(cm.configDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	config := types.DefaultGlobalConfig()
	data, err := os.ReadFile(cm.globalConfigPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read global config: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse global config: %w", err)
		}
	}

	cm.envRefs = make(map[string]string)
	for name, provider := range config.Providers {
		if provider != nil && expandEnv(provider.APIKey) != provider.APIKey {
			cm.envRefs[name] = provider.APIKey
		}
	}

	if err := normalizeConfig(config); err != nil {
		return nil, err
	}

	cm.globalConfig = config
	return cm.globalConfig, nil
}

// normalizeConfig expands paths and environment references, fills zero
// values with defaults and validates the result.
func normalizeConfig(config *types.GlobalConfig) error {
	defaults := types.DefaultGlobalConfig()

	if config.Providers == nil {
		config.Providers = make(map[string]*types.ProviderConfig)
	}
	for name, provider := range config.Providers {
		if provider == nil {
			delete(config.Providers, name)
			continue
		}
		provider.APIKey = expandEnv(provider.APIKey)
	}

	if config.DataDir == "" {
		config.DataDir = defaults.DataDir
	}
	config.DataDir = expandPath(config.DataDir)

	if config.Storage.Driver == "" {
		config.Storage.Driver = defaults.Storage.Driver
	}
	if config.Storage.Driver != storage.DriverPureGo && config.Storage.Driver != storage.DriverCgo {
		return fmt.Errorf("%w: storage.driver must be %q or %q, got %q",
			ErrInvalidConfig, storage.DriverPureGo, storage.DriverCgo, config.Storage.Driver)
	}

	a := &config.Autosave
	if a.SettleWindow <= 0 {
		a.SettleWindow = defaults.Autosave.SettleWindow
	}
	if a.SavedHold <= 0 {
		a.SavedHold = defaults.Autosave.SavedHold
	}
	if a.SnapshotInterval <= 0 {
		a.SnapshotInterval = defaults.Autosave.SnapshotInterval
	}
	if a.SnapshotRetention <= 0 {
		a.SnapshotRetention = defaults.Autosave.SnapshotRetention
	}
	if config.History.Limit <= 0 {
		config.History.Limit = defaults.History.Limit
	}

	if config.Logging.File == "" {
		config.Logging.File = filepath.Join(config.DataDir, "logs", "storyloom.log")
	}
	config.Logging.File = expandPath(config.Logging.File)
	config.Metrics.Textfile = expandPath(config.Metrics.Textfile)
	return nil
}

// SaveGlobalConfig saves the global configuration.
func (cm *ConfigManager) SaveGlobalConfig(config *types.GlobalConfig) error {
	out := *config
	out.Providers = make(map[string]*types.ProviderConfig, len(config.Providers))
	for name, provider := range config.Providers {
		p := *provider
		if ref, ok := cm.envRefs[name]; ok && expandEnv(ref) == p.APIKey {
			p.APIKey = ref
		}
		out.Providers[name] = &p
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := storage.AtomicWriteFile(cm.globalConfigPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	cm.globalConfig = config
	return nil
}

// expandEnv replaces a whole-value ${VAR} reference with the variable's value.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// GetProviderConfig returns the configuration for a specific provider.
func (cm *ConfigManager) GetProviderConfig(providerName string) (*types.ProviderConfig, error) {
	config, err := cm.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}

	provider, ok := config.Providers[providerName]
	if !ok || provider.APIKey == "" {
		return nil, fmt.Errorf("provider %q not configured", providerName)
	}

	return provider, nil
}
