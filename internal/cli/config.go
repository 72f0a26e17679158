package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/patchcache/internal/keys"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "PATCHCACHE"

	cfgKeyBackend          = "backend"
	cfgKeyDataDir          = "data_dir"
	cfgKeyModelsDir        = "models_dir"
	cfgKeyNetworkDebugging = "network_debugging"
	cfgKeyInMemory         = "in_memory"
	cfgKeyConcurrency      = "concurrency"
)

// defaultConfigYAML is the content written to config.yaml by init.
const defaultConfigYAML = `# patchcache configuration

# Storage engine: sqlite or badger
backend: sqlite

# Cache data directory (optional; overridable by --data-dir)
# data_dir:

# Type-model directory (optional; defaults to <config dir>/models)
# models_dir:

# Accept "id:name" attribute keys in patch paths and payloads
network_debugging: false

# Cache keys worked on at once when applying update batches
concurrency: 4

# Owner group keys used to unwrap session keys (base64)
# group_keys:
#   - group: my-group-id
#     version: 0
#     key: AAAA...
`

// settings is the decoded config.yaml.
type settings struct {
	types.Config `mapstructure:",squash"`

	GroupKeys []keys.GroupKey `mapstructure:"group_keys"`
}

// loadSettings reads config.yaml from configDir. A missing file is not an
// error. PATCHCACHE_* environment variables and the --backend flag override
// file values.
func loadSettings(configDir string, fs *pflag.FlagSet) (settings, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyConcurrency, types.DefaultConcurrency)
	v.SetDefault(cfgKeyNetworkDebugging, false)
	v.SetDefault(cfgKeyInMemory, false)
	v.SetDefault(cfgKeyDataDir, "")
	v.SetDefault(cfgKeyModelsDir, "")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if f := fs.Lookup(cfgKeyBackend); f != nil {
		if err := v.BindPFlag(cfgKeyBackend, f); err != nil {
			return settings{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return settings{}, err
	}
	return s, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist.
func writeConfigIfMissing(configDir string) (bool, error) {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}
	return true, os.WriteFile(path, []byte(defaultConfigYAML), 0o600)
}
