package types

import "errors"

// Config holds backend selection and engine parameters for opening the
// cache.
type Config struct {
	Backend   string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir   string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" mapstructure:"models_dir"`

	// NetworkDebugging makes path segments and wire keys carry an
	// "id:name" form instead of a bare id.
	NetworkDebugging bool `json:"network_debugging" yaml:"network_debugging" mapstructure:"network_debugging"`

	// InMemory keeps the badger engine's data in memory only.
	InMemory bool `json:"in_memory" yaml:"in_memory" mapstructure:"in_memory"`

	// Concurrency bounds how many cache keys the update processor works
	// on at once. Zero means DefaultConcurrency.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// DefaultConcurrency is used when Config.Concurrency is zero.
const DefaultConcurrency = 4

// Config validation errors.
var (
	ErrBackendEmpty       = errors.New("backend must not be empty")
	ErrBackendUnknown     = errors.New("unknown backend")
	ErrConcurrencyInvalid = errors.New("concurrency must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendBadger: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Concurrency < 0 {
		return ErrConcurrencyInvalid
	}
	return nil
}

// EffectiveConcurrency returns Concurrency or DefaultConcurrency when unset.
func (c Config) EffectiveConcurrency() int {
	if c.Concurrency == 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}
