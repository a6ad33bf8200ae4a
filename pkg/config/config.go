package config

// Package config provides a reusable loader for the execution node's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/synnergy-labs/many-execution-host/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// ModuleConfigEntry describes one module the node preloads at boot. Address
// is the hex-encoded form parsed by core.ParseAddress; InitHex, when set,
// is hex-encoded init payload bytes and marks the module as requiring its
// init export to run before boot completes.
type ModuleConfigEntry struct {
	Name       string `mapstructure:"name" json:"name"`
	Address    string `mapstructure:"address" json:"address"`
	ModulePath string `mapstructure:"module_path" json:"module_path"`
	InitHex    string `mapstructure:"init_hex" json:"init_hex"`
}

// Config represents the unified configuration for an execution node. It
// mirrors the structure of the YAML files under config/.
type Config struct {
	Storage struct {
		RootDir          string `mapstructure:"root_dir" json:"root_dir"`
		Backend          string `mapstructure:"backend" json:"backend"` // "v1" | "v2"
		MigrationHeight  uint64 `mapstructure:"migration_height" json:"migration_height"`
		MigrationAtStart bool   `mapstructure:"migration_at_start" json:"migration_at_start"`
	} `mapstructure:"storage" json:"storage"`

	Wasm struct {
		ModuleDir    string `mapstructure:"module_dir" json:"module_dir"`
		MemoryDir    string `mapstructure:"memory_dir" json:"memory_dir"`
		DefaultFuel  uint64 `mapstructure:"default_fuel" json:"default_fuel"`
		WASIDebugLog bool   `mapstructure:"wasi_debug_log" json:"wasi_debug_log"`
	} `mapstructure:"wasm" json:"wasm"`

	// Modules lists the modules to warm-instantiate and register at boot
	// (add_module_config), and the subset of those that additionally need
	// their init export invoked before the node is considered up (init).
	Modules []ModuleConfigEntry `mapstructure:"modules" json:"modules"`

	Admin struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
		Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	} `mapstructure:"admin" json:"admin"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // reads matching process environment variables; no .env file is loaded

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the EXECD_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("EXECD_ENV", ""))
}
