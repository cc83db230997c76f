package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// NetworkConfig holds network-related configuration
type NetworkConfig struct {
	// Address is the IP address to bind to (e.g., "127.0.0.1")
	Address string `mapstructure:"address" yaml:"address"`
	// Port is the TCP port to bind to
	Port int `mapstructure:"port" yaml:"port"`
	// Idle timeouts per read and write on a client connection
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// Accept throttling, zero rate disables it
	AcceptRate  float64 `mapstructure:"accept_rate" yaml:"accept_rate"`
	AcceptBurst int     `mapstructure:"accept_burst" yaml:"accept_burst"`
	// MetricsAddress serves /metrics when set (e.g., ":9100")
	MetricsAddress string `mapstructure:"metrics_address" yaml:"metrics_address"`
}

// ListenAddress joins Address and Port.
func (n NetworkConfig) ListenAddress() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(n.Port))
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	// Root directory every client path is resolved under
	Root string `mapstructure:"root" yaml:"root"`
	// Permissions for directories and files the server creates
	DirMode  uint32 `mapstructure:"dir_mode" yaml:"dir_mode"`
	FileMode uint32 `mapstructure:"file_mode" yaml:"file_mode"`
	// Maximum accepted write payload
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
	// How long an operation waits for a file lock
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
	// Watch logs changes made under the root by other processes
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// LogConfig controls where log output goes. An empty Filename keeps stderr.
type LogConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Config holds the complete configuration for a server
type Config struct {
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	// Validate network configuration
	if c.Network.Address == "" {
		return fmt.Errorf("network.address is required")
	}
	if net.ParseIP(c.Network.Address) == nil {
		return fmt.Errorf("invalid network.address: %s", c.Network.Address)
	}
	if c.Network.Port < 1 || c.Network.Port > 65535 {
		return fmt.Errorf("network.port must be in 1-65535, got %d", c.Network.Port)
	}
	if c.Network.ReadTimeout < 0 || c.Network.WriteTimeout < 0 {
		return fmt.Errorf("network timeouts must not be negative")
	}
	if c.Network.AcceptRate < 0 {
		return fmt.Errorf("network.accept_rate must not be negative")
	}

	// Validate storage configuration
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.Storage.DirMode == 0 || c.Storage.DirMode > 0777 {
		return fmt.Errorf("invalid storage.dir_mode: %o", c.Storage.DirMode)
	}
	if c.Storage.FileMode == 0 || c.Storage.FileMode > 0777 {
		return fmt.Errorf("invalid storage.file_mode: %o", c.Storage.FileMode)
	}
	if c.Storage.MaxFileSize < 0 || c.Storage.MaxFileSize > int64(^uint32(0)) {
		return fmt.Errorf("storage.max_file_size must be between 0 and %d", ^uint32(0))
	}
	if c.Storage.LockTimeout < 0 {
		return fmt.Errorf("storage.lock_timeout must not be negative")
	}

	return nil
}

// DirPerm and FilePerm return the configured modes as os.FileMode.
func (s StorageConfig) DirPerm() os.FileMode  { return os.FileMode(s.DirMode) }
func (s StorageConfig) FilePerm() os.FileMode { return os.FileMode(s.FileMode) }

// New returns a viper instance with defaults and environment support set
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	// Set default values
	v.SetDefault("network.address", "127.0.0.1")
	v.SetDefault("network.port", 8080)
	v.SetDefault("network.read_timeout", "30s")
	v.SetDefault("network.write_timeout", "30s")
	v.SetDefault("network.accept_rate", 0)
	v.SetDefault("network.accept_burst", 64)
	v.SetDefault("network.metrics_address", "")
	v.SetDefault("storage.root", "")
	v.SetDefault("storage.dir_mode", 0770)
	v.SetDefault("storage.file_mode", 0660)
	v.SetDefault("storage.max_file_size", int64(1<<30)) // 1GB
	v.SetDefault("storage.lock_timeout", "5s")
	v.SetDefault("storage.watch", false)
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.max_backups", 7)

	// Set up environment variable support
	v.SetEnvPrefix("FTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate the configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadConfig loads the configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(), configPath)
}

// Dump writes c as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
