package factory

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config contains configuration for driver selection
type Config struct {
	// Preferred driver order (highest priority first)
	PreferredOrder []string `yaml:"preferred_order" json:"preferred_order"`

	// OpenCL device selection
	OpenCLPlatform uint16 `yaml:"opencl_platform" json:"opencl_platform"`
	OpenCLDevice   uint16 `yaml:"opencl_device" json:"opencl_device"`

	// Search parallelism, 0 uses the driver recommendation
	Threads uint32 `yaml:"threads" json:"threads"`

	// Allow fallback to the next driver when one cannot be created
	EnableFallback bool `yaml:"enable_fallback" json:"enable_fallback"`

	// Logging and metrics
	Verbose bool   `yaml:"verbose" json:"verbose"`
	LogFile string `yaml:"log_file" json:"log_file"`
	Metrics bool   `yaml:"metrics" json:"metrics"`
}

// DefaultConfig prefers a GPU and falls back to the host
func DefaultConfig() *Config {
	return &Config{
		PreferredOrder: []string{
			"opencl", // 1. GPU table in device memory
			"cpu",    // 2. Host threads
		},
		EnableFallback: true,
	}
}

// LoadConfigFromFile loads configuration from a YAML or JSON file.
// A missing file yields the defaults.
func LoadConfigFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// JSON documents are valid YAML
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfigToFile saves configuration as YAML
func SaveConfigToFile(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// ConfigPaths returns common configuration file paths
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".powengine", "config.yaml"),
		"/etc/powengine/config.yaml",
		"./powengine.yaml",
		"./config.yaml",
	}
}

// FindConfig returns the first existing path of ConfigPaths, or "" when none exists
func FindConfig() string {
	for _, path := range ConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
