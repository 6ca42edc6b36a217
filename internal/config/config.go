package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"powengine/pkg/pow/factory"
)

// Environment variables recognised by Apply
const (
	EnvDriver         = "POW_DRIVER"
	EnvThreads        = "POW_THREADS"
	EnvOpenCLPlatform = "POW_OPENCL_PLATFORM"
	EnvOpenCLDevice   = "POW_OPENCL_DEVICE"
	EnvVerbose        = "POW_VERBOSE"
	EnvLogFile        = "POW_LOG_FILE"
	EnvConfig         = "POW_CONFIG"
)

// LoadEnv loads the .env file of the project root into the process
// environment. Variables already set are not overridden.
func LoadEnv() error {
	envPath := filepath.Join(findProjectRoot(), ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	return godotenv.Load(envPath)
}

// Load reads the file named by POW_CONFIG, or the first of the factory's
// config paths, and overlays the environment on it
func Load() (*factory.Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path := os.Getenv(EnvConfig)
	if path == "" {
		path = factory.FindConfig()
	}

	cfg := factory.DefaultConfig()
	if path != "" {
		loaded, err := factory.LoadConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		cfg = loaded
	}

	if err := Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply overrides cfg with the POW_* environment variables that are set
func Apply(cfg *factory.Config) error {
	if driver := os.Getenv(EnvDriver); driver != "" {
		cfg.PreferredOrder = strings.Split(driver, ",")
		for i := range cfg.PreferredOrder {
			cfg.PreferredOrder[i] = strings.TrimSpace(cfg.PreferredOrder[i])
		}
	}

	if v := os.Getenv(EnvThreads); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvThreads, v, err)
		}
		cfg.Threads = uint32(n)
	}

	if v := os.Getenv(EnvOpenCLPlatform); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvOpenCLPlatform, v, err)
		}
		cfg.OpenCLPlatform = uint16(n)
	}

	if v := os.Getenv(EnvOpenCLDevice); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvOpenCLDevice, v, err)
		}
		cfg.OpenCLDevice = uint16(n)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvVerbose, v, err)
		}
		cfg.Verbose = verbose
	}

	if logFile := os.Getenv(EnvLogFile); logFile != "" {
		cfg.LogFile = logFile
	}

	return nil
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	// First check CWD for .env file
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	// Then walk up looking for go.mod
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
