package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultWorkers     = 4

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "CLAIM_FILLER"
)

// Config holds all configuration for the claim form filler
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// WorkDirectory bounds every path a tool call may read or write.
	WorkDirectory string

	// Rule set configuration
	RulesPath    string // base rule set
	PatchPath    string // optional patch merged over the base
	TemplatePath string // overrides meta.pdf_template

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
	Workers     int   // Parallel fills in a batch
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:          ModeStdio,
		Host:          DefaultHost,
		Port:          DefaultPort,
		WorkDirectory: currentDir,
		Version:       "1.0.0",
		ServerName:    "claim-form-filler",
		LogLevel:      DefaultLogLevel,
		MaxFileSize:   DefaultMaxFileSize,
		Workers:       DefaultWorkers,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.WorkDirectory)
	viper.SetDefault("rules", cfg.RulesPath)
	viper.SetDefault("patch", cfg.PatchPath)
	viper.SetDefault("template", cfg.TemplatePath)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("workers", cfg.Workers)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.WorkDirectory, "Directory holding estimates, templates, rule sets and outputs")
	pflag.String("rules", cfg.RulesPath, "Default base rule set (JSON or YAML)")
	pflag.String("patch", cfg.PatchPath, "Default patch rule set merged over the base")
	pflag.String("template", cfg.TemplatePath, "Default BCIF template PDF (overrides meta.pdf_template)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Int("workers", cfg.Workers, "Maximum forms filled in parallel by a batch")
}

var viperKeys = []string{
	"mode", "host", "port", "dir", "rules", "patch", "template", "loglevel", "maxfilesize", "workers",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range viperKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nClaim Form Filler - A Model Context Protocol server that fills BCIF forms from estimates\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --dir=/srv/claims                            "+
			"# stdio mode, tool paths inside /srv/claims\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --rules=mapping.json --patch=ccc_one.yaml    "+
			"# default rule sets for every tool call\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --workers=8 --loglevel=debug                 # wider batches, verbose logs\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		for _, key := range viperKeys {
			fmt.Fprintf(os.Stderr, "  %s_%s\n", EnvPrefix, strings.ToUpper(key))
		}
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.WorkDirectory = viper.GetString("dir")
	cfg.RulesPath = viper.GetString("rules")
	cfg.PatchPath = viper.GetString("patch")
	cfg.TemplatePath = viper.GetString("template")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.Workers = viper.GetInt("workers")
}

// expandPaths makes every configured path absolute. Relative rule set and
// template paths are taken relative to the work directory.
func (c *Config) expandPaths() {
	if c.WorkDirectory != "" {
		if abs, err := filepath.Abs(c.WorkDirectory); err == nil {
			c.WorkDirectory = abs
		}
	}
	for _, p := range []*string{&c.RulesPath, &c.PatchPath, &c.TemplatePath} {
		if *p != "" && !filepath.IsAbs(*p) && c.WorkDirectory != "" {
			*p = filepath.Join(c.WorkDirectory, *p)
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port only matters in server mode
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.WorkDirectory == "" {
		return errors.New("work directory cannot be empty")
	}

	// Create the work directory if it doesn't exist
	if _, err := os.Stat(c.WorkDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.WorkDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create work directory %s: %w", c.WorkDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access work directory %s: %w", c.WorkDirectory, err)
	}

	for _, f := range []struct{ name, path string }{
		{"rules", c.RulesPath},
		{"patch", c.PatchPath},
		{"template", c.TemplatePath},
	} {
		if f.path == "" {
			continue
		}
		info, err := os.Stat(f.path)
		if err != nil {
			return fmt.Errorf("cannot access %s file %s: %w", f.name, f.path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s path %s is a directory", f.name, f.path)
		}
	}

	if c.PatchPath != "" && c.RulesPath == "" {
		return errors.New("patch rule set requires a base rule set")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// NewLogger returns a structured logger at the configured level writing to w.
// In stdio mode w must not be stdout, which carries the MCP protocol.
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	return &log.Logger{
		Level:  log.ParseLevel(c.LogLevel),
		Writer: &log.IOWriter{Writer: w},
	}
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, WorkDirectory: %s, Rules: %s, Patch: %s, "+
		"Template: %s, LogLevel: %s, MaxFileSize: %d, Workers: %d}",
		c.Mode, c.Host, c.Port, c.WorkDirectory, c.RulesPath, c.PatchPath,
		c.TemplatePath, c.LogLevel, c.MaxFileSize, c.Workers)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
