package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"yaftp/internal/protocol"
	"yaftp/internal/transport"
)

var (
	ErrInvalidChunkSize   = errors.New("chunk size must be between 1 and the maximum datagram payload")
	ErrInvalidTimeout     = errors.New("timeout must be greater than 0")
	ErrInvalidMaxRetries  = errors.New("max retries must be greater than 0")
	ErrInvalidLinger      = errors.New("linger must not be negative")
	ErrInvalidParts       = errors.New("parts must be greater than 0")
	ErrInvalidLogLevel    = errors.New("unknown log level")
	ErrMissingServerAddr  = errors.New("server address must be set")
	ErrMissingDirectory   = errors.New("directory must be set")
	ErrMissingCatalogFile = errors.New("catalog file must be set")
)

// DefaultPort is the UDP port the server listens on unless told otherwise
const DefaultPort = 65432

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Client   ClientConfig   `mapstructure:"client"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds settings for the serve command
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	TCPAddr     string `mapstructure:"tcp_addr"`
	Dir         string `mapstructure:"dir"`
	CatalogFile string `mapstructure:"catalog_file"`
	// Concurrent serves each request from its own socket and goroutine
	Concurrent bool `mapstructure:"concurrent"`
}

// ClientConfig holds settings for list, get and enqueue
type ClientConfig struct {
	Server      string `mapstructure:"server"`
	TCPServer   string `mapstructure:"tcp_server"`
	DownloadDir string `mapstructure:"download_dir"`
	InputFile   string `mapstructure:"input_file"`
	Parts       int    `mapstructure:"parts"`
}

// ProtocolConfig holds the reliable transfer tuning knobs
type ProtocolConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	SenderMaxRetries int           `mapstructure:"sender_max_retries"`
	Linger           time.Duration `mapstructure:"linger"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        fmt.Sprintf(":%d", DefaultPort),
			TCPAddr:     fmt.Sprintf(":%d", DefaultPort),
			Dir:         ".",
			CatalogFile: "files.txt",
		},
		Client: ClientConfig{
			Server:      fmt.Sprintf("127.0.0.1:%d", DefaultPort),
			TCPServer:   fmt.Sprintf("127.0.0.1:%d", DefaultPort),
			DownloadDir: "downloads",
			InputFile:   "input.txt",
			Parts:       4,
		},
		Protocol: ProtocolConfig{
			ChunkSize:        protocol.DefaultChunkSize,
			Timeout:          2 * time.Second,
			MaxRetries:       5,
			SenderMaxRetries: 10,
			Linger:           2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Protocol.ChunkSize <= 0 || c.Protocol.ChunkSize > protocol.MaxChunkSize {
		return ErrInvalidChunkSize
	}
	if c.Protocol.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Protocol.MaxRetries <= 0 || c.Protocol.SenderMaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}
	if c.Protocol.Linger < 0 {
		return ErrInvalidLinger
	}
	if c.Client.Parts <= 0 {
		return ErrInvalidParts
	}
	if c.Server.Addr == "" || c.Client.Server == "" {
		return ErrMissingServerAddr
	}
	if c.Server.Dir == "" || c.Client.DownloadDir == "" {
		return ErrMissingDirectory
	}
	if c.Server.CatalogFile == "" {
		return ErrMissingCatalogFile
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	return nil
}

// SetDefaults registers every key with v so that environment variables are
// seen by Unmarshal even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.tcp_addr", d.Server.TCPAddr)
	v.SetDefault("server.dir", d.Server.Dir)
	v.SetDefault("server.catalog_file", d.Server.CatalogFile)
	v.SetDefault("server.concurrent", d.Server.Concurrent)
	v.SetDefault("client.server", d.Client.Server)
	v.SetDefault("client.tcp_server", d.Client.TCPServer)
	v.SetDefault("client.download_dir", d.Client.DownloadDir)
	v.SetDefault("client.input_file", d.Client.InputFile)
	v.SetDefault("client.parts", d.Client.Parts)
	v.SetDefault("protocol.chunk_size", d.Protocol.ChunkSize)
	v.SetDefault("protocol.timeout", d.Protocol.Timeout)
	v.SetDefault("protocol.max_retries", d.Protocol.MaxRetries)
	v.SetDefault("protocol.sender_max_retries", d.Protocol.SenderMaxRetries)
	v.SetDefault("protocol.linger", d.Protocol.Linger)
	v.SetDefault("log.level", d.Log.Level)
}

// Load overlays whatever v knows about (config file, env, bound flags) on
// top of the defaults and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReceiverOptions returns the transfer options used when downloading
func (c *Config) ReceiverOptions() transport.Options {
	return transport.Options{
		ChunkSize:  c.Protocol.ChunkSize,
		Timeout:    c.Protocol.Timeout,
		MaxRetries: c.Protocol.MaxRetries,
		Linger:     c.Protocol.Linger,
	}
}

// SenderOptions returns the transfer options used when serving a file
func (c *Config) SenderOptions() transport.Options {
	return transport.Options{
		ChunkSize:  c.Protocol.ChunkSize,
		Timeout:    c.Protocol.Timeout,
		MaxRetries: c.Protocol.SenderMaxRetries,
	}
}
