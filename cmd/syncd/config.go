package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is syncd's process configuration, following the
// Default()/Normalize()/Load(path) shape the examples pack's kv-engine
// config package uses: unmarshal over a populated default so a partial
// or absent config file still yields a runnable config.
type Config struct {
	ListenAddr    string `json:"listen_addr"`
	RedisAddr     string `json:"redis_addr"`
	KeyPrefix     string `json:"key_prefix"`
	ChannelPrefix string `json:"channel_prefix"`
	LogLevel      string `json:"log_level"`
}

// Default returns syncd's baseline configuration.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		RedisAddr:     "localhost:6379",
		KeyPrefix:     "crdtengine",
		ChannelPrefix: "crdtengine:sync",
		LogLevel:      "info",
	}
}

// Normalize fills zero or invalid fields from Default.
func (c *Config) Normalize() {
	d := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.RedisAddr == "" {
		c.RedisAddr = d.RedisAddr
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = d.ChannelPrefix
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = d.LogLevel
	}
}

// Load reads a JSON config file at path, falling back to Default (fully
// normalized) if the file is missing or malformed.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		cfg.Normalize()
		return cfg, nil
	}

	if err := json.Unmarshal(b, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "syncd: invalid config file, using defaults:", err)
		cfg = Default()
	}

	cfg.Normalize()
	return cfg, nil
}
