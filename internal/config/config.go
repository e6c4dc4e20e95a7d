package config

import "time"

// Config holds client configuration values.
type Config struct {
	ServerURL        string        `mapstructure:"server_url" yaml:"server_url"`
	WSURL            string        `mapstructure:"ws_url" yaml:"ws_url"`
	TokenPath        string        `mapstructure:"token_path" yaml:"token_path"`
	CachePath        string        `mapstructure:"cache_path" yaml:"cache_path"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile          string        `mapstructure:"log_file" yaml:"log_file"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial" yaml:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max"`
	TypingIdle       time.Duration `mapstructure:"typing_idle" yaml:"typing_idle"`
	TypingTTL        time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	MarkReadDwell    time.Duration `mapstructure:"mark_read_dwell" yaml:"mark_read_dwell"`
	HistoryPageSize  int           `mapstructure:"history_page_size" yaml:"history_page_size"`
	PreviewRunes     int           `mapstructure:"preview_runes" yaml:"preview_runes"`
	RefreshTimeout   time.Duration `mapstructure:"refresh_timeout" yaml:"refresh_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:        "http://localhost:8080",
		WSURL:            "ws://localhost:8080/ws",
		TokenPath:        "wirechat-token",
		CachePath:        "wirechat-cache.db",
		LogLevel:         "info",
		ReconnectInitial: 500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		TypingIdle:       2 * time.Second,
		TypingTTL:        5 * time.Second,
		MarkReadDwell:    time.Second,
		HistoryPageSize:  50,
		PreviewRunes:     80,
		RefreshTimeout:   10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.WSURL != "" {
		c.WSURL = other.WSURL
	}
	if other.TokenPath != "" {
		c.TokenPath = other.TokenPath
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
	if other.ReconnectInitial != 0 {
		c.ReconnectInitial = other.ReconnectInitial
	}
	if other.ReconnectMax != 0 {
		c.ReconnectMax = other.ReconnectMax
	}
	if other.TypingIdle != 0 {
		c.TypingIdle = other.TypingIdle
	}
	if other.TypingTTL != 0 {
		c.TypingTTL = other.TypingTTL
	}
	if other.MarkReadDwell != 0 {
		c.MarkReadDwell = other.MarkReadDwell
	}
	if other.HistoryPageSize != 0 {
		c.HistoryPageSize = other.HistoryPageSize
	}
	if other.PreviewRunes != 0 {
		c.PreviewRunes = other.PreviewRunes
	}
	if other.RefreshTimeout != 0 {
		c.RefreshTimeout = other.RefreshTimeout
	}
}
