package config

import (
	"encoding/json"

	"trackcast/internal/autobroadcast"
)

// Config is the whole persisted document. Top-level key names match the
// long-standing trackedPlayers layout so existing files keep working.
type Config struct {
	TrackedPlayers []string            `json:"trackedPlayers" yaml:"trackedPlayers"`
	Autobroadcast  AutobroadcastConfig `json:"autobroadcast" yaml:"autobroadcast"`

	BroadcastFormat  string `json:"broadcastFormat" yaml:"broadcastFormat"`
	PlayerListFormat string `json:"playerListFormat" yaml:"playerListFormat"`
	// Pointers so an omitted key defaults to true.
	ShowYLevel    *bool `json:"show_y_level,omitempty" yaml:"show_y_level,omitempty"`
	BroadcastList *bool `json:"broadcastList,omitempty" yaml:"broadcastList,omitempty"`

	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Storage  *StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
}

type AutobroadcastConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalSeconds int  `json:"interval_seconds" yaml:"interval_seconds"`
}

// ServerConfig controls the built-in line-protocol game host.
type ServerConfig struct {
	Listen string `json:"listen" yaml:"listen"`
	// Operators may run /track in game (case-insensitive names).
	Operators []string `json:"operators" yaml:"operators"`
	// Console enables the stdin console.
	Console bool `json:"console" yaml:"console"`
	// SpawnWorld is where new sessions start.
	SpawnWorld string `json:"spawn_world,omitempty" yaml:"spawn_world,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Console bool        `json:"console" yaml:"console"`
	File    LoggingFile `json:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// TelegramConfig enables the optional operator bot and broadcast mirror.
type TelegramConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Token        string  `json:"token" yaml:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids" yaml:"owner_user_ids"`
	// BroadcastChat receives a copy of every broadcast (chat id, empty disables).
	BroadcastChat string `json:"broadcast_chat" yaml:"broadcast_chat"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout" yaml:"poll_timeout"`
	// RatePerSec caps mirrored broadcasts; extra messages are dropped.
	RatePerSec int `json:"rate_per_sec" yaml:"rate_per_sec"`
}

// StorageConfig controls the audit log.
//
// Example:
//
//	storage: { driver: file, path: ./data/trackcast }
type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	Path        string `json:"path" yaml:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

const (
	DefaultBroadcastFormat  = "[Tracked]\n%players%"
	DefaultPlayerListFormat = "§a- %name%§r at §e%world%§r: §b%x%§r, %y%, %z%"
	DefaultListen           = "127.0.0.1:25575"
	DefaultSpawnWorld       = "world"
)

// Default is the document written when none exists.
func Default() *Config {
	cfg := &Config{
		Autobroadcast: AutobroadcastConfig{Enabled: false, IntervalSeconds: autobroadcast.DefaultIntervalSeconds},
		Server:        ServerConfig{Listen: DefaultListen, Console: true, SpawnWorld: DefaultSpawnWorld},
		Logging:       LoggingConfig{Level: "INFO", Console: true},
		Telegram:      TelegramConfig{PollTimeout: "10s", RatePerSec: 1},
		Storage:       &StorageConfig{Driver: "file", Path: "./data/trackcast"},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills defaults and enforces invariants in place. It is applied
// to every parsed or updated document so equal documents hash equally.
func (c *Config) Normalize() {
	if c.TrackedPlayers == nil {
		c.TrackedPlayers = []string{}
	}
	switch {
	case c.Autobroadcast.IntervalSeconds == 0:
		c.Autobroadcast.IntervalSeconds = autobroadcast.DefaultIntervalSeconds
	default:
		c.Autobroadcast.IntervalSeconds = autobroadcast.ClampInterval(c.Autobroadcast.IntervalSeconds)
	}
	if c.BroadcastFormat == "" {
		c.BroadcastFormat = DefaultBroadcastFormat
	}
	if c.PlayerListFormat == "" {
		c.PlayerListFormat = DefaultPlayerListFormat
	}
	if c.ShowYLevel == nil {
		c.ShowYLevel = boolPtr(true)
	}
	if c.BroadcastList == nil {
		c.BroadcastList = boolPtr(true)
	}
	if c.Server.Operators == nil {
		c.Server.Operators = []string{}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.SpawnWorld == "" {
		c.Server.SpawnWorld = DefaultSpawnWorld
	}
	if c.Telegram.OwnerUserIDs == nil {
		c.Telegram.OwnerUserIDs = []int64{}
	}
}

// ShowY reports show_y_level (default true).
func (c *Config) ShowY() bool { return c.ShowYLevel == nil || *c.ShowYLevel }

// AsList reports broadcastList (default true).
func (c *Config) AsList() bool { return c.BroadcastList == nil || *c.BroadcastList }

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	var out Config
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *c
		return &cp
	}
	return &out
}

func boolPtr(v bool) *bool { return &v }
