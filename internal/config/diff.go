package config

import (
	"reflect"
	"strings"

	logx "trackcast/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.TrackedPlayers, newCfg.TrackedPlayers) {
		changed = append(changed, "tracked")
		attrs = append(attrs, logx.Int("tracked.count", len(newCfg.TrackedPlayers)))
	}

	if oldCfg.Autobroadcast != newCfg.Autobroadcast {
		changed = append(changed, "autobroadcast")
		attrs = append(attrs,
			logx.Bool("autobroadcast.enabled", newCfg.Autobroadcast.Enabled),
			logx.Int("autobroadcast.interval_seconds", newCfg.Autobroadcast.IntervalSeconds),
		)
	}

	if oldCfg.BroadcastFormat != newCfg.BroadcastFormat ||
		oldCfg.PlayerListFormat != newCfg.PlayerListFormat ||
		oldCfg.ShowY() != newCfg.ShowY() ||
		oldCfg.AsList() != newCfg.AsList() {
		changed = append(changed, "templates")
		attrs = append(attrs,
			logx.Bool("templates.show_y_level", newCfg.ShowY()),
			logx.Bool("templates.broadcast_list", newCfg.AsList()),
		)
	}

	if strings.TrimSpace(oldCfg.Server.Listen) != strings.TrimSpace(newCfg.Server.Listen) ||
		!reflect.DeepEqual(oldCfg.Server.Operators, newCfg.Server.Operators) ||
		oldCfg.Server.Console != newCfg.Server.Console ||
		oldCfg.Server.SpawnWorld != newCfg.Server.SpawnWorld {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.listen", strings.TrimSpace(newCfg.Server.Listen)),
			logx.Int("server.operator_count", len(newCfg.Server.Operators)),
			logx.Bool("server.console", newCfg.Server.Console),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// never log token
	if oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.BroadcastChat) != strings.TrimSpace(newCfg.Telegram.BroadcastChat) ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.broadcast_chat_set", strings.TrimSpace(newCfg.Telegram.BroadcastChat) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}

	return changed, attrs
}

// RestartOnly reports sections whose changes need a process restart.
func RestartOnly(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "server", "telegram", "storage":
			out = append(out, s)
		}
	}
	return out
}
