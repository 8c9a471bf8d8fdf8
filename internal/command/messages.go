package command

const (
	msgNoPermission  = "§cYou don't have permission."
	msgInternalError = "§cAn internal error occurred."
	msgNotFound      = "§cPlayer not found."
	msgAlready       = "§ePlayer already tracked."
	msgNotTracked    = "§cPlayer is not tracked."
	msgRemoved       = "§aRemoved player from tracked players."
	msgNoneTracked   = "§eNo players tracked."
	msgTrackedPrefix = "§bTracked players: §f"
	msgBroadcasted   = "§aBroadcasted tracked player locations."
	msgAutoOn        = "§aAutobroadcast enabled."
	msgAutoOff       = "§cAutobroadcast disabled."
	msgInvalidIntv   = "§cInvalid interval."
	msgScheduleFail  = "§cCould not schedule autobroadcast: "
	msgNotSaved      = "§eWarning: change applied but not saved: "

	usageAdd    = "§cUsage: /track add <player>"
	usageRemove = "§cUsage: /track remove <player>"
	usageAuto   = "§eUsage: /track autobroadcast <on|off|interval> [seconds]"
)

var helpLines = []string{
	"§6/track add <player> §7- Add player to tracked group",
	"§6/track remove <player> §7- Remove player from tracked group",
	"§6/track list §7- List tracked players",
	"§6/track broadcast §7- Broadcast locations",
	"§6/track autobroadcast <on|off|interval> [seconds] §7- Autobroadcast control",
}
