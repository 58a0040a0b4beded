// internal/protocol/msgid.go
package protocol

// Operation names are the wire contract of the dispatch path. Never rename.

// =======================
// Common (any host)
// =======================
const (
	OpGetPlayerList      = "GET_PLAYER_LIST"
	OpGetPlayerCount     = "GET_PLAYER_COUNT"
	OpIsConnected        = "IS_CONNECTED"
	OpGetPluginType      = "GET_PLUGIN_TYPE"
	OpGetSystemStats     = "GET_SYSTEM_STATS"
	OpRunCommand         = "RUN_COMMAND"
	OpGetServerTimestamp = "GET_SERVER_TIMESTAMP"
)

// =======================
// Scheduled commands
// =======================
const (
	OpRunScheduledCommand    = "RUN_SCHEDULED_COMMAND"
	OpGetScheduledCommands   = "GET_SCHEDULED_COMMANDS"
	OpCancelScheduledCommand = "CANCEL_SCHEDULED_COMMAND"
)

// =======================
// Host information
// =======================
const (
	OpGetBannedPlayers      = "GET_BANNED_PLAYERS"
	OpGetMaxPlayers         = "GET_MAX_PLAYERS"
	OpGetMOTD               = "GET_MOTD"
	OpGetVersion            = "GET_VERSION"
	OpGetWhitelistedPlayers = "GET_WHITELISTED_PLAYERS"
)
