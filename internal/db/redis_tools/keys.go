package redis_tools

const (
	KeyScheduledDefault = "bridge:scheduled"
)

// KeyScheduled returns the hash holding scheduled commands, id -> JSON entry.
func KeyScheduled(key string) string {
	if key == "" {
		return KeyScheduledDefault
	}
	return key
}
