package guard

// Action is the moderation response chosen for a message.
//
//go:generate go tool enumer -type=Action -trimprefix=Action
type Action int

const (
	// ActionNone leaves the author alone.
	ActionNone Action = iota
	// ActionWarn replies to the message with a warning.
	ActionWarn
	// ActionBan bans the author and deletes every tracked message.
	ActionBan
)
