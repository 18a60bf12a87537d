package guard

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// BulkDeleteLimit is the most message ids Discord accepts in one bulk delete.
const BulkDeleteLimit = 100

// Platform is the chat platform the enforcer acts on.
type Platform interface {
	// Ban bans a member from a guild.
	Ban(ctx context.Context, guildID, userID snowflake.ID, reason string, deleteWindow time.Duration) error
	// BulkDelete deletes up to BulkDeleteLimit messages from one channel.
	BulkDelete(ctx context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) error
	// Reply answers a message with an embed.
	Reply(ctx context.Context, ref MessageRef, embed Embed) error
	// Send posts an embed to a channel.
	Send(ctx context.Context, channelID snowflake.ID, embed Embed) error
}

// Embed is a platform neutral rich message.
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
}

// EmbedField is a named section of an embed.
type EmbedField struct {
	Name  string
	Value string
}

// Incident describes one enforcement decision and how it went.
type Incident struct {
	GuildID      snowflake.ID
	UserID       snowflake.ID
	ChannelID    snowflake.ID
	MessageID    snowflake.ID
	Action       Action
	Reason       string
	Content      string
	MessageCount int
	Failed       bool
	Error        string
	CreatedAt    time.Time
}

// Recorder keeps a history of incidents.
type Recorder interface {
	Record(ctx context.Context, incident *Incident) error
}
