package bot

import (
	"time"

	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/spamguard/internal/guard"
)

// EmbedColor is the accent color of every moderation embed.
const EmbedColor = 0xB3002D

type embedFooter struct {
	Text    string
	IconURL string
}

// newMessage converts a gateway message into the guard's view of it.
func newMessage(guildID snowflake.ID, msg discord.Message, selfID snowflake.ID, isAdmin bool) *guard.Message {
	return &guard.Message{
		GuildID:   guildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		AuthorID:  msg.Author.ID,
		Content:   msg.Content,
		IsSelf:    msg.Author.ID == selfID,
		IsAdmin:   isAdmin,
	}
}

// isAdmin reports whether the author holds the administrator permission in the guild.
// Messages without member data (webhooks) are never treated as admin.
func isAdmin(caches cache.Caches, guildID snowflake.ID, msg discord.Message) bool {
	if msg.Member == nil {
		return false
	}

	member := *msg.Member
	member.GuildID = guildID
	member.User = msg.Author

	return caches.MemberPermissions(member).Has(discord.PermissionAdministrator)
}

// buildEmbed renders a guard embed with the bot's color, footer and timestamp.
func buildEmbed(embed guard.Embed, footer embedFooter, now time.Time) discord.Embed {
	builder := discord.NewEmbedBuilder().
		SetTitle(embed.Title).
		SetDescription(embed.Description).
		SetColor(EmbedColor).
		SetTimestamp(now)

	for _, field := range embed.Fields {
		builder.AddField(field.Name, field.Value, false)
	}

	if footer.Text != "" {
		builder.SetFooter(footer.Text, footer.IconURL)
	}

	return builder.Build()
}
