package guard

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

const (
	// ReasonSpammedText explains a ban caused by a content group.
	ReasonSpammedText = "Spammed text"
	// ReasonDiscordLinks explains a ban caused by the invite link counter.
	ReasonDiscordLinks = "Discord links"

	// maxFieldLength is Discord's limit for embed field values.
	maxFieldLength = 1024
)

// warnEmbed asks the author to stop before a ban happens.
func warnEmbed(userID snowflake.ID) Embed {
	return Embed{
		Title: "⚠️ Stop Sending Messages",
		Description: fmt.Sprintf(
			"Attention <@%s>, you are sending too many messages! If you send any more, you may be banned.",
			userID,
		),
	}
}

// banEmbed is posted to the moderation channel after a successful ban.
func banEmbed(userID snowflake.ID, worst bucketSummary) Embed {
	fields := []EmbedField{{Name: "Reason", Value: worst.reason()}}
	if worst.class == ClassContent {
		fields = append(fields, EmbedField{Name: "Text", Value: truncate(worst.content, maxFieldLength)})
	}

	return Embed{
		Title:       "🔨 User Banned",
		Description: fmt.Sprintf("<@%s> has been banned for spamming.", userID),
		Fields:      fields,
	}
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n-1]) + "…"
}
