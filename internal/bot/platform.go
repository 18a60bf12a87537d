package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/spamguard/internal/guard"
)

// Platform carries out enforcement through the Discord REST API.
type Platform struct {
	client  bot.Client
	timeout time.Duration
	now     func() time.Time
}

// NewPlatform creates a platform that bounds every request by timeout.
func NewPlatform(client bot.Client, timeout time.Duration) *Platform {
	return &Platform{
		client:  client,
		timeout: timeout,
		now:     time.Now,
	}
}

// Ban implements guard.Platform.
func (p *Platform) Ban(
	ctx context.Context, guildID, userID snowflake.ID, reason string, deleteWindow time.Duration,
) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	err := p.client.Rest().AddBan(guildID, userID, deleteWindow, rest.WithReason(reason), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to ban user %s: %w", userID, err)
	}

	return nil
}

// BulkDelete implements guard.Platform.
// Discord rejects bulk deletes of a single message, so those use a plain delete.
func (p *Platform) BulkDelete(ctx context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	switch len(messageIDs) {
	case 0:
		return nil
	case 1:
		if err := p.client.Rest().DeleteMessage(channelID, messageIDs[0], rest.WithCtx(ctx)); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", messageIDs[0], err)
		}
	default:
		if err := p.client.Rest().BulkDeleteMessages(channelID, messageIDs, rest.WithCtx(ctx)); err != nil {
			return fmt.Errorf("failed to bulk delete %d messages: %w", len(messageIDs), err)
		}
	}

	return nil
}

// Reply implements guard.Platform.
func (p *Platform) Reply(ctx context.Context, ref guard.MessageRef, embed guard.Embed) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	msg := discord.NewMessageCreateBuilder().
		SetEmbeds(buildEmbed(embed, p.footer(), p.now())).
		SetMessageReferenceByID(ref.MessageID).
		Build()

	if _, err := p.client.Rest().CreateMessage(ref.ChannelID, msg, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to reply to message %s: %w", ref.MessageID, err)
	}

	return nil
}

// Send implements guard.Platform.
func (p *Platform) Send(ctx context.Context, channelID snowflake.ID, embed guard.Embed) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	msg := discord.NewMessageCreateBuilder().
		SetEmbeds(buildEmbed(embed, p.footer(), p.now())).
		Build()

	if _, err := p.client.Rest().CreateMessage(channelID, msg, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}

	return nil
}

// footer credits the bot account on every embed it posts.
func (p *Platform) footer() embedFooter {
	self, ok := p.client.Caches().SelfUser()
	if !ok {
		return embedFooter{}
	}

	return embedFooter{
		Text:    self.Username,
		IconURL: self.EffectiveAvatarURL(),
	}
}

func (p *Platform) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, p.timeout)
}
