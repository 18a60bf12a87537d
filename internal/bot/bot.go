package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/robalyx/spamguard/internal/guard"
	"github.com/robalyx/spamguard/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrNoHandler is returned when Start is called without a message handler.
	ErrNoHandler = errors.New("message handler is required")
	// ErrInvalidToken is returned when Discord rejects the bot token.
	ErrInvalidToken = errors.New("discord rejected the bot token")
)

// MessageHandler receives every guild message the bot can see.
type MessageHandler interface {
	Process(ctx context.Context, msg *guard.Message) guard.Action
}

// Bot owns the Discord gateway connection and feeds guild messages to a handler.
type Bot struct {
	client   bot.Client
	platform *Platform
	handler  MessageHandler
	logger   *zap.Logger
}

// New creates the Discord client. The gateway is not opened until Start.
func New(token string, requestTimeout time.Duration, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		logger: logger.Named("bot"),
	}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
				gateway.IntentGuildMembers,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagRoles, cache.FlagChannels),
		),
		bot.WithEventListenerFunc(b.onGuildMessageCreate),
		bot.WithEventListenerFunc(b.onReady),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord client: %w", err)
	}

	b.client = client
	b.platform = NewPlatform(client, requestTimeout)

	return b, nil
}

// Platform returns the REST adapter used for enforcement.
func (b *Bot) Platform() *Platform {
	return b.platform
}

// Start opens the gateway connection, retrying transient failures.
func (b *Bot) Start(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return ErrNoHandler
	}

	b.handler = handler

	b.logger.Info("Opening gateway connection")

	_, err := utils.WithRetry(ctx, func() (struct{}, error) {
		// The gateway reports auth failures asynchronously, so check the token over REST first
		if _, err := b.client.Rest().GetGatewayBot(rest.WithCtx(ctx)); err != nil {
			if isUnauthorized(err) {
				return struct{}{}, gatewayError(err)
			}

			b.logger.Warn("Failed to reach Discord, retrying", zap.Error(err))
			return struct{}{}, err
		}

		if err := b.client.OpenGateway(ctx); err != nil {
			b.logger.Warn("Failed to open gateway, retrying", zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, utils.GetGatewayRetryOptions())
	if err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	return nil
}

// gatewayError stops retrying once Discord has rejected the token.
func gatewayError(err error) error {
	if isUnauthorized(err) {
		return utils.Permanent(fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}

	return err
}

func isUnauthorized(err error) bool {
	var restErr *rest.Error
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}

	return restErr.Response.StatusCode == http.StatusUnauthorized
}

// Close gracefully shuts down the Discord gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.client.Close(ctx)
}

func (b *Bot) onReady(event *events.Ready) {
	b.logger.Info("Bot is ready",
		zap.String("username", event.User.Username),
		zap.Int("guilds", len(event.Guilds)))
}

// onGuildMessageCreate converts a gateway message and hands it to the handler.
// Direct messages never reach this listener since it only matches guild events.
func (b *Bot) onGuildMessageCreate(event *events.GuildMessageCreate) {
	if b.handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in message handler",
				zap.Any("panic", r),
				zap.Uint64("message_id", uint64(event.MessageID)))
		}
	}()

	admin := isAdmin(event.Client().Caches(), event.GuildID, event.Message)
	msg := newMessage(event.GuildID, event.Message, event.Client().ID(), admin)
	b.handler.Process(context.Background(), msg)
}
