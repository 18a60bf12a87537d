package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/spamguard/internal/bot"
	"github.com/robalyx/spamguard/internal/guard"
	"github.com/robalyx/spamguard/internal/journal"
	"github.com/robalyx/spamguard/internal/setup"
	"github.com/robalyx/spamguard/internal/setup/config"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"

	// shutdownTimeout bounds how long pending enforcement may take on exit.
	shutdownTimeout = 30 * time.Second
)

var ErrJournalDisabled = errors.New("incident journal is disabled in common.toml")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:   "spamguard",
		Usage:  "Ban members who flood Discord servers with repeated messages",
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:  "incidents",
				Usage: "List recent warnings and bans from the incident journal",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Value:   20,
						Usage:   "Number of incidents to show",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print incidents as JSON",
					},
				},
				Action: listIncidents,
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runBot connects to Discord and enforces until interrupted.
func runBot(ctx context.Context, _ *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, BotLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Enforcement may still be running when ctx is cancelled
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.Cleanup(cleanupCtx)
	}()

	discordCfg := &app.Config.Bot.Discord
	if err := discordCfg.Validate(); err != nil {
		return err
	}

	guardCfg, err := app.Config.Bot.Guard.ToGuardConfig()
	if err != nil {
		return err
	}

	discordBot, err := bot.New(discordCfg.Token, discordCfg.RequestTimeoutDuration(), app.Logger)
	if err != nil {
		return err
	}

	opts := []guard.Option{guard.WithMetrics(guard.NewMetrics(app.Registry))}
	if app.Journal != nil {
		opts = append(opts, guard.WithRecorder(app.Journal))
	}

	enforcer := guard.NewEnforcer(
		guardCfg,
		guard.NewStore(guardCfg.Retention, guardCfg.MaxGroups),
		discordBot.Platform(),
		app.Logger.Named("guard"),
		opts...,
	)

	if interval := app.Config.Bot.Guard.SweepInterval(); interval > 0 {
		go enforcer.RunJanitor(ctx, interval)
	}

	if err := discordBot.Start(ctx, enforcer); err != nil {
		return err
	}

	app.Logger.Info("Spam guard started",
		zap.Int("warn_limit", guardCfg.WarnLimit),
		zap.Int("ban_limit", guardCfg.BanLimit),
		zap.Duration("retention", guardCfg.Retention))
	log.Println("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")

	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	discordBot.Close(closeCtx)
	enforcer.Wait()

	return nil
}

// listIncidents prints the newest journal entries.
func listIncidents(ctx context.Context, c *cli.Command) error {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if !cfg.Common.Journal.Enabled {
		return ErrJournalDisabled
	}

	j, err := journal.Open(cfg.Common.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(ctx, int(c.Int("limit")))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(os.Stdout, entries)
	}

	printTable(os.Stdout, entries)

	return nil
}

type incidentJSON struct {
	ID           string    `json:"id"`
	GuildID      string    `json:"guild_id"`
	UserID       string    `json:"user_id"`
	ChannelID    string    `json:"channel_id"`
	MessageID    string    `json:"message_id"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason,omitempty"`
	Content      string    `json:"content,omitempty"`
	MessageCount int       `json:"message_count"`
	Failed       bool      `json:"failed"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func printJSON(w io.Writer, entries []*journal.Entry) error {
	out := make([]incidentJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, incidentJSON{
			ID:           e.ID,
			GuildID:      e.GuildID.String(),
			UserID:       e.UserID.String(),
			ChannelID:    e.ChannelID.String(),
			MessageID:    e.MessageID.String(),
			Action:       e.Action.String(),
			Reason:       e.Reason,
			Content:      e.Content,
			MessageCount: e.MessageCount,
			Failed:       e.Failed,
			Error:        e.Error,
			CreatedAt:    e.CreatedAt,
		})
	}

	data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode incidents: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

func printTable(w io.Writer, entries []*journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No incidents recorded.")
		return
	}

	for _, e := range entries {
		status := "ok"
		if e.Failed {
			status = "failed: " + e.Error
		}

		fmt.Fprintf(w, "%s  %-4s  guild=%s user=%s messages=%d reason=%q  %s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Action, e.GuildID, e.UserID,
			e.MessageCount, e.Reason, status)
	}
}
