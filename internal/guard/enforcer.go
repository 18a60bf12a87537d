package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// bucketSummary is a copy of the bucket that explains a ban.
type bucketSummary struct {
	class   Class
	content string
	count   int
}

func (b bucketSummary) reason() string {
	if b.class == ClassLink {
		return ReasonDiscordLinks
	}

	return ReasonSpammedText
}

func summarize(bucket Bucket) bucketSummary {
	switch b := bucket.(type) {
	case *ContentGroup:
		return bucketSummary{class: ClassContent, content: b.Content, count: b.Hits}
	case *LinkCounter:
		return bucketSummary{class: ClassLink, count: b.Hits}
	default:
		return bucketSummary{}
	}
}

// banPlan is everything needed to carry out a ban after the user's record is gone.
type banPlan struct {
	worst bucketSummary
	refs  []MessageRef
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

// WithRecorder stores every incident in the given recorder.
func WithRecorder(recorder Recorder) Option {
	return func(e *Enforcer) { e.recorder = recorder }
}

// WithMetrics reports to the given metrics instead of an unregistered set.
func WithMetrics(metrics *Metrics) Option {
	return func(e *Enforcer) { e.metrics = metrics }
}

// Enforcer turns tracked scores into warnings and bans.
// Platform calls run in the background so a slow ban never blocks ingestion.
type Enforcer struct {
	cfg        *Config
	store      *Store
	classifier *Classifier
	platform   Platform
	recorder   Recorder
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *zap.Logger
	now        func() time.Time
	cleanupSem *semaphore.Weighted
	wg         conc.WaitGroup
}

// NewEnforcer creates an enforcer acting on the given store and platform.
func NewEnforcer(cfg *Config, store *Store, platform Platform, logger *zap.Logger, opts ...Option) *Enforcer {
	e := &Enforcer{
		cfg:        cfg,
		store:      store,
		classifier: NewClassifier(cfg.MinLength, cfg.TrackLinks),
		platform:   platform,
		tracer:     otel.Tracer("github.com/robalyx/spamguard/internal/guard"),
		logger:     logger,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}

	e.cleanupSem = semaphore.NewWeighted(int64(max(cfg.CleanupConcurrency, 1)))

	return e
}

// Process handles one guild message and returns the action taken.
// Side effects of the action are started but not awaited.
func (e *Enforcer) Process(ctx context.Context, msg *Message) Action {
	class := e.classifier.Classify(msg)
	e.metrics.Tracked.WithLabelValues(class.String()).Inc()

	var (
		action = ActionNone
		plan   banPlan
	)

	e.store.Observe(msg, class, e.now(), func(user *TrackedUser, updated Bucket) bool {
		if user == nil {
			return false
		}

		action = e.decide(user, updated)
		if action != ActionBan {
			return false
		}

		plan = banPlan{
			worst: summarize(user.Worst()),
			refs:  user.AllRefs(),
		}

		return true
	})

	e.metrics.TrackedUsers.Set(float64(e.store.Len()))

	if action == ActionNone {
		return action
	}

	e.metrics.Actions.WithLabelValues(action.String()).Inc()

	// Enforcement outlives the event that triggered it
	ctx = context.WithoutCancel(ctx)
	m := *msg
	msg = &m

	switch action {
	case ActionWarn:
		e.wg.Go(func() { e.warn(ctx, msg) })
	case ActionBan:
		e.logger.Info("Banning user for spam",
			zap.Uint64("guild_id", uint64(msg.GuildID)),
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.String("reason", plan.worst.reason()),
			zap.Int("count", plan.worst.count),
			zap.Int("messages", len(plan.refs)))
		e.wg.Go(func() { e.ban(ctx, msg, plan) })
	case ActionNone:
	}

	return action
}

// decide maps the user's score to an action.
// Warnings fire once per bucket: only when the bucket just updated reaches the limit.
func (e *Enforcer) decide(user *TrackedUser, updated Bucket) Action {
	score := user.Score()

	switch {
	case score >= e.cfg.BanLimit:
		return ActionBan
	case e.cfg.WarnLimit > 0 && score == e.cfg.WarnLimit &&
		updated != nil && updated.Count() == e.cfg.WarnLimit:
		return ActionWarn
	default:
		return ActionNone
	}
}

// warn replies to the triggering message. Failures are dropped since the message
// may already be gone.
func (e *Enforcer) warn(ctx context.Context, msg *Message) {
	incident := e.newIncident(msg, ActionWarn)

	if err := e.platform.Reply(ctx, msg.Ref(), warnEmbed(msg.AuthorID)); err != nil {
		e.metrics.Failures.WithLabelValues("reply").Inc()
		e.logger.Debug("Failed to send spam warning",
			zap.Uint64("channel_id", uint64(msg.ChannelID)),
			zap.Uint64("message_id", uint64(msg.MessageID)),
			zap.Error(err))

		incident.Failed = true
		incident.Error = err.Error()
	}

	e.record(ctx, incident)
}

// ban carries out a ban plan: ban, clean up tracked messages, post the audit log.
func (e *Enforcer) ban(ctx context.Context, msg *Message, plan banPlan) {
	ctx, span := e.tracer.Start(ctx, "guard.ban", trace.WithAttributes(
		attribute.String("guild_id", msg.GuildID.String()),
		attribute.String("user_id", msg.AuthorID.String()),
		attribute.Int("messages", len(plan.refs)),
	))
	defer span.End()

	incident := e.newIncident(msg, ActionBan)
	incident.Reason = plan.worst.reason()
	incident.Content = plan.worst.content
	incident.MessageCount = len(plan.refs)

	err := e.platform.Ban(ctx, msg.GuildID, msg.AuthorID, e.cfg.BanReason, e.cfg.DeleteMessageWindow)
	if err != nil {
		e.metrics.Failures.WithLabelValues("ban").Inc()
		e.logger.Error("Failed to ban spammer",
			zap.Uint64("guild_id", uint64(msg.GuildID)),
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "ban failed")

		incident.Failed = true
		incident.Error = err.Error()
		e.record(ctx, incident)

		return
	}

	e.cleanup(ctx, plan.refs)

	if e.cfg.ModerationChannelID != 0 {
		if err := e.platform.Send(ctx, e.cfg.ModerationChannelID, banEmbed(msg.AuthorID, plan.worst)); err != nil {
			e.metrics.Failures.WithLabelValues("audit").Inc()
			e.logger.Error("Failed to post ban audit log",
				zap.Uint64("channel_id", uint64(e.cfg.ModerationChannelID)),
				zap.Uint64("user_id", uint64(msg.AuthorID)),
				zap.Error(err))
		}
	}

	e.record(ctx, incident)
}

// cleanup bulk deletes tracked messages, channel by channel.
func (e *Enforcer) cleanup(ctx context.Context, refs []MessageRef) {
	byChannel := make(map[snowflake.ID][]snowflake.ID)

	var channels []snowflake.ID
	for _, ref := range refs {
		if _, ok := byChannel[ref.ChannelID]; !ok {
			channels = append(channels, ref.ChannelID)
		}

		byChannel[ref.ChannelID] = append(byChannel[ref.ChannelID], ref.MessageID)
	}

	p := pool.New().WithContext(ctx)

	for _, channelID := range channels {
		messageIDs := byChannel[channelID]

		p.Go(func(ctx context.Context) error {
			// Shared across bans so concurrent cleanups stay bounded
			if err := e.cleanupSem.Acquire(ctx, 1); err != nil {
				return fmt.Errorf("failed to acquire cleanup slot: %w", err)
			}
			defer e.cleanupSem.Release(1)

			for i := 0; i < len(messageIDs); i += BulkDeleteLimit {
				end := min(i+BulkDeleteLimit, len(messageIDs))

				if err := e.platform.BulkDelete(ctx, channelID, messageIDs[i:end]); err != nil {
					e.metrics.Failures.WithLabelValues("delete").Inc()
					e.logger.Error("Failed to delete spam messages",
						zap.Uint64("channel_id", uint64(channelID)),
						zap.Int("batch_start", i),
						zap.Int("batch_end", end),
						zap.Error(err))
				}
			}

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		e.logger.Error("Cleanup stopped early", zap.Error(err))
	}
}

func (e *Enforcer) newIncident(msg *Message, action Action) *Incident {
	return &Incident{
		GuildID:   msg.GuildID,
		UserID:    msg.AuthorID,
		ChannelID: msg.ChannelID,
		MessageID: msg.MessageID,
		Action:    action,
		CreatedAt: e.now(),
	}
}

func (e *Enforcer) record(ctx context.Context, incident *Incident) {
	if e.recorder == nil {
		return
	}

	if err := e.recorder.Record(ctx, incident); err != nil {
		e.logger.Warn("Failed to record incident",
			zap.Uint64("user_id", uint64(incident.UserID)),
			zap.String("action", incident.Action.String()),
			zap.Error(err))
	}
}

// RunJanitor sweeps stale buckets on a ticker until the context is cancelled.
func (e *Enforcer) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := e.store.Sweep(e.now()); removed > 0 {
				e.logger.Debug("Swept stale users", zap.Int("removed", removed))
			}

			e.metrics.TrackedUsers.Set(float64(e.store.Len()))
		}
	}
}

// Wait blocks until every started enforcement has finished.
func (e *Enforcer) Wait() {
	if r := e.wg.WaitAndRecover(); r != nil {
		e.logger.Error("Panic during enforcement",
			zap.Any("panic", r.Value),
			zap.ByteString("stack", r.Stack))
	}
}
