package guard_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/spamguard/internal/guard"
)

var errMissingPermissions = errors.New("missing permissions")

const (
	testGuildID = snowflake.ID(1000)
	testUserID  = snowflake.ID(2000)
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type banCall struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
	Reason  string
}

type deleteCall struct {
	ChannelID  snowflake.ID
	MessageIDs []snowflake.ID
}

type replyCall struct {
	Ref   guard.MessageRef
	Embed guard.Embed
}

type sendCall struct {
	ChannelID snowflake.ID
	Embed     guard.Embed
}

// fakePlatform records every call and optionally fails bans.
type fakePlatform struct {
	mu       sync.Mutex
	banErr   error
	replyErr error
	bans     []banCall
	deletes  []deleteCall
	replies  []replyCall
	sends    []sendCall
}

func (p *fakePlatform) Ban(
	_ context.Context, guildID, userID snowflake.ID, reason string, _ time.Duration,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.banErr != nil {
		return p.banErr
	}

	p.bans = append(p.bans, banCall{GuildID: guildID, UserID: userID, Reason: reason})

	return nil
}

func (p *fakePlatform) BulkDelete(_ context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]snowflake.ID, len(messageIDs))
	copy(ids, messageIDs)
	p.deletes = append(p.deletes, deleteCall{ChannelID: channelID, MessageIDs: ids})

	return nil
}

func (p *fakePlatform) Reply(_ context.Context, ref guard.MessageRef, embed guard.Embed) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.replyErr != nil {
		return p.replyErr
	}

	p.replies = append(p.replies, replyCall{Ref: ref, Embed: embed})

	return nil
}

func (p *fakePlatform) Send(_ context.Context, channelID snowflake.ID, embed guard.Embed) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sends = append(p.sends, sendCall{ChannelID: channelID, Embed: embed})

	return nil
}

// deletedIDs flattens every deleted message id.
func (p *fakePlatform) deletedIDs() []snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []snowflake.ID
	for _, call := range p.deletes {
		ids = append(ids, call.MessageIDs...)
	}

	return ids
}

// fakeRecorder keeps incidents in memory.
type fakeRecorder struct {
	mu        sync.Mutex
	incidents []*guard.Incident
}

func (r *fakeRecorder) Record(_ context.Context, incident *guard.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.incidents = append(r.incidents, incident)

	return nil
}

// find returns the first incident with the given action.
func (r *fakeRecorder) find(action guard.Action) *guard.Incident {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, incident := range r.incidents {
		if incident.Action == action {
			return incident
		}
	}

	return nil
}

// messageFactory hands out messages with increasing ids.
type messageFactory struct {
	next snowflake.ID
}

func (f *messageFactory) from(userID, channelID snowflake.ID, content string) *guard.Message {
	f.next++

	return &guard.Message{
		GuildID:   testGuildID,
		ChannelID: channelID,
		MessageID: 5000 + f.next,
		AuthorID:  userID,
		Content:   content,
	}
}

// longText returns a trackable message body of exactly n characters.
func longText(char string, n int) string {
	return strings.Repeat(char, n)
}
