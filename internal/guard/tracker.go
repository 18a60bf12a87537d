package guard

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// MessageRef locates a single tracked message for later deletion.
type MessageRef struct {
	MessageID snowflake.ID
	ChannelID snowflake.ID
}

// Bucket is a group of tracked messages that contributes to a user's score.
type Bucket interface {
	// Count returns how many messages fell into the bucket.
	Count() int
	// FirstSeen returns when the bucket was created.
	FirstSeen() time.Time
	// Refs returns the messages recorded in the bucket.
	Refs() []MessageRef
}

// ContentGroup tracks repeats of one exact message content.
type ContentGroup struct {
	Content     string
	FirstSeenAt time.Time
	Hits        int
	Messages    []MessageRef
}

func (g *ContentGroup) Count() int           { return g.Hits }
func (g *ContentGroup) FirstSeen() time.Time { return g.FirstSeenAt }
func (g *ContentGroup) Refs() []MessageRef   { return g.Messages }

// LinkCounter tracks every invite-link message of a user regardless of content.
type LinkCounter struct {
	FirstSeenAt time.Time
	Hits        int
	Messages    []MessageRef
}

func (l *LinkCounter) Count() int           { return l.Hits }
func (l *LinkCounter) FirstSeen() time.Time { return l.FirstSeenAt }
func (l *LinkCounter) Refs() []MessageRef   { return l.Messages }

// TrackedUser holds all buckets of a single author.
type TrackedUser struct {
	UserID snowflake.ID
	Groups []*ContentGroup
	Links  *LinkCounter

	maxGroups int
}

// newTrackedUser creates an empty record that keeps at most maxGroups content groups.
func newTrackedUser(userID snowflake.ID, maxGroups int) *TrackedUser {
	return &TrackedUser{
		UserID:    userID,
		Groups:    make([]*ContentGroup, 0, maxGroups),
		maxGroups: maxGroups,
	}
}

// Record files a trackable message into the matching bucket and returns that bucket.
// Returns nil for ClassIgnore.
func (u *TrackedUser) Record(class Class, content string, ref MessageRef, now time.Time) Bucket {
	switch class {
	case ClassLink:
		if u.Links == nil {
			u.Links = &LinkCounter{FirstSeenAt: now}
		}

		u.Links.Hits++
		u.Links.Messages = append(u.Links.Messages, ref)

		return u.Links

	case ClassContent:
		for _, group := range u.Groups {
			if group.Content == content {
				group.Hits++
				group.Messages = append(group.Messages, ref)

				return group
			}
		}

		if len(u.Groups) >= u.maxGroups {
			u.evictOldestGroup()
		}

		group := &ContentGroup{
			Content:     content,
			FirstSeenAt: now,
			Hits:        1,
			Messages:    []MessageRef{ref},
		}
		u.Groups = append(u.Groups, group)

		return group

	case ClassIgnore:
	}

	return nil
}

// evictOldestGroup removes the group with the earliest FirstSeenAt.
// Ties go to the group found first in slice order.
func (u *TrackedUser) evictOldestGroup() {
	if len(u.Groups) == 0 {
		return
	}

	oldest := 0
	for i, group := range u.Groups {
		if group.FirstSeenAt.Before(u.Groups[oldest].FirstSeenAt) {
			oldest = i
		}
	}

	u.Groups = append(u.Groups[:oldest], u.Groups[oldest+1:]...)
}

// expire drops buckets older than retention and reports whether the user is now empty.
func (u *TrackedUser) expire(now time.Time, retention time.Duration) bool {
	kept := u.Groups[:0]
	for _, group := range u.Groups {
		if now.Sub(group.FirstSeenAt) <= retention {
			kept = append(kept, group)
		}
	}

	// Clear the tail so evicted groups can be collected
	for i := len(kept); i < len(u.Groups); i++ {
		u.Groups[i] = nil
	}

	u.Groups = kept

	if u.Links != nil && now.Sub(u.Links.FirstSeenAt) > retention {
		u.Links = nil
	}

	return u.Empty()
}

// Empty reports whether the user has no buckets left.
func (u *TrackedUser) Empty() bool {
	return len(u.Groups) == 0 && u.Links == nil
}

// AllRefs returns every tracked message of the user, link messages first.
func (u *TrackedUser) AllRefs() []MessageRef {
	var refs []MessageRef
	if u.Links != nil {
		refs = append(refs, u.Links.Messages...)
	}

	for _, group := range u.Groups {
		refs = append(refs, group.Messages...)
	}

	return refs
}
