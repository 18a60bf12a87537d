package guard_test

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/spamguard/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannelID = snowflake.ID(300)

// observe records a message in the store without making any decision.
func observe(store *guard.Store, msg *guard.Message, class guard.Class, now time.Time) {
	store.Observe(msg, class, now, nil)
}

func TestStore_RecordContentGroups(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	first := clock.Now()
	observe(store, msgs.from(testUserID, testChannelID, "repeat me"), guard.ClassContent, clock.Now())
	clock.Advance(time.Minute)
	observe(store, msgs.from(testUserID, testChannelID, "repeat me"), guard.ClassContent, clock.Now())
	observe(store, msgs.from(testUserID, testChannelID, "Repeat me"), guard.ClassContent, clock.Now())

	user, ok := store.Lookup(testUserID)
	require.True(t, ok)
	require.Len(t, user.Groups, 2, "matching is case sensitive")

	group := user.Groups[0]
	assert.Equal(t, "repeat me", group.Content)
	assert.Equal(t, 2, group.Hits)
	assert.Equal(t, first, group.FirstSeenAt, "repeats keep the first timestamp")
	assert.Len(t, group.Messages, 2)
	assert.Nil(t, user.Links)
}

func TestStore_RecordLinks(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	observe(store, msgs.from(testUserID, 1, "discord.gg/a"), guard.ClassLink, clock.Now())
	observe(store, msgs.from(testUserID, 2, "discord.gg/b"), guard.ClassLink, clock.Now())
	observe(store, msgs.from(testUserID, 3, "discord.gg/c"), guard.ClassLink, clock.Now())

	user, ok := store.Lookup(testUserID)
	require.True(t, ok)
	require.NotNil(t, user.Links)
	assert.Equal(t, 3, user.Links.Hits)
	assert.Len(t, user.Links.Messages, 3)
	assert.Empty(t, user.Groups)
	assert.Equal(t, 3, user.Score())
}

func TestStore_EvictsOldestGroup(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	for _, content := range []string{"A", "A", "B", "B", "C", "C"} {
		observe(store, msgs.from(testUserID, testChannelID, content), guard.ClassContent, clock.Now())
		clock.Advance(time.Second)
	}

	observe(store, msgs.from(testUserID, testChannelID, "D"), guard.ClassContent, clock.Now())

	user, ok := store.Lookup(testUserID)
	require.True(t, ok)
	require.Len(t, user.Groups, 3)
	assert.Equal(t, []string{"B", "C", "D"}, contents(user))

	// A comes back as a brand-new group and pushes out B
	clock.Advance(time.Second)
	observe(store, msgs.from(testUserID, testChannelID, "A"), guard.ClassContent, clock.Now())

	user, _ = store.Lookup(testUserID)
	require.Len(t, user.Groups, 3)
	assert.Equal(t, []string{"C", "D", "A"}, contents(user))
	assert.Equal(t, 1, user.Groups[2].Hits)
}

func TestStore_EvictionIgnoresRepeatRecency(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 2)
	msgs := &messageFactory{}

	observe(store, msgs.from(testUserID, testChannelID, "old"), guard.ClassContent, clock.Now())
	clock.Advance(time.Second)
	observe(store, msgs.from(testUserID, testChannelID, "young"), guard.ClassContent, clock.Now())
	clock.Advance(time.Second)

	// Repeating "old" does not refresh its first-seen time
	observe(store, msgs.from(testUserID, testChannelID, "old"), guard.ClassContent, clock.Now())
	observe(store, msgs.from(testUserID, testChannelID, "new"), guard.ClassContent, clock.Now())

	user, _ := store.Lookup(testUserID)
	assert.Equal(t, []string{"young", "new"}, contents(user))
}

func TestStore_EvictionTieGoesToFirstGroup(t *testing.T) {
	t.Parallel()

	now := newFakeClock().Now()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	for _, content := range []string{"X", "Y", "Z", "W"} {
		observe(store, msgs.from(testUserID, testChannelID, content), guard.ClassContent, now)
	}

	user, _ := store.Lookup(testUserID)
	assert.Equal(t, []string{"Y", "Z", "W"}, contents(user))
}

func TestStore_NeverExceedsMaxGroups(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	for i := range 50 {
		content := string(rune('a' + i%26))
		observe(store, msgs.from(testUserID, testChannelID, content), guard.ClassContent, clock.Now())
		clock.Advance(time.Second)

		user, ok := store.Lookup(testUserID)
		require.True(t, ok)
		require.LessOrEqual(t, len(user.Groups), 3)
	}
}

func TestStore_Sweep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	staleUser := snowflake.ID(1)
	mixedUser := snowflake.ID(2)

	observe(store, msgs.from(staleUser, testChannelID, "stale"), guard.ClassContent, clock.Now())
	observe(store, msgs.from(mixedUser, testChannelID, "stale"), guard.ClassContent, clock.Now())
	observe(store, msgs.from(mixedUser, testChannelID, "discord.gg/x"), guard.ClassLink, clock.Now())

	clock.Advance(6 * time.Minute)
	observe(store, msgs.from(mixedUser, testChannelID, "fresh"), guard.ClassContent, clock.Now())

	// Exactly at the retention window buckets are still kept
	clock.Advance(4 * time.Minute)
	assert.Equal(t, 0, store.Sweep(clock.Now()))
	assert.Equal(t, 2, store.Len())

	clock.Advance(time.Second)
	assert.Equal(t, 1, store.Sweep(clock.Now()))

	_, ok := store.Lookup(staleUser)
	assert.False(t, ok, "user without buckets is removed entirely")

	user, ok := store.Lookup(mixedUser)
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, contents(user))
	assert.Nil(t, user.Links)
}

func TestStore_SweepsOnAnyMessage(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	observe(store, msgs.from(1, testChannelID, "old news"), guard.ClassContent, clock.Now())
	clock.Advance(11 * time.Minute)

	// An untracked message from another user still triggers the sweep
	observe(store, msgs.from(2, testChannelID, "hi"), guard.ClassIgnore, clock.Now())

	assert.Equal(t, 0, store.Len())
}

func TestStore_ObserveDecide(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}

	var (
		seenUser    *guard.TrackedUser
		seenUpdated guard.Bucket
	)

	store.Observe(msgs.from(testUserID, testChannelID, "text"), guard.ClassContent, clock.Now(),
		func(user *guard.TrackedUser, updated guard.Bucket) bool {
			seenUser, seenUpdated = user, updated
			return false
		})

	require.NotNil(t, seenUser)
	require.NotNil(t, seenUpdated)
	assert.Equal(t, 1, seenUpdated.Count())

	store.Observe(msgs.from(testUserID, testChannelID, "text"), guard.ClassContent, clock.Now(),
		func(*guard.TrackedUser, guard.Bucket) bool { return true })
	assert.Equal(t, 0, store.Len(), "returning true resets the user")

	store.Observe(msgs.from(testUserID, testChannelID, "hey"), guard.ClassIgnore, clock.Now(),
		func(user *guard.TrackedUser, updated guard.Bucket) bool {
			assert.Nil(t, user)
			assert.Nil(t, updated)
			return false
		})
}

func TestStore_LookupReturnsCopy(t *testing.T) {
	t.Parallel()

	store := guard.NewStore(10*time.Minute, 3)
	msgs := &messageFactory{}
	observe(store, msgs.from(testUserID, testChannelID, "text"), guard.ClassContent, time.Now())

	user, _ := store.Lookup(testUserID)
	user.Groups[0].Hits = 99

	again, _ := store.Lookup(testUserID)
	assert.Equal(t, 1, again.Groups[0].Hits)

	_, ok := store.Lookup(testUserID + 1)
	assert.False(t, ok)
}

func TestTrackedUser_Worst(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name     string
		user     *guard.TrackedUser
		expected guard.Bucket
	}{
		{
			name:     "empty user",
			user:     &guard.TrackedUser{},
			expected: nil,
		},
		{
			name: "highest group wins and first one on ties",
			user: &guard.TrackedUser{Groups: []*guard.ContentGroup{
				{Content: "a", Hits: 2, FirstSeenAt: now},
				{Content: "b", Hits: 4, FirstSeenAt: now},
				{Content: "c", Hits: 4, FirstSeenAt: now},
			}},
			expected: &guard.ContentGroup{Content: "b", Hits: 4, FirstSeenAt: now},
		},
		{
			name: "link counter must be strictly higher",
			user: &guard.TrackedUser{
				Groups: []*guard.ContentGroup{{Content: "a", Hits: 3, FirstSeenAt: now}},
				Links:  &guard.LinkCounter{Hits: 3, FirstSeenAt: now},
			},
			expected: &guard.ContentGroup{Content: "a", Hits: 3, FirstSeenAt: now},
		},
		{
			name: "link counter above groups",
			user: &guard.TrackedUser{
				Groups: []*guard.ContentGroup{{Content: "a", Hits: 1, FirstSeenAt: now}},
				Links:  &guard.LinkCounter{Hits: 2, FirstSeenAt: now},
			},
			expected: &guard.LinkCounter{Hits: 2, FirstSeenAt: now},
		},
		{
			name:     "only links",
			user:     &guard.TrackedUser{Links: &guard.LinkCounter{Hits: 1, FirstSeenAt: now}},
			expected: &guard.LinkCounter{Hits: 1, FirstSeenAt: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			worst := tt.user.Worst()
			if tt.expected == nil {
				assert.Nil(t, worst)
				assert.Equal(t, 0, tt.user.Score())

				return
			}

			assert.Equal(t, tt.expected, worst)
			assert.Equal(t, tt.expected.Count(), tt.user.Score())
		})
	}
}

func contents(user *guard.TrackedUser) []string {
	out := make([]string, 0, len(user.Groups))
	for _, group := range user.Groups {
		out = append(out, group.Content)
	}

	return out
}
