package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalyx/spamguard/internal/guard"
	"github.com/robalyx/spamguard/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()

	j, err := journal.Open(filepath.Join(t.TempDir(), "data", "journal.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = j.Close() })

	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	t.Parallel()

	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	warn := &guard.Incident{
		GuildID:   1,
		UserID:    2,
		ChannelID: 3,
		MessageID: 4,
		Action:    guard.ActionWarn,
		CreatedAt: base,
	}
	ban := &guard.Incident{
		GuildID:      1,
		UserID:       2,
		ChannelID:    3,
		MessageID:    5,
		Action:       guard.ActionBan,
		Reason:       guard.ReasonSpammedText,
		Content:      "buy cheap followers at my totally real site",
		MessageCount: 5,
		CreatedAt:    base.Add(time.Minute),
	}
	failed := &guard.Incident{
		GuildID:   1,
		UserID:    9,
		Action:    guard.ActionBan,
		Reason:    guard.ReasonDiscordLinks,
		Failed:    true,
		Error:     "missing permissions",
		CreatedAt: base.Add(2 * time.Minute),
	}

	for _, incident := range []*guard.Incident{warn, ban, failed} {
		require.NoError(t, j.Record(ctx, incident))
	}

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, *failed, entries[0].Incident)
	assert.Equal(t, *ban, entries[1].Incident)
	assert.Equal(t, *warn, entries[2].Incident)

	for _, entry := range entries {
		assert.NotEmpty(t, entry.ID)
	}

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, entries[0].ID, limited[0].ID)
}

func TestJournal_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := journal.Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, &guard.Incident{UserID: 7, Action: guard.ActionWarn, CreatedAt: time.Now()}))
	require.NoError(t, j.Close())

	j, err = journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 7, entries[0].UserID)
}

func TestJournal_Closed(t *testing.T) {
	t.Parallel()

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	err = j.Record(context.Background(), &guard.Incident{})
	require.ErrorIs(t, err, journal.ErrClosed)

	_, err = j.Recent(context.Background(), 1)
	require.ErrorIs(t, err, journal.ErrClosed)
}
