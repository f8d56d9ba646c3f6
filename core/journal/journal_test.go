package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/duet/core/handoff"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", DefaultFileName)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestAppendAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := j.Append(ctx, handoff.Record{ConversationID: "c1", To: "voice agent", Outcome: handoff.OutcomeActivated, ContextLen: 2, At: base})
	require.NoError(t, err)
	_, err = j.Append(ctx, handoff.Record{
		ConversationID: "c1", From: "voice agent", To: "emotional support agent",
		Outcome: handoff.OutcomeActivated, Window: 6, Carried: 6, ContextLen: 8, TagFailed: true,
		At: base.Add(time.Second),
	})
	require.NoError(t, err)
	_, err = j.Append(ctx, handoff.Record{ConversationID: "c2", From: "voice agent", To: "nobody", Outcome: handoff.OutcomeRejected, Error: "unknown", At: base.Add(2 * time.Second)})
	require.NoError(t, err)

	all, err := j.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c2", all[0].ConversationID)
	assert.Equal(t, "unknown", all[0].Error)
	assert.Equal(t, handoff.OutcomeRejected, all[0].Outcome)

	c1, err := j.List(ctx, Query{ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, c1, 2)
	assert.Equal(t, "emotional support agent", c1[0].To)
	assert.Equal(t, "voice agent", c1[0].From)
	assert.Equal(t, 6, c1[0].Window)
	assert.Equal(t, 6, c1[0].Carried)
	assert.Equal(t, 8, c1[0].ContextLen)
	assert.True(t, c1[0].TagFailed)
	assert.True(t, base.Add(time.Second).Equal(c1[0].At))
	assert.Equal(t, "", c1[1].From)
	assert.NotEmpty(t, c1[1].ID)

	limited, err := j.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLatest(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, ok, err := j.Latest(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	j.RecordHandoff(ctx, handoff.Record{ConversationID: "c1", To: "voice agent", Outcome: handoff.OutcomeActivated})
	j.RecordHandoff(ctx, handoff.Record{ConversationID: "c1", From: "voice agent", To: "emotional support agent", Outcome: handoff.OutcomeActivated})

	latest, ok, err := j.Latest(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "emotional support agent", latest.To)
	assert.False(t, latest.At.IsZero())
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	ctx := context.Background()

	j, err := Open(Config{Path: path})
	require.NoError(t, err)
	_, err = j.Append(ctx, handoff.Record{ConversationID: "c1", To: "voice agent", Outcome: handoff.OutcomeActivated})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(ctx, Query{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, path, j.Path())
}

func TestInMemory(t *testing.T) {
	j, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Append(context.Background(), handoff.Record{ConversationID: "c", To: "voice agent", Outcome: handoff.OutcomeActivated})
	require.NoError(t, err)

	entries, err := j.List(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
