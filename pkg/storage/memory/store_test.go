package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
	"github.com/recollect-ai/recollect-go/pkg/storage/memory"
)

func TestAppendDefaults(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	msg, err := store.Append(ctx, "u1", 1, "hello", true)
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, 1, msg.TaskID)
	assert.True(t, msg.IsUser)
	assert.Equal(t, now, msg.Timestamp)
	assert.Equal(t, 0.5, msg.ImportanceScore)
	assert.Equal(t, 1.0, msg.ConsolidationG)
	assert.False(t, msg.HasEmbedding())
	assert.Nil(t, msg.LastRecallAt)
}

func TestListOrderingAndFilters(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	add := func(taskID int, offset time.Duration, content string) {
		store.SetClock(func() time.Time { return base.Add(offset) })
		_, err := store.Append(ctx, "u1", taskID, content, true)
		require.NoError(t, err)
	}

	// Inserted out of order on purpose.
	add(2, 10*time.Minute, "t2 late")
	add(1, 5*time.Minute, "t1 late")
	add(1, time.Minute, "t1 early")
	add(2, 2*time.Minute, "t2 early")

	all, err := store.ListAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "t1 early", all[0].Content)
	assert.Equal(t, "t1 late", all[1].Content)
	assert.Equal(t, "t2 early", all[2].Content)
	assert.Equal(t, "t2 late", all[3].Content)

	before, err := store.ListBeforeTask(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.Equal(t, 1, before[0].TaskID)
	assert.Equal(t, 1, before[1].TaskID)

	forTask, err := store.ListForTask(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, forTask, 2)
	assert.Equal(t, "t2 early", forTask[0].Content)

	other, err := store.ListAll(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestListWithEmbeddings(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	m1, err := store.Append(ctx, "u1", 1, "vectorized", true)
	require.NoError(t, err)
	_, err = store.Append(ctx, "u1", 1, "plain", true)
	require.NoError(t, err)
	m3, err := store.Append(ctx, "u1", 2, "current task", true)
	require.NoError(t, err)

	for _, id := range []string{m1.ID, m3.ID} {
		ok, err := store.UpdateMetadata(ctx, id, &storage.MetadataUpdate{
			Embedding: []float64{1, 0},
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	got, err := store.ListWithEmbeddings(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m1.ID, got[0].ID)

	// Negative task excludes nothing.
	got, err = store.ListWithEmbeddings(ctx, "u1", -1)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpdateMetadataPartial(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	msg, err := store.Append(ctx, "u1", 1, "hello", true)
	require.NoError(t, err)

	g := 1.8
	count := 2
	recalled := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	ok, err := store.UpdateMetadata(ctx, msg.ID, &storage.MetadataUpdate{
		ConsolidationG: &g,
		RecallCount:    &count,
		LastRecallAt:   &recalled,
	})
	require.NoError(t, err)
	require.True(t, ok)

	all, err := store.ListAll(ctx, "u1")
	require.NoError(t, err)
	got := all[0]
	assert.Equal(t, 1.8, got.ConsolidationG)
	assert.Equal(t, 2, got.RecallCount)
	require.NotNil(t, got.LastRecallAt)
	assert.Equal(t, recalled, *got.LastRecallAt)

	// Untouched fields keep their values.
	assert.Equal(t, 0.5, got.ImportanceScore)
	assert.False(t, got.HasEmbedding())
}

func TestUpdateMetadataMissingOrEmpty(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	msg, err := store.Append(ctx, "u1", 1, "hello", true)
	require.NoError(t, err)

	ok, err := store.UpdateMetadata(ctx, "no-such-id", &storage.MetadataUpdate{
		Embedding: []float64{1},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.UpdateMetadata(ctx, msg.ID, &storage.MetadataUpdate{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.UpdateMetadata(ctx, msg.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReturnedMessagesAreClones(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	msg, err := store.Append(ctx, "u1", 1, "hello", true)
	require.NoError(t, err)

	ok, err := store.UpdateMetadata(ctx, msg.ID, &storage.MetadataUpdate{
		Embedding: []float64{1, 0},
	})
	require.NoError(t, err)
	require.True(t, ok)

	all, err := store.ListAll(ctx, "u1")
	require.NoError(t, err)
	all[0].Embedding[0] = 99
	all[0].Content = "mutated"

	again, err := store.ListAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again[0].Content)
	assert.Equal(t, 1.0, again[0].Embedding[0])
}

func TestProfileStoreRoundTrip(t *testing.T) {
	store := memory.NewProfileStore()
	ctx := context.Background()

	// Unknown user gets an empty skeleton, never an error.
	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
	assert.NotNil(t, p.BasicInfo)

	saved := profile.New()
	saved.Preferences = []string{"Likes hiking [Task 1]"}
	require.NoError(t, store.SaveProfile(ctx, "u1", saved, 1))

	got, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Likes hiking [Task 1]"}, got.Preferences)
	assert.Equal(t, 1, got.LastConsolidatedTaskID)

	// The stored copy is isolated from later caller mutation.
	saved.Preferences[0] = "mutated"
	got.Preferences[0] = "also mutated"
	again, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Likes hiking [Task 1]", again.Preferences[0])
}
