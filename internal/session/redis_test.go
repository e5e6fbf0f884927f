package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestGet_UnknownUserIsEmptySession(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	sess, err := store.Get(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, "stranger", sess.UserID)
	assert.False(t, sess.HasPreference())
	assert.Empty(t, sess.Transcript)
}

func TestPreference_SetAndClear(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.SetPreference(ctx, "u1", "i am vegetarian"))

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, sess.HasPreference())
	assert.Equal(t, "i am vegetarian", sess.Preference)

	require.NoError(t, store.ClearPreference(ctx, "u1"))

	sess, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, sess.HasPreference())
}

func TestSetTranscript_MergeLeavesPreference(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.SetPreference(ctx, "u1", "no beef"))
	require.NoError(t, store.SetTranscript(ctx, "u1", []Message{
		{Role: RoleUser, Content: "hello"},
	}, 20))

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "no beef", sess.Preference, "transcript write must not clobber preference")
	require.Len(t, sess.Transcript, 1)
	assert.Equal(t, "hello", sess.Transcript[0].Content)
}

func TestSetTranscript_CapsAtMaxLen(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	var transcript []Message
	for i := 0; i < 25; i++ {
		transcript = append(transcript, Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}
	require.NoError(t, store.SetTranscript(ctx, "u1", transcript, 20))

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sess.Transcript, 20)
	assert.Equal(t, "msg-5", sess.Transcript[0].Content, "oldest entries are dropped first")
	assert.Equal(t, "msg-24", sess.Transcript[19].Content)
}

func TestSetTranscript_ReplacesPrevious(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.SetTranscript(ctx, "u1", []Message{
		{Role: RoleUser, Content: "old"},
	}, 20))
	require.NoError(t, store.SetTranscript(ctx, "u1", []Message{
		{Role: RoleSystem, Content: "grounding"},
		{Role: RoleUser, Content: "new"},
	}, 20))

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sess.Transcript, 2)
	assert.Equal(t, RoleSystem, sess.Transcript[0].Role)
	assert.Equal(t, "new", sess.Transcript[1].Content)
}

func TestSessions_IsolatedByUser(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.SetPreference(ctx, "u1", "vegan"))
	require.NoError(t, store.SetPreference(ctx, "u2", "low-carb"))

	s1, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	s2, err := store.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "vegan", s1.Preference)
	assert.Equal(t, "low-carb", s2.Preference)
}
