package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateStartsOnce(t *testing.T) {
	conv := &fakeConversations{}
	store := NewSessionStore(testLogger(), conv)

	first, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", first.ConversationID)

	second, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, 1, conv.startCalls)
}

func TestGetOrCreateConcurrentSingleStart(t *testing.T) {
	conv := &fakeConversations{}
	store := NewSessionStore(testLogger(), conv)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := store.GetOrCreate(context.Background(), "5511999990000")
			require.NoError(t, err)
			ids[i] = sess.ConversationID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, conv.startCalls)
	for _, id := range ids {
		assert.Equal(t, "conv-1", id)
	}
}

func TestGetOrCreatePropagatesStartError(t *testing.T) {
	conv := &fakeConversations{startErr: errors.New("boom")}
	store := NewSessionStore(testLogger(), conv)

	_, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.Error(t, err)

	// A later attempt retries instead of caching the failure.
	conv.startErr = nil
	sess, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ConversationID)
}

func TestUpdateIgnoresEmptyCursor(t *testing.T) {
	conv := &fakeConversations{}
	store := NewSessionStore(testLogger(), conv)

	_, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)

	store.Update("5511999990000", "wm-7")
	store.Update("5511999990000", "")

	sess, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "wm-7", sess.Watermark)
}

func TestDropForcesNewConversation(t *testing.T) {
	conv := &fakeConversations{}
	store := NewSessionStore(testLogger(), conv)

	_, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)
	store.Drop("5511999990000")

	sess, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "conv-2", sess.ConversationID)
	assert.Equal(t, 2, conv.startCalls)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	conv := &fakeConversations{}
	store := NewSessionStore(testLogger(), conv)

	_, err := store.GetOrCreate(context.Background(), "idle-sender")
	require.NoError(t, err)
	_, err = store.GetOrCreate(context.Background(), "busy-sender")
	require.NoError(t, err)

	sh := store.shard("idle-sender")
	sh.mu.Lock()
	sh.sessions["idle-sender"].LastActivity = time.Now().Add(-time.Hour)
	sh.mu.Unlock()

	assert.Equal(t, 1, store.Sweep(30*time.Minute))

	sess, err := store.GetOrCreate(context.Background(), "busy-sender")
	require.NoError(t, err)
	assert.Equal(t, "conv-2", sess.ConversationID)
}
