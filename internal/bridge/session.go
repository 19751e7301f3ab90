package bridge

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const sessionShards = 16

// SessionStore keeps one live conversation session per sender. Lookups and
// updates are sharded by sender id; concurrent first contacts from the same
// sender collapse into a single backend StartConversation call.
type SessionStore struct {
	log    *slog.Logger
	conv   Conversations
	group  singleflight.Group
	shards [sessionShards]sessionShard
}

type sessionShard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(log *slog.Logger, conv Conversations) *SessionStore {
	s := &SessionStore{
		log:  log.With(slog.String("service", "sessions")),
		conv: conv,
	}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*Session)
	}
	return s
}

func (s *SessionStore) shard(senderID string) *sessionShard {
	h := fnv.New32a()
	h.Write([]byte(senderID))
	return &s.shards[h.Sum32()%sessionShards]
}

// GetOrCreate returns the sender's session, starting a backend conversation
// first if none exists. The returned Session is a copy.
func (s *SessionStore) GetOrCreate(ctx context.Context, senderID string) (Session, error) {
	sh := s.shard(senderID)

	sh.mu.Lock()
	if sess, ok := sh.sessions[senderID]; ok {
		sess.LastActivity = time.Now()
		out := *sess
		sh.mu.Unlock()
		return out, nil
	}
	sh.mu.Unlock()

	v, err, _ := s.group.Do(senderID, func() (any, error) {
		sh.mu.Lock()
		if sess, ok := sh.sessions[senderID]; ok {
			out := *sess
			sh.mu.Unlock()
			return out, nil
		}
		sh.mu.Unlock()

		conv, err := s.conv.StartConversation(ctx)
		if err != nil {
			return Session{}, err
		}
		sess := &Session{
			SenderID:       senderID,
			ConversationID: conv.ID,
			LastActivity:   time.Now(),
		}
		sh.mu.Lock()
		sh.sessions[senderID] = sess
		out := *sess
		sh.mu.Unlock()
		s.log.Info("session started",
			slog.String("sender", senderID),
			slog.String("conversation", conv.ID))
		return out, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

// Update stores the reply cursor reached on the sender's last turn. Empty
// cursors are ignored so a failed fetch never rewinds the session.
func (s *SessionStore) Update(senderID, cursor string) {
	if cursor == "" {
		return
	}
	sh := s.shard(senderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sess, ok := sh.sessions[senderID]; ok {
		sess.Watermark = cursor
		sess.LastActivity = time.Now()
	}
}

// Drop removes the sender's session so the next turn starts a fresh
// conversation.
func (s *SessionStore) Drop(senderID string) {
	sh := s.shard(senderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.sessions, senderID)
}

// Sweep evicts sessions idle longer than the ttl and reports how many.
func (s *SessionStore) Sweep(idleTTL time.Duration) int {
	cutoff := time.Now().Add(-idleTTL)
	evicted := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.LastActivity.Before(cutoff) {
				delete(sh.sessions, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		s.log.Info("idle sessions evicted", slog.Int("count", evicted))
	}
	return evicted
}
