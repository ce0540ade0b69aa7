// Package session keeps per-chat conversation state between the daemon and
// the agent. Sessions are created lazily on the first message of a chat and
// evicted after a period of inactivity.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/zulandar/airminal/internal/logger"
)

const (
	DefaultIdleTTL       = 2 * time.Hour
	DefaultSweepInterval = 30 * time.Minute
)

// Role values for Turn.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry in a conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
	TS      int64  `json:"ts"`
}

// Session is the conversation state for one (platform, chat) pair.
type Session struct {
	Key            string
	ConversationID string
	History        []Turn
	LastActivity   int64
}

// Append adds a turn, dropping the oldest turns beyond max (max <= 0 keeps all).
func (s *Session) Append(t Turn, max int) {
	s.History = append(s.History, t)
	if max > 0 && len(s.History) > max {
		s.History = append([]Turn(nil), s.History[len(s.History)-max:]...)
	}
}

// Recent returns a copy of the last n turns.
func (s *Session) Recent(n int) []Turn {
	h := s.History
	if n >= 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]Turn{}, h...)
}

// Snapshot returns a deep copy safe to use outside the session lock.
func (s *Session) Snapshot() Session {
	out := *s
	out.History = append([]Turn{}, s.History...)
	return out
}

// Key builds the session key for a platform chat.
func Key(platform, chatID string) string {
	return platform + ":" + chatID
}

// StoreOpts configures a Store.
type StoreOpts struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *logger.Logger
}

// Store holds sessions in a go-cache with sliding expiration: every Acquire
// refreshes the entry, and the janitor removes entries idle past IdleTTL.
type Store struct {
	cache *cache.Cache
	now   func() time.Time
	log   *logger.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates a session store and starts its sweep.
func NewStore(opts StoreOpts) *Store {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		cache: cache.New(opts.IdleTTL, opts.SweepInterval),
		now:   opts.Now,
		log:   logger.OrNop(opts.Logger),
		locks: make(map[string]*keyLock),
	}
	s.cache.OnEvicted(func(key string, _ interface{}) {
		s.log.Debug("session evicted", "key", key)
	})
	return s
}

// Acquire locks the session for (platform, chatID), creating it if needed,
// and returns it with a release func. The session must not be used after
// release. Release refreshes the idle timer but does not bring back a
// session dropped while it was held.
func (s *Store) Acquire(platform, chatID string) (*Session, func()) {
	key := Key(platform, chatID)
	unlock := s.lock(key)

	var sess *Session
	if v, ok := s.cache.Get(key); ok {
		sess = v.(*Session)
	} else {
		sess = &Session{
			Key:            key,
			ConversationID: "conv_" + uuid.NewString(),
			History:        []Turn{},
		}
		s.log.Debug("session created", "key", key, "conversation_id", sess.ConversationID)
	}
	sess.LastActivity = s.now().UnixMilli()
	s.cache.Set(key, sess, cache.DefaultExpiration)

	return sess, func() {
		sess.LastActivity = s.now().UnixMilli()
		_ = s.cache.Replace(key, sess, cache.DefaultExpiration)
		unlock()
	}
}

// Get returns a snapshot of the session without creating it.
func (s *Store) Get(platform, chatID string) (Session, bool) {
	key := Key(platform, chatID)
	unlock := s.lock(key)
	defer unlock()
	v, ok := s.cache.Get(key)
	if !ok {
		return Session{}, false
	}
	return v.(*Session).Snapshot(), true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	return len(s.cache.Items())
}

// ClearAll drops every session.
func (s *Store) ClearAll() {
	s.cache.Flush()
}

// Sweep removes idle sessions immediately instead of waiting for the janitor.
func (s *Store) Sweep() {
	s.cache.DeleteExpired()
}

func (s *Store) lock(key string) func() {
	s.mu.Lock()
	kl, ok := s.locks[key]
	if !ok {
		kl = &keyLock{}
		s.locks[key] = kl
	}
	kl.refs++
	s.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		s.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
