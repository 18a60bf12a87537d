package guard

import (
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// DecideFunc inspects a user's record right after a message was recorded.
// The user is nil when the message was ignored or the user aged out during the sweep.
// Returning true removes the user's record from the store.
type DecideFunc func(user *TrackedUser, updated Bucket) (reset bool)

// Store owns the tracked state of every author.
// All access goes through its methods, which serialize on a single mutex.
type Store struct {
	mu        sync.Mutex
	users     map[snowflake.ID]*TrackedUser
	retention time.Duration
	maxGroups int
}

// NewStore creates an empty store.
func NewStore(retention time.Duration, maxGroups int) *Store {
	return &Store{
		users:     make(map[snowflake.ID]*TrackedUser),
		retention: retention,
		maxGroups: max(maxGroups, 1),
	}
}

// Observe records a classified message, sweeps stale buckets and hands the author's
// record to decide, all under the store lock.
func (s *Store) Observe(msg *Message, class Class, now time.Time, decide DecideFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated Bucket
	if class != ClassIgnore {
		user, ok := s.users[msg.AuthorID]
		if !ok {
			user = newTrackedUser(msg.AuthorID, s.maxGroups)
			s.users[msg.AuthorID] = user
		}

		updated = user.Record(class, msg.Content, msg.Ref(), now)
	}

	s.sweep(now)

	user := s.users[msg.AuthorID]
	if class == ClassIgnore || user == nil {
		user, updated = nil, nil
	}

	// The bucket may have aged out in the sweep above
	if updated != nil && now.Sub(updated.FirstSeen()) > s.retention {
		updated = nil
	}

	if decide != nil && decide(user, updated) {
		delete(s.users, msg.AuthorID)
	}
}

// Sweep drops every bucket older than the retention window and removes empty users.
// It returns the number of users removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweep(now)
}

func (s *Store) sweep(now time.Time) int {
	removed := 0
	for userID, user := range s.users {
		if user.expire(now, s.retention) {
			delete(s.users, userID)
			removed++
		}
	}

	return removed
}

// Len returns the number of tracked users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}

// Lookup returns a copy of a user's record.
func (s *Store) Lookup(userID snowflake.ID) (*TrackedUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, false
	}

	return user.clone(), true
}

func (u *TrackedUser) clone() *TrackedUser {
	c := &TrackedUser{
		UserID:    u.UserID,
		Groups:    make([]*ContentGroup, 0, len(u.Groups)),
		maxGroups: u.maxGroups,
	}

	for _, group := range u.Groups {
		g := *group
		g.Messages = slices.Clone(group.Messages)
		c.Groups = append(c.Groups, &g)
	}

	if u.Links != nil {
		l := *u.Links
		l.Messages = slices.Clone(u.Links.Messages)
		c.Links = &l
	}

	return c
}
