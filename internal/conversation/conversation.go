package conversation

import (
	"log"
	"sync"
	"time"
)

const (
	DefaultTTL          = 30 * time.Minute
	DefaultMaxExchanges = 10
)

// Exchange is one completed question/answer round: the user's question, the
// SQL that was generated for it, and the final natural-language answer.
type Exchange struct {
	Question string
	SQL      string
	Answer   string
}

type entry struct {
	exchanges  []Exchange
	lastActive time.Time
}

// Store keeps per-user conversation memory, bounded to the most recent
// maxExchanges rounds and lazily expired after ttl of inactivity. Process
// memory only: a restart loses context, which is acceptable given the TTL.
type Store struct {
	mu           sync.Mutex
	entries      map[int64]*entry
	ttl          time.Duration
	maxExchanges int
	now          func() time.Time
}

func NewStore(ttl time.Duration, maxExchanges int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	return &Store{
		entries:      make(map[int64]*entry),
		ttl:          ttl,
		maxExchanges: maxExchanges,
		now:          time.Now,
	}
}

// GetExchanges returns the user's history oldest-first, or nil if the user has
// no entry or the entry has expired. Expiry is checked on read, not swept.
func (s *Store) GetExchanges(userID int64) []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil
	}

	if s.now().Sub(e.lastActive) > s.ttl {
		log.Printf("Conversation expired for user %d", userID)
		delete(s.entries, userID)
		return nil
	}

	out := make([]Exchange, len(e.exchanges))
	copy(out, e.exchanges)
	return out
}

// AddExchange appends a completed exchange, refreshes the activity timestamp
// and drops the oldest rounds past the bound.
func (s *Store) AddExchange(userID int64, question, sql, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		e = &entry{}
		s.entries[userID] = e
	}

	e.exchanges = append(e.exchanges, Exchange{Question: question, SQL: sql, Answer: answer})
	e.lastActive = s.now()

	if len(e.exchanges) > s.maxExchanges {
		e.exchanges = e.exchanges[len(e.exchanges)-s.maxExchanges:]
	}
}

// Clear removes the user's history. No-op if there is none.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}
