package conversation

import (
	"fmt"
	"testing"
	"time"
)

func TestGetExchangesEmptyForUnknownUser(t *testing.T) {
	s := NewStore(DefaultTTL, DefaultMaxExchanges)
	if got := s.GetExchanges(42); len(got) != 0 {
		t.Errorf("expected no exchanges for unknown user, got %d", len(got))
	}
}

func TestAddAndGetExchanges(t *testing.T) {
	s := NewStore(DefaultTTL, DefaultMaxExchanges)
	s.AddExchange(1, "q1", "SELECT 1", "a1")
	s.AddExchange(1, "q2", "SELECT 2", "a2")

	got := s.GetExchanges(1)
	if len(got) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(got))
	}
	if got[0].Question != "q1" || got[1].Question != "q2" {
		t.Errorf("exchanges out of order: %+v", got)
	}
	if got[1].SQL != "SELECT 2" || got[1].Answer != "a2" {
		t.Errorf("unexpected exchange content: %+v", got[1])
	}
}

func TestExchangesIsolatedPerUser(t *testing.T) {
	s := NewStore(DefaultTTL, DefaultMaxExchanges)
	s.AddExchange(1, "q1", "s1", "a1")

	if got := s.GetExchanges(2); len(got) != 0 {
		t.Errorf("user 2 should have no exchanges, got %d", len(got))
	}
}

func TestMaxExchangesBound(t *testing.T) {
	s := NewStore(DefaultTTL, 3)
	for i := 1; i <= 7; i++ {
		s.AddExchange(1, fmt.Sprintf("q%d", i), "sql", "answer")
	}

	got := s.GetExchanges(1)
	if len(got) != 3 {
		t.Fatalf("expected history truncated to 3, got %d", len(got))
	}
	// Oldest-first among the kept ones: q5, q6, q7.
	for i, want := range []string{"q5", "q6", "q7"} {
		if got[i].Question != want {
			t.Errorf("exchange %d = %q, want %q", i, got[i].Question, want)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	s := NewStore(30*time.Minute, DefaultMaxExchanges)
	s.now = func() time.Time { return now }

	s.AddExchange(1, "q", "sql", "a")

	// Still within the TTL.
	now = now.Add(29 * time.Minute)
	if got := s.GetExchanges(1); len(got) != 1 {
		t.Fatalf("expected 1 exchange before expiry, got %d", len(got))
	}

	// Reading refreshed nothing; expiry counts from last AddExchange.
	now = now.Add(2 * time.Minute)
	if got := s.GetExchanges(1); len(got) != 0 {
		t.Errorf("expected expired history to be empty, got %d", len(got))
	}

	// The read evicted the entry; a fresh exchange starts a new context.
	s.AddExchange(1, "q2", "sql2", "a2")
	got := s.GetExchanges(1)
	if len(got) != 1 || got[0].Question != "q2" {
		t.Errorf("expected fresh context after expiry, got %+v", got)
	}
}

func TestAddRefreshesLastActive(t *testing.T) {
	now := time.Now()
	s := NewStore(30*time.Minute, DefaultMaxExchanges)
	s.now = func() time.Time { return now }

	s.AddExchange(1, "q1", "s", "a")
	now = now.Add(20 * time.Minute)
	s.AddExchange(1, "q2", "s", "a")
	now = now.Add(20 * time.Minute)

	// 40 minutes since q1, but only 20 since q2: not expired.
	if got := s.GetExchanges(1); len(got) != 2 {
		t.Errorf("expected 2 exchanges, history should not have expired, got %d", len(got))
	}
}

func TestClear(t *testing.T) {
	s := NewStore(DefaultTTL, DefaultMaxExchanges)
	s.AddExchange(1, "q", "sql", "a")
	s.Clear(1)

	if got := s.GetExchanges(1); len(got) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(got))
	}

	// Idempotent.
	s.Clear(1)
	s.Clear(99)
}
