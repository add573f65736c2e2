package rate

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const shardCount = 64

// Clock supplies the limiter's notion of now. Tests inject a fake.
type Clock func() time.Time

// Limiter enforces per-key sliding-window limits in process memory. Each key
// holds the timestamps of its admitted events; stale events are evicted
// lazily on the next check for that key. Keys are never expired, which is an
// accepted tradeoff for bounded actor cardinality.
type Limiter struct {
	clock  Clock
	shards [shardCount]shard
}

type shard struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// New creates a [Limiter]. A nil clock defaults to [time.Now].
func New(clock Clock) *Limiter {
	if clock == nil {
		clock = time.Now
	}

	l := &Limiter{clock: clock}
	for i := range l.shards {
		l.shards[i].events = make(map[string][]time.Time)
	}
	return l
}

// Allow reports whether one more event for key fits inside the window. On
// admission the event is recorded; on rejection the second return value is
// the wait until the oldest retained event leaves the window, floored at one
// second. Eviction, the decision, and the append are a single atomic step
// per key.
func (l *Limiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return true, 0
	}

	now := l.clock()
	cutoff := now.Add(-window)

	s := &l.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[key]
	kept := events[:0]
	for _, at := range events {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= limit {
		s.events[key] = kept
		retry := kept[0].Add(window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry
	}

	s.events[key] = append(kept, now)
	return true, 0
}

// Key builds the rate-limit key for an action and its most specific known
// actor: user ID, then case-folded email, then client IP.
func Key(action, userID, email, ip string) string {
	switch {
	case userID != "":
		return action + ":user:" + userID
	case email != "":
		return action + ":email:" + strings.ToLower(email)
	default:
		return action + ":ip:" + ip
	}
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
