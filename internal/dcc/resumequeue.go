package dcc

import (
	"sync"
	"time"
)

// ResumeOffer is one pending resume handshake awaiting the peer's ACCEPT.
type ResumeOffer struct {
	PeerNick   string
	PeerAddr   string
	PeerPort   int
	Filename   string
	LocalPath  string
	RemoteSize int64
	Offset     int64
	UseSSL     bool
	Completed  bool
	OfferedAt  time.Time
}

// ResumeQueue holds, per sender nickname, the ordered list of pending resume
// offers for one IRC Session. It is consulted only inside the owning
// session, but its own map access is guarded so the owning session's
// cleanup sweep can run from the manager's cron-driven loop.
type ResumeQueue struct {
	mu   sync.Mutex
	byNick map[string][]*ResumeOffer
}

// NewResumeQueue creates an empty queue.
func NewResumeQueue() *ResumeQueue {
	return &ResumeQueue{byNick: make(map[string][]*ResumeOffer)}
}

// Add enqueues offer, appending to the insertion-ordered list for its nick.
func (q *ResumeQueue) Add(offer *ResumeOffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byNick[offer.PeerNick] = append(q.byNick[offer.PeerNick], offer)
}

// MatchAccept looks for an offer from nick whose (port, resume_position)
// match exactly. On a match, the offer is removed from the queue and
// returned.
func (q *ResumeQueue) MatchAccept(nick string, port int, resumePosition int64) (*ResumeOffer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	offers := q.byNick[nick]
	for i, o := range offers {
		if o.PeerPort == port && o.Offset == resumePosition {
			q.byNick[nick] = append(offers[:i:i], offers[i+1:]...)
			if len(q.byNick[nick]) == 0 {
				delete(q.byNick, nick)
			}
			return o, true
		}
	}
	return nil, false
}

// Sweep removes and returns every offer older than timeout, as measured
// against now.
func (q *ResumeQueue) Sweep(now time.Time, timeout time.Duration) []*ResumeOffer {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*ResumeOffer
	for nick, offers := range q.byNick {
		kept := offers[:0]
		for _, o := range offers {
			if now.Sub(o.OfferedAt) > timeout {
				expired = append(expired, o)
			} else {
				kept = append(kept, o)
			}
		}
		if len(kept) == 0 {
			delete(q.byNick, nick)
		} else {
			q.byNick[nick] = kept
		}
	}
	return expired
}

// Len returns the total number of pending offers across all nicks.
func (q *ResumeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, offers := range q.byNick {
		n += len(offers)
	}
	return n
}
