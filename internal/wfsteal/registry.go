// Package wfsteal implements the optional peer work-stealing engine: a
// soft-state PeerRegistry refreshed by heartbeat, a choice of victim
// strategies, and a steal request/response exchange carried over NATS
// request/reply, guarded by a circuit breaker so a repeatedly unresponsive
// peer is treated as dead without waiting out the full retry ladder.
package wfsteal

import (
	"sync"
	"time"
)

// Peer is one entry in the soft-state registry.
type Peer struct {
	ID          string
	QueueDepth  int
	LastSeen    time.Time
	StealWins   int
	StealLosses int
}

// PeerRegistry tracks known peers via heartbeat gossip. Entries age out
// once LastSeen is older than TTL, since the registry is soft state: a
// stale entry simply means the next steal attempt against it will fail and
// the peer will be marked dead, not that correctness depends on it being
// accurate.
type PeerRegistry struct {
	mu    sync.Mutex
	ttl   time.Duration
	peers map[string]*Peer
}

// NewPeerRegistry creates a registry that expires peers after ttl without a heartbeat.
func NewPeerRegistry(ttl time.Duration) *PeerRegistry {
	return &PeerRegistry{ttl: ttl, peers: make(map[string]*Peer)}
}

// Heartbeat records (or refreshes) a peer's liveness and queue depth.
func (r *PeerRegistry) Heartbeat(id string, queueDepth int, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		p = &Peer{ID: id}
		r.peers[id] = p
	}
	p.QueueDepth = queueDepth
	p.LastSeen = now
}

// Forget removes a peer immediately, used when a steal against it hits a
// NetworkError: the peer is presumed dead for the remainder of the run.
func (r *PeerRegistry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Live returns every peer whose last heartbeat is within ttl of now.
func (r *PeerRegistry) Live(now time.Time) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Peer
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) <= r.ttl {
			out = append(out, *p)
		} else {
			delete(r.peers, id)
		}
	}
	return out
}

// RecordStealOutcome updates a peer's win/loss tally, consulted by the
// Adaptive strategy to decide whether to keep favoring it.
func (r *PeerRegistry) RecordStealOutcome(id string, won bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return
	}
	if won {
		p.StealWins++
	} else {
		p.StealLosses++
	}
}
