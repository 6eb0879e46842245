package wfsteal

import "math/rand"

// Strategy selects which peer a thief should try to steal from next.
type Strategy int

const (
	Random Strategy = iota
	LeastLoaded
	MostLoaded
	PowerOfTwoChoices
	Adaptive
)

// minQueueDepthForMostLoaded: a most-loaded steal aborts below this depth —
// stealing from a peer with only a couple of queued actions risks leaving
// it starved right after the steal completes.
const minQueueDepthForMostLoaded = 4

// SelectVictim picks a peer to steal from according to strategy, returning
// ("", false) if no eligible peer exists. adaptiveRecentWinRate is the
// recent steal win-rate (0..1) used only by Adaptive to decide whether to fall
// back to Random exploration.
func SelectVictim(strategy Strategy, peers []Peer, adaptiveRecentWinRate float64) (string, bool) {
	if len(peers) == 0 {
		return "", false
	}

	switch strategy {
	case Random:
		return peers[rand.Intn(len(peers))].ID, true

	case LeastLoaded:
		best := peers[0]
		for _, p := range peers[1:] {
			if p.QueueDepth < best.QueueDepth {
				best = p
			}
		}
		return best.ID, true

	case MostLoaded:
		best := peers[0]
		for _, p := range peers[1:] {
			if p.QueueDepth > best.QueueDepth {
				best = p
			}
		}
		if best.QueueDepth < minQueueDepthForMostLoaded {
			return "", false
		}
		return best.ID, true

	case PowerOfTwoChoices:
		if len(peers) == 1 {
			return peers[0].ID, true
		}
		i, j := rand.Intn(len(peers)), rand.Intn(len(peers))
		for j == i {
			j = rand.Intn(len(peers))
		}
		a, b := peers[i], peers[j]
		if a.QueueDepth >= b.QueueDepth {
			return a.ID, true
		}
		return b.ID, true

	case Adaptive:
		// A healthy recent win rate keeps exploiting the load-aware
		// choice; a cold streak switches to Random to explore a
		// different part of the peer set before committing again.
		if adaptiveRecentWinRate >= 0.3 {
			return SelectVictim(MostLoaded, peers, 0)
		}
		return SelectVictim(Random, peers, 0)

	default:
		return "", false
	}
}
