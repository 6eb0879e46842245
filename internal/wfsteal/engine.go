package wfsteal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
)

// stealSubject is the NATS request/reply subject for a steal exchange
// against a specific peer; heartbeats ride a separate fan-out subject.
func stealSubject(workspace, peerID string) string {
	return fmt.Sprintf("weaveforge.steal.%s.%s", workspace, peerID)
}

func heartbeatSubject(workspace string) string {
	return fmt.Sprintf("weaveforge.peers.%s", workspace)
}

// StealRequest is the wire message a thief sends a victim.
type StealRequest struct {
	ThiefID     string `json:"thief_id"`
	VictimID    string `json:"victim_id"`
	MinPriority int    `json:"min_priority"`
}

// StealResponse is what a victim replies with; Action is nil when the
// victim had nothing eligible to give up.
type StealResponse struct {
	Action *core.ActionRequest `json:"action,omitempty"`
}

// Engine drives steal attempts for one worker (the "thief"). Each victim
// gets its own circuit breaker so a single unresponsive peer can trip open
// without affecting steal attempts against healthy peers.
type Engine struct {
	conn      *nats.Conn
	workspace string
	registry  *PeerRegistry
	breakers  map[string]*gobreaker.CircuitBreaker
	maxRetry  int
}

// NewEngine connects to a NATS server and builds a steal engine scoped to
// workspace. registry must already be populated via heartbeat subscription
// (see Subscribe).
func NewEngine(natsURL, workspace string, registry *PeerRegistry, maxRetry int) (*Engine, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, &wferrors.NetworkError{Peer: natsURL, Msg: "connecting to nats", Err: err}
	}
	return &Engine{
		conn:      conn,
		workspace: workspace,
		registry:  registry,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		maxRetry:  maxRetry,
	}, nil
}

func (e *Engine) breakerFor(peerID string) *gobreaker.CircuitBreaker {
	if b, ok := e.breakers[peerID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "steal-" + peerID,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	e.breakers[peerID] = b
	return b
}

// Heartbeat publishes this worker's current queue depth so peers' registries
// stay current.
func (e *Engine) Heartbeat(selfID string, queueDepth int) error {
	payload, _ := json.Marshal(Peer{ID: selfID, QueueDepth: queueDepth, LastSeen: time.Now()})
	return e.conn.Publish(heartbeatSubject(e.workspace), payload)
}

// Subscribe wires incoming heartbeats from peers into registry.
func (e *Engine) Subscribe() (*nats.Subscription, error) {
	return e.conn.Subscribe(heartbeatSubject(e.workspace), func(msg *nats.Msg) {
		var p Peer
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		e.registry.Heartbeat(p.ID, p.QueueDepth, time.Now())
	})
}

// ServeSteals answers incoming steal requests for this worker by pulling
// from localDeque's head (never its tail, so a steal never competes with
// the owner for its own most recent item).
func (e *Engine) ServeSteals(selfID string, localDeque interface {
	StealTop() *core.ActionRequest
}) (*nats.Subscription, error) {
	return e.conn.Subscribe(stealSubject(e.workspace, selfID), func(msg *nats.Msg) {
		var req StealRequest
		resp := StealResponse{}
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			resp.Action = localDeque.StealTop()
		}
		payload, _ := json.Marshal(resp)
		_ = msg.Respond(payload)
	})
}

// Steal attempts to take one action from victimID, retrying transient
// failures with base*2^attempt backoff up to maxRetry times. A NetworkError
// (timeout, no response) marks the peer dead in the registry immediately
// and is never retried past the circuit breaker's own judgment.
func (e *Engine) Steal(ctx context.Context, thiefID, victimID string, minPriority int) (*core.ActionRequest, error) {
	breaker := e.breakerFor(victimID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond

	var result *core.ActionRequest
	for attempt := 0; attempt < e.maxRetry; attempt++ {
		v, err := breaker.Execute(func() (interface{}, error) {
			return e.doSteal(ctx, thiefID, victimID, minPriority)
		})
		if err == nil {
			result, _ = v.(*core.ActionRequest)
			e.registry.RecordStealOutcome(victimID, result != nil)
			return result, nil
		}
		if _, ok := err.(*wferrors.NetworkError); ok {
			e.registry.Forget(victimID)
			return nil, err
		}
		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, &wferrors.NetworkError{Peer: victimID, Msg: "exhausted retries"}
}

func (e *Engine) doSteal(ctx context.Context, thiefID, victimID string, minPriority int) (*core.ActionRequest, error) {
	payload, err := json.Marshal(StealRequest{ThiefID: thiefID, VictimID: victimID, MinPriority: minPriority})
	if err != nil {
		return nil, err
	}
	msg, err := e.conn.RequestWithContext(ctx, stealSubject(e.workspace, victimID), payload)
	if err != nil {
		return nil, &wferrors.NetworkError{Peer: victimID, Msg: "steal request failed", Err: err}
	}
	var resp StealResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, &wferrors.NetworkError{Peer: victimID, Msg: "malformed steal response", Err: err}
	}
	return resp.Action, nil
}

// Close drains and closes the underlying NATS connection.
func (e *Engine) Close() { e.conn.Close() }
