package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

// AgentStatus is one entry of an agent-list snapshot.
type AgentStatus struct {
	ID       string    `json:"id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceTracker keeps, per account, the ordered set of authorized agents
// and which of them have a live session. Subscribers get conflated
// channels: each holds at most the latest value, so publishing never waits
// on a slow reader.
type PresenceTracker struct {
	mu       sync.Mutex
	accounts map[string]*accountPresence
	seq      uint64
	log      zerolog.Logger
}

type accountPresence struct {
	seeded   bool
	agents   []AgentStatus
	sessions map[string]map[uint64]struct{}
	lists    map[*subscription[[]AgentStatus]]struct{}
	flags    map[string]map[*subscription[bool]]struct{}
}

type subscription[T any] struct {
	ch     chan T
	done   chan struct{}
	closed bool
}

func newSubscription[T any]() *subscription[T] {
	return &subscription[T]{ch: make(chan T, 1), done: make(chan struct{})}
}

// push replaces any unread value with v. The tracker mutex is held.
func (s *subscription[T]) push(v T) {
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

func (s *subscription[T]) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

func NewPresenceTracker(log zerolog.Logger) *PresenceTracker {
	return &PresenceTracker{accounts: make(map[string]*accountPresence), log: log}
}

func (t *PresenceTracker) account(accountID string) *accountPresence {
	ap, ok := t.accounts[accountID]
	if !ok {
		ap = &accountPresence{
			sessions: make(map[string]map[uint64]struct{}),
			lists:    make(map[*subscription[[]AgentStatus]]struct{}),
			flags:    make(map[string]map[*subscription[bool]]struct{}),
		}
		t.accounts[accountID] = ap
	}
	return ap
}

func (ap *accountPresence) online(agentID string) bool {
	return len(ap.sessions[agentID]) > 0
}

func (ap *accountPresence) snapshot() []AgentStatus {
	out := make([]AgentStatus, len(ap.agents))
	for i, a := range ap.agents {
		a.Online = ap.online(a.ID)
		out[i] = a
	}
	return out
}

func (ap *accountPresence) notifyFlag(agentID string, online bool) {
	for sub := range ap.flags[agentID] {
		sub.push(online)
	}
}

// SetAuthorized replaces the authorized set of an account. Snapshots go out
// only when the set of ids or their order changed.
func (t *PresenceTracker) SetAuthorized(accountID string, agents []*domain.Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ap := t.account(accountID)
	next := make([]AgentStatus, len(agents))
	for i, a := range agents {
		next[i] = AgentStatus{ID: a.ID, LastSeen: a.LastSeen}
	}
	changed := !ap.seeded || !sameIDs(ap.agents, next)
	ap.agents = next
	ap.seeded = true
	if !changed {
		return
	}
	for sub := range ap.lists {
		sub.push(ap.snapshot())
	}
}

// Connect marks one session of the agent live. The returned func ends it
// and may be called any number of times.
func (t *PresenceTracker) Connect(accountID, agentID string) (disconnect func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	id := t.seq
	ap := t.account(accountID)
	set, ok := ap.sessions[agentID]
	if !ok {
		set = make(map[uint64]struct{})
		ap.sessions[agentID] = set
	}
	wasOnline := len(set) > 0
	set[id] = struct{}{}
	if !wasOnline {
		ap.notifyFlag(agentID, true)
	}

	var once sync.Once
	return func() {
		once.Do(func() { t.disconnect(accountID, agentID, id) })
	}
}

func (t *PresenceTracker) disconnect(accountID, agentID string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ap, ok := t.accounts[accountID]
	if !ok {
		return
	}
	set := ap.sessions[agentID]
	if _, ok := set[id]; !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ap.sessions, agentID)
		ap.notifyFlag(agentID, false)
	}
}

// ForceOffline drops every live session of the agent, as after revocation.
func (t *PresenceTracker) ForceOffline(accountID, agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ap, ok := t.accounts[accountID]
	if !ok || !ap.online(agentID) {
		return
	}
	delete(ap.sessions, agentID)
	ap.notifyFlag(agentID, false)
	t.log.Debug().Str("account_id", accountID).Str("agent_id", agentID).Msg("agent forced offline")
}

// Online reports whether the agent has a live session.
func (t *PresenceTracker) Online(accountID, agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ap, ok := t.accounts[accountID]
	return ok && ap.online(agentID)
}

// SubscribeAgents streams agent-list snapshots of the account, starting with
// the current one when the account has been seeded. The channel closes when
// ctx is done or the account is dropped.
func (t *PresenceTracker) SubscribeAgents(ctx context.Context, accountID string) <-chan []AgentStatus {
	t.mu.Lock()
	ap := t.account(accountID)
	sub := newSubscription[[]AgentStatus]()
	ap.lists[sub] = struct{}{}
	if ap.seeded {
		sub.push(ap.snapshot())
	}
	t.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(ap.lists, sub)
		sub.close()
	}()
	return sub.ch
}

// SubscribeOnline streams the online flag of one agent, starting with the
// current value.
func (t *PresenceTracker) SubscribeOnline(ctx context.Context, accountID, agentID string) <-chan bool {
	t.mu.Lock()
	ap := t.account(accountID)
	sub := newSubscription[bool]()
	set, ok := ap.flags[agentID]
	if !ok {
		set = make(map[*subscription[bool]]struct{})
		ap.flags[agentID] = set
	}
	set[sub] = struct{}{}
	sub.push(ap.online(agentID))
	t.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(set, sub)
		if cur, ok := ap.flags[agentID]; ok && len(cur) == 0 {
			delete(ap.flags, agentID)
		}
		sub.close()
	}()
	return sub.ch
}

// Drop forgets an account and closes all of its subscriptions.
func (t *PresenceTracker) Drop(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ap, ok := t.accounts[accountID]
	if !ok {
		return
	}
	for agentID := range ap.sessions {
		ap.notifyFlag(agentID, false)
	}
	for sub := range ap.lists {
		sub.close()
	}
	for _, set := range ap.flags {
		for sub := range set {
			sub.close()
		}
	}
	delete(t.accounts, accountID)
}

func sameIDs(a, b []AgentStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
