package domain

import "time"

// AgentState is the authorization state of one agent on one account.
type AgentState string

const (
	StateUnauthorized AgentState = "unauthorized"
	StateAuthorized   AgentState = "authorized"
	StateRevoked      AgentState = "revoked"
)

// validTransitions holds the state changes an agent record may go through.
// Removal of the record is not a transition; see CanDelete.
var validTransitions = map[AgentState][]AgentState{
	StateUnauthorized: {StateAuthorized},
	StateAuthorized:   {StateRevoked},
}

// CanTransitionTo reports whether a transition from s to next is valid.
func (s AgentState) CanTransitionTo(next AgentState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanDelete reports whether an agent in state s may remove its own record.
// Authorized agents never can: that path would allow a lock-out.
func (s AgentState) CanDelete() bool {
	return s == StateUnauthorized || s == StateRevoked
}

// Agent is one client device attached to an account. Seq preserves
// registration order within the account.
type Agent struct {
	AccountID string     `json:"account_id"`
	ID        string     `json:"id"`
	State     AgentState `json:"state"`
	Seq       int64      `json:"seq"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  time.Time  `json:"last_seen"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	RevokedBy string     `json:"revoked_by,omitempty"`
}

// Revoked reports whether the agent carries a revocation mark.
func (a *Agent) Revoked() bool {
	return a.State == StateRevoked
}
