package service

import (
	"context"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

// LocalAgent is the restricted facade of an agent without access: it can
// spend a token to become authorized, or delete itself.
type LocalAgent struct {
	gw        *Gateway
	accountID string
	id        string
	state     domain.AgentState
}

func (l *LocalAgent) AgentID() string   { return l.id }
func (l *LocalAgent) AccountID() string { return l.accountID }

// State is the agent state observed at signin.
func (l *LocalAgent) State() domain.AgentState { return l.state }

// Revoked reports whether signin found a revocation mark on this agent.
func (l *LocalAgent) Revoked() bool { return l.state == domain.StateRevoked }

func (*LocalAgent) access() {}

// Authenticate spends a token issued by an authorized agent of the same
// account. On success the agent signs in again to open its session.
func (l *LocalAgent) Authenticate(ctx context.Context, token string) (SigninFunc, error) {
	if err := l.gw.auth.Authenticate(ctx, l.accountID, l.id, token); err != nil {
		return nil, err
	}
	return l.gw.signinAs(l.id), nil
}

// Delete removes this agent's record. It can never remove an authorized
// agent, so it cannot lock the user out.
func (l *LocalAgent) Delete(ctx context.Context) (SigninFunc, error) {
	if err := l.gw.agents.Delete(ctx, l.accountID, l.id, l.id); err != nil {
		return nil, err
	}
	return l.gw.Signin, nil
}
