package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

// RemoteAgent is an authorized agent as seen from another session.
type RemoteAgent struct {
	ID       string    `json:"id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`

	session *Session
}

// Revoke revokes this agent on behalf of the session that listed it and
// returns the agents still authorized.
func (r RemoteAgent) Revoke(ctx context.Context, creds domain.Credentials) ([]RemoteAgent, error) {
	return r.session.Revoke(ctx, r.ID, creds)
}

// Session is the facade of one authorized agent. Revocation is noticed
// lazily: the next call after it fails with domain.ErrRevoked and ends the
// session.
type Session struct {
	gw        *Gateway
	accountID string
	agentID   string
	vault     ports.Vault

	ctx        context.Context
	cancel     context.CancelFunc
	disconnect func()
	endOnce    sync.Once
	// reason is what calls after the end report. Written before cancel.
	reason error
}

func newSession(g *Gateway, accountID, agentID string, vault ports.Vault) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		gw:         g,
		accountID:  accountID,
		agentID:    agentID,
		vault:      vault,
		ctx:        ctx,
		cancel:     cancel,
		disconnect: g.presence.Connect(accountID, agentID),
	}
}

func (s *Session) AgentID() string   { return s.agentID }
func (s *Session) AccountID() string { return s.accountID }

func (*Session) access() {}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Vault returns the vault handle while the agent is still authorized.
func (s *Session) Vault(ctx context.Context) (ports.Vault, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	return s.vault, nil
}

// ListAgents returns the authorized agents of the account.
func (s *Session) ListAgents(ctx context.Context) ([]RemoteAgent, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	agents, err := s.gw.agents.ListAuthorized(ctx, s.accountID)
	if err != nil {
		return nil, err
	}
	return s.remotes(agents), nil
}

// Agents streams the authorized agents of the account, current list first,
// then a new list whenever an agent is authorized, revoked or removed.
func (s *Session) Agents(ctx context.Context) (<-chan []RemoteAgent, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	ctx, stop := s.bind(ctx)

	var statuses <-chan []AgentStatus
	err := withAccountLock(ctx, s.locker(), s.accountID, func() error {
		agents, err := s.gw.agents.listAuthorized(ctx, s.accountID)
		if err != nil {
			return err
		}
		s.gw.presence.SetAuthorized(s.accountID, agents)
		statuses = s.gw.presence.SubscribeAgents(ctx, s.accountID)
		return nil
	})
	if err != nil {
		stop()
		return nil, err
	}

	out := make(chan []RemoteAgent)
	go func() {
		defer close(out)
		defer stop()
		for list := range statuses {
			if !listed(list, s.agentID) {
				// Dropped from the authorized set: a revoked session must not
				// see further snapshots.
				if err := s.authorize(ctx); err != nil {
					return
				}
			}
			remote := make([]RemoteAgent, len(list))
			for i, st := range list {
				remote[i] = RemoteAgent{ID: st.ID, Online: st.Online, LastSeen: st.LastSeen, session: s}
			}
			select {
			case out <- remote:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Online streams whether this agent is reachable: true while a session of
// it is alive, false once the last one ends or it is revoked. The channel
// closes when ctx is done or the session ends.
func (s *Session) Online(ctx context.Context) (<-chan bool, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	ctx, stop := s.bind(ctx)
	flags := s.gw.presence.SubscribeOnline(ctx, s.accountID, s.agentID)

	out := make(chan bool)
	go func() {
		defer close(out)
		defer stop()
		for v := range flags {
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
			// This session is live, so going offline means it was forced out.
			if !v && s.authorize(ctx) != nil {
				return
			}
		}
	}()
	return out, nil
}

// IssueToken mints one token after checking creds against the account.
func (s *Session) IssueToken(ctx context.Context, creds domain.Credentials) (*domain.AuthToken, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if err := s.gw.accounts.VerifyOwner(ctx, s.accountID, creds); err != nil {
		return nil, err
	}
	t, err := s.gw.tokens.Issue(ctx, s.accountID, s.agentID)
	if err != nil {
		s.endIfLost(ctx, err)
		return nil, err
	}
	return t, nil
}

// TokenStream emits a fresh token for every valid proof read from creds.
// It ends when creds closes, ctx is done, or the session ends.
func (s *Session) TokenStream(ctx context.Context, creds <-chan domain.Credentials) <-chan TokenEvent {
	ctx, stop := s.bind(ctx)
	verify := func(ctx context.Context, c domain.Credentials) error {
		return s.gw.accounts.VerifyOwner(ctx, s.accountID, c)
	}
	events := s.gw.tokens.Stream(ctx, s.accountID, s.agentID, creds, verify)

	out := make(chan TokenEvent)
	go func() {
		defer close(out)
		defer stop()
		for ev := range events {
			if ev.Err == nil {
				s.gw.touch(s.accountID, s.agentID)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			s.endIfLost(ctx, ev.Err)
		}
	}()
	return out
}

// Revoke revokes another agent of the account and returns the agents still
// authorized. An agent cannot revoke itself.
func (s *Session) Revoke(ctx context.Context, targetID string, creds domain.Credentials) ([]RemoteAgent, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	remaining, err := s.gw.auth.Revoke(ctx, s.accountID, s.agentID, targetID, creds)
	if err != nil {
		s.endIfLost(ctx, err)
		return nil, err
	}
	return s.remotes(remaining), nil
}

// DeleteAccount deletes the account with all of its agents and tokens, ends
// this session and returns the signup entry point.
func (s *Session) DeleteAccount(ctx context.Context, creds domain.Credentials) (SignupFunc, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if err := s.gw.auth.DeleteAccount(ctx, s.accountID, s.agentID, creds); err != nil {
		s.endIfLost(ctx, err)
		return nil, err
	}
	s.end(ctx)
	return s.gw.Signup, nil
}

// Signout ends the session without touching the agent's authorization and
// returns the signin entry point for this agent.
func (s *Session) Signout(ctx context.Context) (SigninFunc, error) {
	s.end(ctx)
	return s.gw.signinAs(s.agentID), nil
}

// authorize confirms the agent still holds access, ending the session when
// it does not.
func (s *Session) authorize(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return s.reason
	}
	if _, err := authorizedAgent(ctx, s.gw.agents.agents, s.accountID, s.agentID); err != nil {
		s.endIfLost(ctx, err)
		return err
	}
	s.gw.touch(s.accountID, s.agentID)
	return nil
}

func (s *Session) endIfLost(ctx context.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRevoked):
		s.endWith(ctx, domain.ErrSessionRevoked)
	case errors.Is(err, domain.ErrUnauthorized):
		s.end(ctx)
	}
}

// end releases presence, the vault handle and every stream of the session.
func (s *Session) end(ctx context.Context) {
	s.endWith(ctx, domain.ErrSessionEnded)
}

func (s *Session) endWith(ctx context.Context, reason error) {
	s.endOnce.Do(func() {
		s.reason = reason
		s.disconnect()
		s.cancel()
		if err := s.vault.Detach(context.WithoutCancel(ctx)); err != nil {
			s.gw.log.Warn().Err(err).Str("account_id", s.accountID).Str("agent_id", s.agentID).Msg("failed to detach vault")
		}
		s.gw.log.Info().Str("account_id", s.accountID).Str("agent_id", s.agentID).Msg("session ended")
	})
}

// bind derives a context that is also cancelled when the session ends.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stopAfter()
		cancel()
	}
}

func listed(list []AgentStatus, agentID string) bool {
	for _, a := range list {
		if a.ID == agentID {
			return true
		}
	}
	return false
}

func (s *Session) locker() ports.AccountLocker { return s.gw.locker }

func (s *Session) remotes(agents []*domain.Agent) []RemoteAgent {
	out := make([]RemoteAgent, len(agents))
	for i, a := range agents {
		out[i] = RemoteAgent{
			ID:       a.ID,
			Online:   s.gw.presence.Online(s.accountID, a.ID),
			LastSeen: a.LastSeen,
			session:  s,
		}
	}
	return out
}
