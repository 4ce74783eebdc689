package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

// Access is what Signin hands back: a *LocalAgent while the agent still
// needs a token, or a *Session once it is authorized.
type Access interface {
	AgentID() string
	access()
}

// SignupFunc and SigninFunc are the entry points returned once a facade is
// done with, so the caller can start over.
type (
	SignupFunc func(ctx context.Context, creds domain.Credentials, opts ...Option) (*Session, error)
	SigninFunc func(ctx context.Context, creds domain.Credentials, opts ...Option) (Access, error)
)

// Options tune Signup and Signin.
type Options struct {
	// ID identifies this agent to its user, e.g. "Android Chrome bbbc".
	ID string
}

type Option func(*Options)

// WithID sets the agent identification string.
func WithID(id string) Option {
	return func(o *Options) { o.ID = id }
}

// Deps are the collaborators a Gateway is built from.
type Deps struct {
	Accounts ports.AccountRepository
	Agents   ports.AgentRepository
	Tokens   ports.TokenStore
	Locker   ports.AccountLocker
	Vaults   ports.VaultService
	// Activity receives last-seen updates. When nil they are written inline.
	Activity   ports.ActivitySink
	BcryptCost int
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Logger is the base logger; every part of the gateway tags its own
	// component field on it.
	Logger zerolog.Logger
}

// Gateway owns the registries of one deployment and exposes the signup and
// signin entry points.
type Gateway struct {
	accounts *AccountRegistry
	agents   *AgentRegistry
	tokens   *TokenIssuer
	auth     *Authorizer
	presence *PresenceTracker
	locker   ports.AccountLocker
	vaults   ports.VaultService
	activity ports.ActivitySink
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

func NewGateway(d Deps) *Gateway {
	now := d.Clock
	if now == nil {
		now = time.Now
	}

	accounts := NewAccountRegistry(d.Accounts, d.Agents, d.Locker, d.BcryptCost, component(d.Logger, "accounts"))
	accounts.now = now
	agents := NewAgentRegistry(d.Accounts, d.Agents, d.Locker, component(d.Logger, "agents"))
	agents.now = now
	tokens := NewTokenIssuer(d.Tokens, d.Agents, d.Locker, component(d.Logger, "tokens"))
	tokens.now = now
	presence := NewPresenceTracker(component(d.Logger, "presence"))

	activity := d.Activity
	if activity == nil {
		activity = inlineActivity{recorder: NewActivityRecorder(d.Agents), log: component(d.Logger, "activity")}
	}

	return &Gateway{
		accounts: accounts,
		agents:   agents,
		tokens:   tokens,
		auth:     NewAuthorizer(accounts, agents, tokens, presence, d.Locker, component(d.Logger, "authorizer")),
		presence: presence,
		locker:   d.Locker,
		vaults:   d.Vaults,
		activity: activity,
		validate: validator.New(),
		now:      now,
		log:      component(d.Logger, "gateway"),
	}
}

func component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Signup creates an account and its first agent, and opens that agent's
// session. It fails with domain.ErrConflict when the username is taken.
func (g *Gateway) Signup(ctx context.Context, creds domain.Credentials, opts ...Option) (*Session, error) {
	o := g.options(opts)
	if err := g.check(creds, o.ID); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	account, agent, err := g.accounts.Create(ctx, creds, o.ID)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	s, err := g.open(ctx, account.ID, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	return s, nil
}

// Signin checks creds and returns a *Session for an authorized agent or a
// *LocalAgent for one that is new, waiting for a token, or revoked.
func (g *Gateway) Signin(ctx context.Context, creds domain.Credentials, opts ...Option) (Access, error) {
	o := g.options(opts)
	if err := g.check(creds, o.ID); err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}

	account, err := g.accounts.Verify(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}
	agent, err := g.agents.Register(ctx, account.ID, o.ID)
	if err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}

	if agent.State != domain.StateAuthorized {
		g.log.Info().
			Str("account_id", account.ID).
			Str("agent_id", agent.ID).
			Str("state", string(agent.State)).
			Msg("restricted signin")
		return &LocalAgent{gw: g, accountID: account.ID, id: agent.ID, state: agent.State}, nil
	}

	s, err := g.open(ctx, account.ID, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}
	return s, nil
}

// signinAs is Signin with the agent id defaulting to agentID.
func (g *Gateway) signinAs(agentID string) SigninFunc {
	return func(ctx context.Context, creds domain.Credentials, opts ...Option) (Access, error) {
		return g.Signin(ctx, creds, append([]Option{WithID(agentID)}, opts...)...)
	}
}

func (g *Gateway) open(ctx context.Context, accountID, agentID string) (*Session, error) {
	vault, err := g.vaults.Attach(ctx, accountID, agentID)
	if err != nil {
		return nil, domain.Unavailable("attach vault", err)
	}
	s := newSession(g, accountID, agentID, vault)
	g.touch(accountID, agentID)

	g.log.Info().Str("account_id", accountID).Str("agent_id", agentID).Msg("session opened")
	return s, nil
}

func (g *Gateway) touch(accountID, agentID string) {
	g.activity.Enqueue(ports.Activity{AccountID: accountID, AgentID: agentID, At: g.now().UTC()})
}

func (g *Gateway) options(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o.ID = strings.TrimSpace(o.ID)
	if o.ID == "" {
		o.ID = defaultAgentID()
	}
	return o
}

func (g *Gateway) check(creds domain.Credentials, agentID string) error {
	if err := g.validate.Struct(creds); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidInput, strings.ToLower(ve[0].Field()), ve[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := g.validate.Var(agentID, "required,max=128,printascii"); err != nil {
		return fmt.Errorf("%w: invalid agent id", domain.ErrInvalidInput)
	}
	return nil
}

// defaultAgentID names an agent after its host plus a short random suffix.
func defaultAgentID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "agent"
	}
	return host + " " + strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}
