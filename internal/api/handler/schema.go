package handler

import (
	"time"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/service"
)

type credentialsRequest struct {
	Username   string `json:"username"   validate:"required,max=128,printascii"`
	Passphrase string `json:"passphrase" validate:"required,max=72"`
}

func (r credentialsRequest) toDomain() domain.Credentials {
	return domain.Credentials{Username: r.Username, Passphrase: r.Passphrase}
}

type entryRequest struct {
	credentialsRequest
	// AgentID names the calling device. The server picks one when empty.
	AgentID string `json:"agent_id,omitempty" validate:"omitempty,max=128,printascii"`
}

type authenticateRequest struct {
	Token string `json:"token" validate:"required,max=64"`
}

type entryResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
	AgentID   string `json:"agent_id"`
	Scope     string `json:"scope"`
	State     string `json:"state"`
}

type stateResponse struct {
	AgentID string `json:"agent_id"`
	State   string `json:"state"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type agentsResponse struct {
	Agents []service.RemoteAgent `json:"agents"`
}

type vaultResponse struct {
	AccountID string `json:"account_id"`
	AgentID   string `json:"agent_id"`
	Attached  bool   `json:"attached"`
}

type errorResponse struct {
	Error string `json:"error"`
}
