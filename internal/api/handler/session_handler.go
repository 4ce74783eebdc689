package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/api/metrics"
)

// SessionHandler serves the routes of an authorized agent.
type SessionHandler struct {
	sessions *auth.Registry
}

func NewSessionHandler(sessions *auth.Registry) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Signout ends the session. The agent stays authorized.
//
// @Summary      Sign out
// @Tags         session
// @Security     BearerAuth
// @Success      204
// @Failure      401   {object}  errorResponse
// @Router       /session/signout [post]
func (h *SessionHandler) Signout(c echo.Context) error {
	s, sid, err := currentSession(c, h.sessions)
	if err != nil {
		return err
	}
	if _, err := s.Signout(c.Request().Context()); err != nil {
		return err
	}
	h.sessions.Remove(sid)
	return c.NoContent(http.StatusNoContent)
}

// IssueToken mints a token that lets a new agent join the account.
//
// @Summary      Issue an auth token
// @Tags         session
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      credentialsRequest  true  "Account credentials"
// @Success      201   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /session/tokens [post]
func (h *SessionHandler) IssueToken(c echo.Context) error {
	s, _, err := currentSession(c, h.sessions)
	if err != nil {
		return err
	}
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	t, err := s.IssueToken(c.Request().Context(), req.toDomain())
	if err != nil {
		return err
	}
	metrics.TokensIssuedTotal.Inc()
	return c.JSON(http.StatusCreated, tokenResponse{Token: t.Secret, ExpiresAt: t.ExpiresAt})
}

// ListAgents returns the authorized agents of the account.
//
// @Summary      List authorized agents
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  agentsResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /session/agents [get]
func (h *SessionHandler) ListAgents(c echo.Context) error {
	s, _, err := currentSession(c, h.sessions)
	if err != nil {
		return err
	}
	agents, err := s.ListAgents(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agentsResponse{Agents: agents})
}

// Revoke strips another agent of its access.
//
// @Summary      Revoke an agent
// @Tags         session
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string              true  "Agent id"
// @Param        body  body      credentialsRequest  true  "Account credentials"
// @Success      200   {object}  agentsResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /session/agents/{id}/revoke [post]
func (h *SessionHandler) Revoke(c echo.Context) error {
	s, _, err := currentSession(c, h.sessions)
	if err != nil {
		return err
	}
	target := c.Param("id")
	if target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	remaining, err := s.Revoke(c.Request().Context(), target, req.toDomain())
	if err != nil {
		metrics.RevocationsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.RevocationsTotal.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, agentsResponse{Agents: remaining})
}

// Vault confirms the session still holds its vault handle.
//
// @Summary      Check vault access
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  vaultResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /session/vault [get]
func (h *SessionHandler) Vault(c echo.Context) error {
	s, _, err := currentSession(c, h.sessions)
	if err != nil {
		return err
	}
	if _, err := s.Vault(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, vaultResponse{AccountID: s.AccountID(), AgentID: s.AgentID(), Attached: true})
}
