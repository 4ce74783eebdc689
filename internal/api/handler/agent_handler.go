package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/api/metrics"
	"github.com/99minutos/vault-agents/internal/core/domain"
)

// AgentHandler serves the restricted routes of an agent without access.
type AgentHandler struct {
	sessions *auth.Registry
}

func NewAgentHandler(sessions *auth.Registry) *AgentHandler {
	return &AgentHandler{sessions: sessions}
}

// Authenticate spends a token issued by another agent of the account. On
// success the agent token is retired and the agent signs in again.
//
// @Summary      Authenticate this agent with a token
// @Tags         agent
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      authenticateRequest  true  "Token read from an authorized agent"
// @Success      200   {object}  stateResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /agent/authenticate [post]
func (h *AgentHandler) Authenticate(c echo.Context) error {
	l, sid, err := currentAgent(c, h.sessions)
	if err != nil {
		return err
	}
	var req authenticateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if _, err := l.Authenticate(c.Request().Context(), req.Token); err != nil {
		metrics.AuthenticationsTotal.WithLabelValues(authenticateResult(err)).Inc()
		return err
	}
	metrics.AuthenticationsTotal.WithLabelValues("ok").Inc()
	h.sessions.Remove(sid)

	return c.JSON(http.StatusOK, stateResponse{AgentID: l.AgentID(), State: string(domain.StateAuthorized)})
}

// Delete removes this agent's record. Authorized agents cannot use it.
//
// @Summary      Delete this agent
// @Tags         agent
// @Security     BearerAuth
// @Success      204
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /agent [delete]
func (h *AgentHandler) Delete(c echo.Context) error {
	l, sid, err := currentAgent(c, h.sessions)
	if err != nil {
		return err
	}
	if _, err := l.Delete(c.Request().Context()); err != nil {
		return err
	}
	h.sessions.Remove(sid)
	return c.NoContent(http.StatusNoContent)
}

func authenticateResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrAuthenticationFailure):
		return "failure"
	default:
		return "error"
	}
}
