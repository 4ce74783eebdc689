package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/api/metrics"
	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/service"
)

// Gateway is the pair of entry points the account handler drives.
type Gateway interface {
	Signup(ctx context.Context, creds domain.Credentials, opts ...service.Option) (*service.Session, error)
	Signin(ctx context.Context, creds domain.Credentials, opts ...service.Option) (service.Access, error)
}

// AccountHandler serves signup, signin and account deletion.
type AccountHandler struct {
	gw       Gateway
	sessions *auth.Registry
	tokens   auth.TokenConfig
}

func NewAccountHandler(gw Gateway, sessions *auth.Registry, tokens auth.TokenConfig) *AccountHandler {
	return &AccountHandler{gw: gw, sessions: sessions, tokens: tokens}
}

// Signup creates an account with the caller as its first, authorized agent.
//
// @Summary      Create an account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      entryRequest  true  "Account credentials and agent id"
// @Success      201   {object}  entryResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/signup [post]
func (h *AccountHandler) Signup(c echo.Context) error {
	var req entryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.SignupsTotal.WithLabelValues("invalid").Inc()
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	s, err := h.gw.Signup(c.Request().Context(), req.toDomain(), service.WithID(req.AgentID))
	if err != nil {
		metrics.SignupsTotal.WithLabelValues(signupResult(err)).Inc()
		return err
	}
	metrics.SignupsTotal.WithLabelValues("ok").Inc()

	resp, err := grant(h.sessions, h.tokens, s)
	if err != nil {
		_, _ = s.Signout(context.WithoutCancel(c.Request().Context()))
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// Signin returns a session token for an authorized agent, or an agent token
// for one that still has to authenticate.
//
// @Summary      Sign in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      entryRequest  true  "Account credentials and agent id"
// @Success      200   {object}  entryResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/signin [post]
func (h *AccountHandler) Signin(c echo.Context) error {
	var req entryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	access, err := h.gw.Signin(c.Request().Context(), req.toDomain(), service.WithID(req.AgentID))
	if err != nil {
		return err
	}

	resp, err := grant(h.sessions, h.tokens, access)
	if err != nil {
		if s, ok := access.(*service.Session); ok {
			_, _ = s.Signout(context.WithoutCancel(c.Request().Context()))
		}
		return err
	}
	metrics.SigninsTotal.WithLabelValues(resp.State).Inc()
	return c.JSON(http.StatusOK, resp)
}

// Delete removes the account with all of its agents and tokens.
//
// @Summary      Delete the account
// @Tags         account
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  credentialsRequest  true  "Account credentials"
// @Success      204
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /account [delete]
func (h *AccountHandler) Delete(c echo.Context) error {
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

	if _, err := s.DeleteAccount(c.Request().Context(), req.toDomain()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func signupResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
