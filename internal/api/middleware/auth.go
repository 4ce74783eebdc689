package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/vault-agents/internal/api/auth"
)

// Context keys set by Auth.
const (
	KeyAccountID = "account_id"
	KeyAgentID   = "agent_id"
	KeySessionID = "sid"
	KeyScope     = "scope"
)

// Auth validates the bearer token and injects its claims into context.
// Browsers cannot set headers on a websocket upgrade, so the token is also
// accepted from the access_token query parameter.
func Auth(cfg auth.TokenConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearer(c)
			if err != nil {
				return err
			}

			claims, err := auth.VerifyToken(raw, cfg)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(KeyAccountID, claims.AccountID)
			c.Set(KeyAgentID, claims.AgentID)
			c.Set(KeySessionID, claims.SessionID)
			c.Set(KeyScope, claims.Scope)

			return next(c)
		}
	}
}

func bearer(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if q := c.QueryParam("access_token"); q != "" {
			return q, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}
