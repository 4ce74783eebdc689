package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/api/metrics"
	"github.com/99minutos/vault-agents/internal/api/middleware"
	"github.com/99minutos/vault-agents/internal/core/service"
)

// ctxSID extracts the sid claim injected by the Auth middleware; its
// presence proves the middleware ran.
func ctxSID(c echo.Context) (string, error) {
	sid, _ := c.Get(middleware.KeySessionID).(string)
	if sid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return sid, nil
}

// currentSession resolves the live session behind the bearer token. A
// structurally valid token whose session has ended is rejected with 401.
func currentSession(c echo.Context, reg *auth.Registry) (*service.Session, string, error) {
	sid, err := ctxSID(c)
	if err != nil {
		return nil, "", err
	}
	s, ok := reg.Session(sid)
	if !ok {
		return nil, "", echo.NewHTTPError(http.StatusUnauthorized, "session expired")
	}
	return s, sid, nil
}

func currentAgent(c echo.Context, reg *auth.Registry) (*service.LocalAgent, string, error) {
	sid, err := ctxSID(c)
	if err != nil {
		return nil, "", err
	}
	l, ok := reg.Agent(sid)
	if !ok {
		return nil, "", echo.NewHTTPError(http.StatusUnauthorized, "signin expired")
	}
	return l, sid, nil
}

// grant registers access and signs the bearer token pointing at it.
func grant(reg *auth.Registry, cfg auth.TokenConfig, access service.Access) (entryResponse, error) {
	resp := entryResponse{AgentID: access.AgentID()}
	switch a := access.(type) {
	case *service.Session:
		resp.AccountID = a.AccountID()
		resp.Scope = auth.ScopeSession
		resp.State = "authorized"
	case *service.LocalAgent:
		resp.AccountID = a.AccountID()
		resp.Scope = auth.ScopeAgent
		resp.State = string(a.State())
	}

	sid := reg.Put(access)
	token, err := auth.CreateToken(resp.AccountID, resp.AgentID, sid, resp.Scope, cfg)
	if err != nil {
		reg.Remove(sid)
		return entryResponse{}, err
	}
	resp.Token = token

	if s, ok := access.(*service.Session); ok {
		metrics.SessionsActive.Inc()
		go func() {
			<-s.Done()
			metrics.SessionsActive.Dec()
		}()
	}
	return resp, nil
}
