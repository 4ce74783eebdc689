package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

func TestResolveError_DomainMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("signup: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("signin: %w", domain.ErrAuthentication), http.StatusUnauthorized},
		{fmt.Errorf("authenticate agent: %w", domain.ErrAuthenticationFailure), http.StatusUnauthorized},
		{domain.ErrRevoked, http.StatusForbidden},
		{domain.ErrSessionEnded, http.StatusForbidden},
		{domain.ErrSessionRevoked, http.StatusForbidden},
		{fmt.Errorf("create account: %w", domain.ErrConflict), http.StatusConflict},
		{domain.ErrSelfRevocation, http.StatusUnprocessableEntity},
		{domain.ErrAgentNotFound, http.StatusNotFound},
		{domain.Unavailable("load agent", fmt.Errorf("connection refused")), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
		{echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
	}

	e := echo.New()
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		code, _ := resolveError(tc.err, zerolog.Nop(), c)
		if code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, code)
		}
	}
}

func TestHTTPErrorHandler_HidesInternalDetails(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(fmt.Errorf("dial tcp 10.0.0.1: secret detail"), c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"error\":\"internal server error\"}\n" {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHTTPErrorHandler_InvalidTransitionIsGeneric(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/session/agents/A1/revoke", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := fmt.Errorf("revoke agent: %w", domain.ErrSelfRevocation)
	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"error\":\"invalid state transition\"}\n" {
		t.Fatalf("unexpected body: %s", body)
	}
}
