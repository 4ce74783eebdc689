package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/vault-agents/docs"
	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/api/handler"
	"github.com/99minutos/vault-agents/internal/api/middleware"
)

// RouterConfig carries what the HTTP layer needs from main.
type RouterConfig struct {
	Gateway  handler.Gateway
	Sessions *auth.Registry
	Tokens   auth.TokenConfig
	// Checks are probed by /health/ready, keyed by dependency name.
	Checks map[string]handler.Check
	Logger zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(cfg.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(cfg.Logger))

	// --- Dependencies ---
	accountHandler := handler.NewAccountHandler(cfg.Gateway, cfg.Sessions, cfg.Tokens)
	agentHandler := handler.NewAgentHandler(cfg.Sessions)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions)
	streamHandler := handler.NewStreamHandler(cfg.Sessions, cfg.Logger.With().Str("component", "stream").Logger())
	authMiddleware := middleware.Auth(cfg.Tokens)

	// --- Entry points ---
	e.POST("/auth/signup", accountHandler.Signup)
	e.POST("/auth/signin", accountHandler.Signin)

	// --- Agents without access ---
	agent := e.Group("/agent", authMiddleware, middleware.Scope(auth.ScopeAgent))
	agent.POST("/authenticate", agentHandler.Authenticate)
	agent.DELETE("", agentHandler.Delete)

	// --- Authorized agents ---
	session := e.Group("/session", authMiddleware, middleware.Scope(auth.ScopeSession))
	session.POST("/signout", sessionHandler.Signout)
	session.POST("/tokens", sessionHandler.IssueToken)
	session.GET("/agents", sessionHandler.ListAgents)
	session.POST("/agents/:id/revoke", sessionHandler.Revoke)
	session.GET("/vault", sessionHandler.Vault)
	session.GET("/stream", streamHandler.Stream)

	e.DELETE("/account", accountHandler.Delete, authMiddleware, middleware.Scope(auth.ScopeSession))

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(cfg.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
