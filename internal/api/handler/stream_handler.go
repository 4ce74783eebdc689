package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/api/metrics"
	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/service"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 25 * time.Second
)

// Frame types exchanged on the session stream.
const (
	frameAgents      = "agents"
	frameOnline      = "online"
	frameToken       = "token"
	frameError       = "error"
	frameCredentials = "credentials"
)

type streamFrame struct {
	Type      string                `json:"type"`
	Agents    []service.RemoteAgent `json:"agents,omitempty"`
	Online    *bool                 `json:"online,omitempty"`
	Token     string                `json:"token,omitempty"`
	ExpiresAt *time.Time            `json:"expires_at,omitempty"`
	Error     string                `json:"error,omitempty"`
}

type clientFrame struct {
	Type       string `json:"type"`
	Username   string `json:"username"`
	Passphrase string `json:"passphrase"`
}

// StreamHandler pushes agent-list snapshots and the online flag of the
// session over a websocket, and answers every credentials frame with a
// fresh auth token.
type StreamHandler struct {
	sessions *auth.Registry
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewStreamHandler(sessions *auth.Registry, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Stream upgrades the request to a websocket bound to the session.
//
// @Summary      Session event stream
// @Tags         session
// @Security     BearerAuth
// @Param        access_token  query  string  false  "Bearer token for clients that cannot set headers"
// @Success      101
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /session/stream [get]
func (h *StreamHandler) Stream(c echo.Context) error {
	s, _, err := currentSession(c, h.sessions)
	if err != nil {
		return err
	}

	// Subscribe before upgrading so a lost session still gets a JSON error.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()
	agents, err := s.Agents(ctx)
	if err != nil {
		return err
	}
	online, err := s.Online(ctx)
	if err != nil {
		return err
	}
	proofs := make(chan domain.Credentials)
	tokens := s.TokenStream(ctx, proofs)

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the client.
		return nil
	}
	defer ws.Close()

	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	log := h.log.With().Str("account_id", s.AccountID()).Str("agent_id", s.AgentID()).Logger()
	log.Debug().Msg("stream opened")

	go h.readLoop(ctx, cancel, ws, proofs)
	h.writeLoop(ctx, ws, agents, online, tokens, log)

	log.Debug().Msg("stream closed")
	return nil
}

// readLoop forwards credentials frames to the token stream. It cancels the
// stream once the client goes away.
func (h *StreamHandler) readLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, proofs chan<- domain.Credentials) {
	defer cancel()
	defer close(proofs)

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in clientFrame
		if err := ws.ReadJSON(&in); err != nil {
			return
		}
		if in.Type != frameCredentials {
			continue
		}
		select {
		case proofs <- domain.Credentials{Username: in.Username, Passphrase: in.Passphrase}:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop is the only writer on ws.
func (h *StreamHandler) writeLoop(
	ctx context.Context,
	ws *websocket.Conn,
	agents <-chan []service.RemoteAgent,
	online <-chan bool,
	tokens <-chan service.TokenEvent,
	log zerolog.Logger,
) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var frame streamFrame
		select {
		case <-ctx.Done():
			writeClose(ws, websocket.CloseNormalClosure, "")
			return
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
			continue
		case list, ok := <-agents:
			if !ok {
				// The session ended or the account is gone.
				writeClose(ws, websocket.ClosePolicyViolation, "session ended")
				return
			}
			frame = streamFrame{Type: frameAgents, Agents: list}
		case v, ok := <-online:
			if !ok {
				online = nil
				continue
			}
			frame = streamFrame{Type: frameOnline, Online: &v}
		case ev, ok := <-tokens:
			if !ok {
				tokens = nil
				continue
			}
			if ev.Err != nil {
				frame = streamFrame{Type: frameError, Error: frameErrorMessage(ev.Err)}
				break
			}
			expires := ev.ExpiresAt
			frame = streamFrame{Type: frameToken, Token: ev.Token, ExpiresAt: &expires}
			metrics.TokensIssuedTotal.Inc()
		}

		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteJSON(frame); err != nil {
			log.Debug().Err(err).Msg("stream write failed")
			return
		}
	}
}

func writeClose(ws *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func frameErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return "invalid credentials"
	case errors.Is(err, domain.ErrRevoked):
		return "agent revoked"
	case errors.Is(err, domain.ErrUnauthorized):
		return "agent not authorized"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "service unavailable"
	default:
		return "internal error"
	}
}
