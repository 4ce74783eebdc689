package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

type activityRecorder struct {
	agents ports.AgentRepository
}

// NewActivityRecorder writes last-seen timestamps. Activity of agents that no
// longer exist is ignored.
func NewActivityRecorder(agents ports.AgentRepository) ports.ActivityRecorder {
	return &activityRecorder{agents: agents}
}

func (r *activityRecorder) Record(ctx context.Context, a ports.Activity) error {
	err := r.agents.Touch(ctx, a.AccountID, a.AgentID, a.At)
	if errors.Is(err, domain.ErrAgentNotFound) {
		return nil
	}
	return err
}

type inlineActivity struct {
	recorder ports.ActivityRecorder
	log      zerolog.Logger
}

func (s inlineActivity) Enqueue(a ports.Activity) {
	if err := s.recorder.Record(context.Background(), a); err != nil {
		s.log.Warn().Err(err).Str("account_id", a.AccountID).Str("agent_id", a.AgentID).Msg("failed to record activity")
	}
}
