package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

const agentCollection = "agents"

type AgentRepository struct {
	coll *mongo.Collection
}

func NewAgentRepository(db *mongo.Database) *AgentRepository {
	return &AgentRepository{coll: db.Collection(agentCollection)}
}

type mongoAgent struct {
	AccountID string `bson:"account_id"`
	AgentID   string `bson:"agent_id"`
	State     string `bson:"state"`
	Seq       int64  `bson:"seq"`
	CreatedAt int64  `bson:"created_at"`
	LastSeen  int64  `bson:"last_seen"`
	RevokedAt int64  `bson:"revoked_at,omitempty"`
	RevokedBy string `bson:"revoked_by,omitempty"`
}

func toMongoAgent(a *domain.Agent) mongoAgent {
	ma := mongoAgent{
		AccountID: a.AccountID,
		AgentID:   a.ID,
		State:     string(a.State),
		Seq:       a.Seq,
		CreatedAt: a.CreatedAt.UnixMilli(),
		LastSeen:  a.LastSeen.UnixMilli(),
		RevokedBy: a.RevokedBy,
	}
	if a.RevokedAt != nil {
		ma.RevokedAt = a.RevokedAt.UnixMilli()
	}
	return ma
}

func (ma mongoAgent) toDomain() *domain.Agent {
	a := &domain.Agent{
		AccountID: ma.AccountID,
		ID:        ma.AgentID,
		State:     domain.AgentState(ma.State),
		Seq:       ma.Seq,
		CreatedAt: millisToTime(ma.CreatedAt),
		LastSeen:  millisToTime(ma.LastSeen),
		RevokedBy: ma.RevokedBy,
	}
	if ma.RevokedAt != 0 {
		at := millisToTime(ma.RevokedAt)
		a.RevokedAt = &at
	}
	return a
}

func agentFilter(accountID, agentID string) bson.M {
	return bson.M{"account_id": accountID, "agent_id": agentID}
}

func (r *AgentRepository) Insert(ctx context.Context, agent *domain.Agent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, toMongoAgent(agent)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (r *AgentRepository) Find(ctx context.Context, accountID, agentID string) (*domain.Agent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var ma mongoAgent
	if err := r.coll.FindOne(ctx, agentFilter(accountID, agentID)).Decode(&ma); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("find agent: %w", err)
	}
	return ma.toDomain(), nil
}

// Update rewrites state and revocation fields; LastSeen is owned by Touch.
func (r *AgentRepository) Update(ctx context.Context, agent *domain.Agent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ma := toMongoAgent(agent)
	set := bson.M{"state": ma.State, "revoked_by": ma.RevokedBy, "revoked_at": ma.RevokedAt}
	res, err := r.coll.UpdateOne(ctx, agentFilter(agent.AccountID, agent.ID), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

func (r *AgentRepository) Touch(ctx context.Context, accountID, agentID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, agentFilter(accountID, agentID), bson.M{"$max": bson.M{"last_seen": at.UnixMilli()}})
	if err != nil {
		return fmt.Errorf("touch agent: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

func (r *AgentRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Agent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{"account_id": accountID}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoAgent
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	out := make([]*domain.Agent, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (r *AgentRepository) Delete(ctx context.Context, accountID, agentID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.coll.DeleteOne(ctx, agentFilter(accountID, agentID)); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func (r *AgentRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.coll.DeleteMany(ctx, bson.M{"account_id": accountID}); err != nil {
		return fmt.Errorf("delete agents: %w", err)
	}
	return nil
}

// EnsureIndexes makes (account_id, agent_id) unique and keeps listing by
// registration order cheap.
func (r *AgentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "agent_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "seq", Value: 1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}
