package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// SessionRepository implements SessionRepository using MongoDB
type SessionRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new MongoDB session repository and ensures its indexes
func NewSessionRepository(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*SessionRepository, error) {
	collection := db.Collection("sessions")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// cleanup scans active sessions by start time
	statusStartIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "start_time", Value: 1},
		},
	}
	if _, err := collection.Indexes().CreateOne(ctx, statusStartIndex); err != nil {
		return nil, fmt.Errorf("failed to create session indexes: %w", err)
	}

	return &SessionRepository{collection: collection, logger: logger}, nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		r.logger.Error("Failed to create session", zap.Error(err), zap.String("sessionID", session.ID))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	var session entities.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

// Update implements repositories.SessionRepository
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"subject":      session.Subject,
			"end_time":     session.EndTime,
			"interactions": session.Interactions,
			"status":       session.Status,
			"messages":     session.Messages,
			"updated_at":   session.UpdatedAt,
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": session.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrSessionNotFound
	}
	return nil
}

// EndExpired implements repositories.SessionRepository
func (r *SessionRepository) EndExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now()
	filter := bson.M{
		"status":     entities.SessionStatusActive,
		"start_time": bson.M{"$lt": cutoff},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     entities.SessionStatusEnded,
			"end_time":   now,
			"updated_at": now,
		},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to end expired sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to end expired sessions: %w", err)
	}
	return result.ModifiedCount, nil
}
