package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// SubmissionRepository implements SubmissionRepository using MongoDB
type SubmissionRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SubmissionRepository = (*SubmissionRepository)(nil)

// NewSubmissionRepository creates the repository and ensures its indexes
func NewSubmissionRepository(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*SubmissionRepository, error) {
	collection := db.Collection("submissions")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kindCreatedIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "kind", Value: 1},
			{Key: "created_at", Value: -1},
		},
	}
	// one waitlist entry per email
	waitlistEmailIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"kind": entities.SubmissionKindWaitlist}),
	}
	if _, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{kindCreatedIndex, waitlistEmailIndex}); err != nil {
		return nil, fmt.Errorf("failed to create submission indexes: %w", err)
	}

	return &SubmissionRepository{collection: collection, logger: logger}, nil
}

// Create implements repositories.SubmissionRepository
func (r *SubmissionRepository) Create(ctx context.Context, submission *entities.Submission) error {
	if submission == nil {
		return errors.New("submission cannot be nil")
	}
	if err := submission.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, submission); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repositories.ErrDuplicateSubmission
		}
		r.logger.Error("Failed to create submission", zap.Error(err), zap.String("kind", string(submission.Kind)))
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetByID implements repositories.SubmissionRepository
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*entities.Submission, error) {
	var submission entities.Submission
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&submission)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return &submission, nil
}

// List implements repositories.SubmissionRepository. Newest first.
func (r *SubmissionRepository) List(ctx context.Context, filter repositories.SubmissionFilter) ([]*entities.Submission, error) {
	query := bson.M{}
	if filter.Kind != nil {
		query["kind"] = *filter.Kind
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.Email != nil {
		query["email"] = *filter.Email
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]*entities.Submission, 0)
	for cursor.Next(ctx) {
		var submission entities.Submission
		if err := cursor.Decode(&submission); err != nil {
			r.logger.Error("Failed to decode submission", zap.Error(err))
			continue
		}
		result = append(result, &submission)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return result, nil
}

// Update implements repositories.SubmissionRepository
func (r *SubmissionRepository) Update(ctx context.Context, update repositories.SubmissionUpdate) (*entities.Submission, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Status != nil {
		set["status"] = *update.Status
	}
	if update.Notes != nil {
		set["notes"] = *update.Notes
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var submission entities.Submission
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": update.ID}, bson.M{"$set": set}, opts).Decode(&submission)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update submission: %w", err)
	}
	return &submission, nil
}
