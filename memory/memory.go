// Package memory is a thin adapter over a managed conversational-memory
// provider (C11). It owns no business logic of its own beyond
// multi-tenancy partitioning by user_id and retry-on-transient-failure;
// the provider decides what "a memory" is.
package memory

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/llm/retry"
)

// Item is a single conversational-memory record.
type Item struct {
	ID       string         `bson:"_id,omitempty" json:"memory_id"`
	UserID   string         `bson:"user_id" json:"user_id"`
	Text     string         `bson:"text" json:"memory"`
	Metadata map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Score    *float64       `bson:"-" json:"score,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}

// AddResult is one entry of the results list returned by Add.
type AddResult struct {
	ID     string `json:"id"`
	Memory string `json:"memory"`
	Event  string `json:"event"`
}

// Message is a single conversational turn handed to Add; the provider
// distills these into zero or more memory items.
type Message struct {
	Role    string
	Content string
}

// Service is the C11 memory adapter.
type Service struct {
	collection *mongo.Collection
	retryer    retry.Retryer
	logger     *zap.Logger
}

// Config configures retry behavior for the underlying Mongo calls.
type Config struct {
	RetryPolicy *retry.RetryPolicy
}

// New builds a Service backed by the given Mongo collection.
func New(collection *mongo.Collection, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.RetryPolicy
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	return &Service{
		collection: collection,
		retryer:    retry.NewBackoffRetryer(policy, logger),
		logger:     logger,
	}
}

// Add stores one memory item per message and returns a per-item result.
// Every transient Mongo failure is retried with backoff; the provider's
// own distillation-into-facts behavior is out of scope here — each
// message becomes one stored item.
func (s *Service) Add(ctx context.Context, userID string, messages []Message, metadata map[string]any) ([]AddResult, error) {
	if userID == "" {
		return nil, errs.New(errs.InvalidArgument, "user_id is required")
	}
	if len(messages) == 0 {
		return nil, errs.New(errs.InvalidArgument, "messages must not be empty")
	}

	results := make([]AddResult, 0, len(messages))
	for _, msg := range messages {
		item := Item{
			UserID:    userID,
			Text:      msg.Content,
			Metadata:  metadata,
			CreatedAt: time.Now(),
		}
		var insertedID string
		err := s.retryer.Do(ctx, func() error {
			res, err := s.collection.InsertOne(ctx, item)
			if err != nil {
				return err
			}
			if oid, ok := res.InsertedID.(bson.ObjectID); ok {
				insertedID = oid.Hex()
			}
			return nil
		})
		if err != nil {
			return nil, errs.Wrap(errs.Unavailable, err, "failed to store memory item")
		}
		results = append(results, AddResult{ID: insertedID, Memory: msg.Content, Event: "ADD"})
	}
	return results, nil
}

// Search returns up to limit memory items for user_id whose text
// contains query (case-insensitive), newest first. No relevance ranking
// is applied and Score is left unset.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]Item, error) {
	if userID == "" {
		return nil, errs.New(errs.InvalidArgument, "user_id is required")
	}
	if limit <= 0 {
		limit = 10
	}

	filter := bson.M{"user_id": userID}
	if query != "" {
		filter["text"] = bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
	}

	var items []Item
	err := s.retryer.Do(ctx, func() error {
		opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "created_at", Value: -1}})
		cursor, err := s.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		items = nil
		return cursor.All(ctx, &items)
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "failed to search memory items")
	}
	return items, nil
}

// All returns every memory item for user_id.
func (s *Service) All(ctx context.Context, userID string) ([]Item, error) {
	if userID == "" {
		return nil, errs.New(errs.InvalidArgument, "user_id is required")
	}

	var items []Item
	err := s.retryer.Do(ctx, func() error {
		cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		items = nil
		return cursor.All(ctx, &items)
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "failed to list memory items")
	}
	return items, nil
}

// Delete removes a single memory item by id.
func (s *Service) Delete(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return errs.New(errs.InvalidArgument, "memory_id is required")
	}
	oid, err := bson.ObjectIDFromHex(memoryID)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "memory_id is not a valid identifier")
	}

	var deletedCount int64
	retryErr := s.retryer.Do(ctx, func() error {
		res, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
		if err != nil {
			return err
		}
		deletedCount = res.DeletedCount
		return nil
	})
	if retryErr != nil {
		return errs.Wrap(errs.Unavailable, retryErr, "failed to delete memory item")
	}
	if deletedCount == 0 {
		return errs.Newf(errs.NotFound, "memory item %s not found", memoryID)
	}
	return nil
}
