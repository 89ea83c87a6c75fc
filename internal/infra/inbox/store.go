// Package inbox records which broker events a consumer has already handled.
package inbox

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"staybook/internal/app/notifications"
)

// MongoStore keeps one document per (event, consumer) pair in app_inbox.
type MongoStore struct {
	col      *mongo.Collection
	consumer string
}

func NewMongoStore(ctx context.Context, db *mongo.Database, consumer string) (*MongoStore, error) {
	col := db.Collection("app_inbox")
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &MongoStore{col: col, consumer: consumer}, nil
}

func (s *MongoStore) Seen(ctx context.Context, eventID string) (bool, error) {
	doc := bson.M{"event_id": eventID, "consumer": s.consumer, "received_at": time.Now().UTC()}
	_, err := s.col.InsertOne(ctx, doc)
	if err == nil {
		return false, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	return false, err
}

// MemoryStore is a process-local inbox that forgets ids older than TTL.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{TTL: ttl, seen: make(map[string]time.Time)}
}

func (s *MemoryStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.seen == nil {
		s.seen = make(map[string]time.Time)
	}
	if at, ok := s.seen[eventID]; ok && (s.TTL <= 0 || now.Sub(at) < s.TTL) {
		return true, nil
	}
	s.seen[eventID] = now
	if s.TTL > 0 && len(s.seen)%256 == 0 {
		for id, at := range s.seen {
			if now.Sub(at) >= s.TTL {
				delete(s.seen, id)
			}
		}
	}
	return false, nil
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var (
	_ notifications.Inbox = (*MongoStore)(nil)
	_ notifications.Inbox = (*MemoryStore)(nil)
)
