package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	colItems        = "items"
	colWindows      = "availability_windows"
	colClaims       = "availability_claims"
	colReservations = "reservations"
	colAccounts     = "payment_accounts"
	colPayments     = "payments"
	colRefunds      = "payment_refunds"
	colOutbox       = "app_outbox"
	colIdempotency  = "app_idempotency"
)

type Client struct {
	DB *mongo.Database
}

// New connects to uri. Transactions need a replica set, a single node started with --replSet works.
func New(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureSchema creates collections up front, since they cannot be created inside a transaction on
// older servers, and the indexes every query relies on.
func (c *Client) EnsureSchema(ctx context.Context) error {
	existing, err := c.DB.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}
	for _, name := range []string{colItems, colWindows, colClaims, colReservations, colAccounts, colPayments, colRefunds, colOutbox, colIdempotency} {
		if have[name] {
			continue
		}
		if err := c.DB.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	indexes := map[string][]mongo.IndexModel{
		colWindows: {{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "date", Value: 1}, {Key: "slot", Value: 1}}}},
		colReservations: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "guest_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colPayments: {{Keys: bson.D{{Key: "reservation_id", Value: 1}, {Key: "created_at", Value: 1}}}},
		colRefunds:  {{Keys: bson.D{{Key: "reservation_id", Value: 1}, {Key: "created_at", Value: 1}}}},
		colOutbox:   {{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}}},
	}
	for name, models := range indexes {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}
	}
	return nil
}
