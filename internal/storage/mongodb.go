// mongodb.go - MongoDB connection and the resolution decision journal

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const decisionsCollection = "resolution_decisions"

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB(uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(dbName)
	zap.L().Info("connected to MongoDB", zap.String("database", dbName))
	return mongoDB, nil
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
		mongoClient, mongoDB = nil, nil
		zap.L().Info("MongoDB connection closed")
	}
}

// Decision is one journaled resolution step
type Decision struct {
	RequestID  string            `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Action     string            `bson:"action" json:"action"` // resolve, confirm, reject, confirm_new
	Kind       common.EntityKind `bson:"kind" json:"kind"`
	Query      string            `bson:"query" json:"query"`
	Normalized string            `bson:"normalized" json:"normalized"`
	Outcome    string            `bson:"outcome" json:"outcome"`
	EntityID   *uint             `bson:"entity_id,omitempty" json:"entity_id,omitempty"`
	Score      float64           `bson:"score" json:"score"`
	Candidates []DecisionOption  `bson:"candidates,omitempty" json:"candidates,omitempty"`
	Error      string            `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt  time.Time         `bson:"created_at" json:"created_at"`
}

// DecisionOption is a candidate shown with a decision
type DecisionOption struct {
	EntityID uint    `bson:"entity_id" json:"entity_id"`
	Score    float64 `bson:"score" json:"score"`
}

// DecisionJournal records resolution decisions for audit
type DecisionJournal interface {
	Record(ctx context.Context, d Decision) error
}

// NopJournal discards decisions
type NopJournal struct{}

func (NopJournal) Record(context.Context, Decision) error { return nil }

// MongoJournal appends decisions to resolution_decisions
type MongoJournal struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoJournal(db *mongo.Database) *MongoJournal {
	return &MongoJournal{collection: db.Collection(decisionsCollection), timeout: 5 * time.Second}
}

// EnsureIndexes creates the lookup index used by History
func (j *MongoJournal) EnsureIndexes(ctx context.Context) error {
	_, err := j.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kind", Value: 1}, {Key: "normalized", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create journal index: %w", err)
	}
	return nil
}

func (j *MongoJournal) Record(ctx context.Context, d Decision) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if _, err := j.collection.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("failed to journal decision: %w", err)
	}
	return nil
}

// History returns the latest decisions taken for one normalized name
func (j *MongoJournal) History(ctx context.Context, kind common.EntityKind, normalized string, limit int64) ([]Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := j.collection.Find(ctx, bson.M{"kind": kind, "normalized": normalized}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", decisionsCollection, err)
	}
	defer cursor.Close(ctx)

	var results []Decision
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
