package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/metrics"
)

const userEventsCollection = "user_events"

type eventDocument struct {
	EventID      string    `bson:"_id"`
	DeploymentID int64     `bson:"deployment_id"`
	UserID       *int64    `bson:"user_id,omitempty"`
	EventType    string    `bson:"event_type"`
	UserName     string    `bson:"user_name,omitempty"`
	UserEmail    string    `bson:"user_email,omitempty"`
	AuthMethod   string    `bson:"auth_method,omitempty"`
	IPAddress    string    `bson:"ip_address,omitempty"`
	OccurredAt   time.Time `bson:"occurred_at"`
}

type dayBucket struct {
	Day   string `bson:"_id"`
	Count int64  `bson:"count"`
}

// MongoStore keeps events in a MongoDB collection keyed by event id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to uri and ensures the query index exists.
func NewMongoStore(ctx context.Context, uri, databaseName string) (*MongoStore, error) {
	if uri == "" {
		return nil, ErrMissingDSN
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := newMongoStore(client, databaseName, userEventsCollection)
	_, err = s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "deployment_id", Value: 1}, {Key: "event_type", Value: 1}, {Key: "occurred_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create index: %w", err)
	}
	return s, nil
}

func newMongoStore(client *mongo.Client, databaseName, collectionName string) *MongoStore {
	return &MongoStore{
		client:     client,
		collection: client.Database(databaseName).Collection(collectionName),
	}
}

// Record implements Store.
func (s *MongoStore) Record(ctx context.Context, e model.UserEvent) (bool, error) { //nolint:gocritic // events are values
	defer observe("record", time.Now())

	doc := eventDocument{
		EventID:      e.EventID,
		DeploymentID: e.DeploymentID,
		UserID:       e.UserID,
		EventType:    string(e.Type),
		UserName:     e.UserName,
		UserEmail:    e.UserEmail,
		AuthMethod:   e.AuthMethod,
		IPAddress:    e.IPAddress,
		OccurredAt:   e.Timestamp.UTC(),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		metrics.RecordStoreError("record")
		return false, fmt.Errorf("insert event: %w", err)
	}
	return true, nil
}

// Stats implements Store.
func (s *MongoStore) Stats(ctx context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error) {
	defer observe("stats", time.Now())

	inRange := bson.M{"$gte": r.From.UTC(), "$lte": r.To.UTC()}
	filter := func(t model.EventType, ranged bool) bson.M {
		f := bson.M{"deployment_id": deploymentID, "event_type": string(t)}
		if ranged {
			f["occurred_at"] = inRange
		}
		return f
	}

	var st analytics.Stats
	var err error
	if st.Signups, err = s.collection.CountDocuments(ctx, filter(model.EventSignup, true)); err != nil {
		return s.statsErr(err)
	}
	if st.OrganizationsCreated, err = s.collection.CountDocuments(ctx, filter(model.EventOrganizationCreated, true)); err != nil {
		return s.statsErr(err)
	}
	if st.WorkspacesCreated, err = s.collection.CountDocuments(ctx, filter(model.EventWorkspaceCreated, true)); err != nil {
		return s.statsErr(err)
	}

	signins := filter(model.EventSignin, true)
	signins["user_id"] = bson.M{"$exists": true}
	users, err := s.collection.Distinct(ctx, "user_id", signins)
	if err != nil {
		return s.statsErr(err)
	}
	st.UniqueSignins = int64(len(users))

	signups := filter(model.EventSignup, false)
	signups["user_id"] = bson.M{"$exists": true}
	users, err = s.collection.Distinct(ctx, "user_id", signups)
	if err != nil {
		return s.statsErr(err)
	}
	st.TotalSignups = int64(len(users))
	return st, nil
}

func (s *MongoStore) statsErr(err error) (analytics.Stats, error) {
	metrics.RecordStoreError("stats")
	return analytics.Stats{}, fmt.Errorf("query stats: %w", err)
}

// RecentSignups implements Store.
func (s *MongoStore) RecentSignups(ctx context.Context, deploymentID int64, limit int) ([]analytics.RecentSignup, error) {
	defer observe("recent_signups", time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.M{
		"deployment_id": deploymentID,
		"event_type":    string(model.EventSignup),
	}, opts)
	if err != nil {
		metrics.RecordStoreError("recent_signups")
		return nil, fmt.Errorf("query recent signups: %w", err)
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		_ = cursor.Close(ctx)
	}(cursor, ctx)

	out := make([]analytics.RecentSignup, 0, limit)
	for cursor.Next(ctx) {
		var doc eventDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode signup: %w", err)
		}
		out = append(out, analytics.RecentSignup{
			Name:   doc.UserName,
			Email:  doc.UserEmail,
			Method: doc.AuthMethod,
			Date:   doc.OccurredAt.UTC(),
		})
	}
	if err := cursor.Err(); err != nil {
		metrics.RecordStoreError("recent_signups")
		return nil, err
	}
	return out, nil
}

// DailyCounts implements Store.
func (s *MongoStore) DailyCounts(ctx context.Context, deploymentID int64, t model.EventType, r analytics.Range) ([]analytics.DailyCount, error) {
	defer observe("daily_counts", time.Now())

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"deployment_id": deploymentID,
			"event_type":    string(t),
			"occurred_at":   bson.M{"$gte": r.From.UTC(), "$lte": r.To.UTC()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$occurred_at"}},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		metrics.RecordStoreError("daily_counts")
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	var buckets []dayBucket
	if err := cursor.All(ctx, &buckets); err != nil {
		metrics.RecordStoreError("daily_counts")
		return nil, fmt.Errorf("decode daily counts: %w", err)
	}

	sparse := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		sparse[b.Day] = b.Count
	}
	return analytics.FillDays(r, sparse), nil
}

// Count implements Store.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
