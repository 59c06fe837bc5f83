package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"enroute_tracker/internal/models"
)

const pollStateCollection = "poll_states"

// MongoTrackStore keeps track records in one collection per provider, keyed
// by device id, and poll states in a shared collection.
type MongoTrackStore struct {
	collection *mongo.Collection
	polls      *mongo.Collection
}

func NewMongoTrackStore(db *mongo.Database, collection string) *MongoTrackStore {
	return &MongoTrackStore{
		collection: db.Collection(collection),
		polls:      db.Collection(pollStateCollection),
	}
}

func (s *MongoTrackStore) Find(ctx context.Context, id string) (*models.TrackRecord, error) {
	var rec models.TrackRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find track %s: %w", id, err)
	}
	return &rec, nil
}

func (s *MongoTrackStore) FindMany(ctx context.Context, ids []string) ([]*models.TrackRecord, error) {
	if len(ids) == 0 {
		return []*models.TrackRecord{}, nil
	}
	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find tracks: %w", err)
	}
	defer cursor.Close(ctx)

	var found []*models.TrackRecord
	if err = cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decode tracks: %w", err)
	}
	return inOrder(ids, found), nil
}

func (s *MongoTrackStore) Upsert(ctx context.Context, rec *models.TrackRecord) error {
	rec.UpdatedAt = time.Now()
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert track %s: %w", rec.ID, err)
	}
	return nil
}

func (s *MongoTrackStore) UpsertMany(ctx context.Context, recs []*models.TrackRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now()
	writes := make([]mongo.WriteModel, 0, len(recs))
	for _, rec := range recs {
		rec.UpdatedAt = now
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetReplacement(rec).
			SetUpsert(true))
	}
	if _, err := s.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert %d tracks: %w", len(recs), err)
	}
	return nil
}

func (s *MongoTrackStore) PollState(ctx context.Context, scope string) (*models.PollState, error) {
	var ps models.PollState
	err := s.polls.FindOne(ctx, bson.M{"_id": scope}).Decode(&ps)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find poll state %s: %w", scope, err)
	}
	return &ps, nil
}

func (s *MongoTrackStore) SavePollState(ctx context.Context, ps *models.PollState) error {
	_, err := s.polls.ReplaceOne(ctx, bson.M{"_id": ps.Scope}, ps, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save poll state %s: %w", ps.Scope, err)
	}
	return nil
}

const routeCollection = "routes"

// MongoRouteStore keeps routes in one collection keyed by name.
type MongoRouteStore struct {
	collection *mongo.Collection
}

func NewMongoRouteStore(db *mongo.Database) *MongoRouteStore {
	return &MongoRouteStore{collection: db.Collection(routeCollection)}
}

func (s *MongoRouteStore) Save(ctx context.Context, r *models.Route) error {
	now := time.Now()
	prev, err := s.FindByName(ctx, r.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		r.CreatedAt = now
	case err != nil:
		return err
	default:
		r.CreatedAt = prev.CreatedAt
	}
	r.UpdatedAt = now

	_, err = s.collection.ReplaceOne(ctx, bson.M{"name": r.Name}, r, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save route %s: %w", r.Name, err)
	}
	return nil
}

func (s *MongoRouteStore) FindByName(ctx context.Context, name string) (*models.Route, error) {
	var r models.Route
	err := s.collection.FindOne(ctx, bson.M{"name": name}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find route %s: %w", name, err)
	}
	return &r, nil
}

func (s *MongoRouteStore) List(ctx context.Context) ([]*models.Route, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetProjection(bson.M{"geometry": 0, "planar": 0})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer cursor.Close(ctx)

	routes := []*models.Route{}
	if err = cursor.All(ctx, &routes); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	return routes, nil
}
