package store

import (
	"context"
	"errors"

	"enroute_tracker/internal/models"
)

// ErrNotFound is returned by RouteStore lookups for an unknown route.
var ErrNotFound = errors.New("not found")

// TrackStore persists one TrackRecord per device and the poll state of
// aggregated providers. Find and PollState return (nil, nil) when nothing
// is stored. Upserts replace whole records, last writer wins.
type TrackStore interface {
	Find(ctx context.Context, id string) (*models.TrackRecord, error)
	// FindMany returns the stored records among ids, in ids order.
	FindMany(ctx context.Context, ids []string) ([]*models.TrackRecord, error)
	Upsert(ctx context.Context, rec *models.TrackRecord) error
	UpsertMany(ctx context.Context, recs []*models.TrackRecord) error
	PollState(ctx context.Context, scope string) (*models.PollState, error)
	SavePollState(ctx context.Context, ps *models.PollState) error
}

// RouteStore persists named routes. Save replaces a route of the same name.
type RouteStore interface {
	Save(ctx context.Context, r *models.Route) error
	FindByName(ctx context.Context, name string) (*models.Route, error)
	List(ctx context.Context) ([]*models.Route, error)
}

// inOrder arranges found records by the order of ids, dropping ids with no
// record and duplicate ids.
func inOrder(ids []string, found []*models.TrackRecord) []*models.TrackRecord {
	byID := make(map[string]*models.TrackRecord, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}
	out := make([]*models.TrackRecord, 0, len(found))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
			delete(byID, id)
		}
	}
	return out
}

var (
	_ TrackStore = (*GormTrackStore)(nil)
	_ TrackStore = (*MongoTrackStore)(nil)
	_ RouteStore = (*GormRouteStore)(nil)
	_ RouteStore = (*MongoRouteStore)(nil)
)
