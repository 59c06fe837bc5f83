package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"enroute_tracker/internal/geo"
	"enroute_tracker/internal/models"
)

type inMemoryTrackStore struct {
	records map[string]*models.TrackRecord
	polls   map[string]models.PollState
	mutex   sync.RWMutex
}

// NewInMemoryTrackStore returns a TrackStore that lives only as long as the
// process. Records are copied in and out.
func NewInMemoryTrackStore() TrackStore {
	return &inMemoryTrackStore{
		records: make(map[string]*models.TrackRecord),
		polls:   make(map[string]models.PollState),
	}
}

func (s *inMemoryTrackStore) Find(_ context.Context, id string) (*models.TrackRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if rec, exists := s.records[id]; exists {
		return cloneRecord(rec), nil
	}
	return nil, nil
}

func (s *inMemoryTrackStore) FindMany(_ context.Context, ids []string) ([]*models.TrackRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var found []*models.TrackRecord
	for _, id := range ids {
		if rec, exists := s.records[id]; exists {
			found = append(found, cloneRecord(rec))
		}
	}
	return inOrder(ids, found), nil
}

func (s *inMemoryTrackStore) Upsert(_ context.Context, rec *models.TrackRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.put(rec)
	return nil
}

func (s *inMemoryTrackStore) UpsertMany(_ context.Context, recs []*models.TrackRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, rec := range recs {
		s.put(rec)
	}
	return nil
}

func (s *inMemoryTrackStore) put(rec *models.TrackRecord) {
	c := cloneRecord(rec)
	c.UpdatedAt = time.Now()
	s.records[rec.ID] = c
}

func (s *inMemoryTrackStore) PollState(_ context.Context, scope string) (*models.PollState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if ps, exists := s.polls[scope]; exists {
		return &ps, nil
	}
	return nil, nil
}

func (s *inMemoryTrackStore) SavePollState(_ context.Context, ps *models.PollState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.polls[ps.Scope] = *ps
	return nil
}

func cloneRecord(rec *models.TrackRecord) *models.TrackRecord {
	c := *rec
	if rec.Latest != nil {
		latest := *rec.Latest
		if latest.PriorPosition != nil {
			prior := *latest.PriorPosition
			latest.PriorPosition = &prior
		}
		c.Latest = &latest
	}
	c.Path = append([]geo.GeoPoint{}, rec.Path...)
	return &c
}

type inMemoryRouteStore struct {
	routes map[string]*models.Route
	nextID uint
	mutex  sync.RWMutex
}

func NewInMemoryRouteStore() RouteStore {
	return &inMemoryRouteStore{routes: make(map[string]*models.Route)}
}

func (s *inMemoryRouteStore) Save(_ context.Context, r *models.Route) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	if prev, exists := s.routes[r.Name]; exists {
		r.ID, r.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		s.nextID++
		r.ID, r.CreatedAt = s.nextID, now
	}
	r.UpdatedAt = now
	c := *r
	s.routes[r.Name] = &c
	return nil
}

func (s *inMemoryRouteStore) FindByName(_ context.Context, name string) (*models.Route, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	r, exists := s.routes[name]
	if !exists {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *inMemoryRouteStore) List(_ context.Context) ([]*models.Route, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]*models.Route, 0, len(s.routes))
	for _, r := range s.routes {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
