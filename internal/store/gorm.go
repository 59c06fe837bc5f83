package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"enroute_tracker/internal/models"
)

// Track tables, one per provider.
const (
	SpotTable         = "tracks"
	TrackLeadersTable = "tl_tracks"
)

// GormTrackStore keeps track records in one table per provider and poll
// states in a shared poll_states table.
type GormTrackStore struct {
	db    *gorm.DB
	table string
}

func NewGormTrackStore(db *gorm.DB, table string) *GormTrackStore {
	return &GormTrackStore{db: db, table: table}
}

func (s *GormTrackStore) records(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *GormTrackStore) Find(ctx context.Context, id string) (*models.TrackRecord, error) {
	var rec models.TrackRecord
	err := s.records(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find track %s: %w", id, err)
	}
	return &rec, nil
}

func (s *GormTrackStore) FindMany(ctx context.Context, ids []string) ([]*models.TrackRecord, error) {
	if len(ids) == 0 {
		return []*models.TrackRecord{}, nil
	}
	var found []*models.TrackRecord
	if err := s.records(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("find tracks: %w", err)
	}
	return inOrder(ids, found), nil
}

func (s *GormTrackStore) Upsert(ctx context.Context, rec *models.TrackRecord) error {
	err := s.records(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert track %s: %w", rec.ID, err)
	}
	return nil
}

func (s *GormTrackStore) UpsertMany(ctx context.Context, recs []*models.TrackRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := s.records(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(recs, 200).Error
	if err != nil {
		return fmt.Errorf("upsert %d tracks: %w", len(recs), err)
	}
	return nil
}

func (s *GormTrackStore) PollState(ctx context.Context, scope string) (*models.PollState, error) {
	var ps models.PollState
	err := s.db.WithContext(ctx).Where("scope = ?", scope).Take(&ps).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find poll state %s: %w", scope, err)
	}
	return &ps, nil
}

func (s *GormTrackStore) SavePollState(ctx context.Context, ps *models.PollState) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(ps).Error
	if err != nil {
		return fmt.Errorf("save poll state %s: %w", ps.Scope, err)
	}
	return nil
}

// GormRouteStore keeps routes in the routes table, unique by name.
type GormRouteStore struct {
	db *gorm.DB
}

func NewGormRouteStore(db *gorm.DB) *GormRouteStore {
	return &GormRouteStore{db: db}
}

func (s *GormRouteStore) Save(ctx context.Context, r *models.Route) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "geometry", "zone", "south", "total_km", "planar", "updated_at", "deleted_at"}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("save route %s: %w", r.Name, err)
	}
	return nil
}

func (s *GormRouteStore) FindByName(ctx context.Context, name string) (*models.Route, error) {
	var r models.Route
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find route %s: %w", name, err)
	}
	return &r, nil
}

func (s *GormRouteStore) List(ctx context.Context) ([]*models.Route, error) {
	var routes []*models.Route
	if err := s.db.WithContext(ctx).Order("name").Find(&routes).Error; err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return routes, nil
}

// Migrate creates or updates every table the stores use.
func Migrate(db *gorm.DB) error {
	for _, table := range []string{SpotTable, TrackLeadersTable} {
		if err := db.Table(table).AutoMigrate(&models.TrackRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	if err := db.AutoMigrate(&models.PollState{}, &models.Route{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
