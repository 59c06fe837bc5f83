// internal/models/TrackRecord.go
package models

import (
	"time"

	"enroute_tracker/internal/geo"
)

// Epoch is the last query time of a record that has never been polled.
var Epoch = time.Unix(0, 0).UTC()

// Latest is the newest fix reported for a device.
type Latest struct {
	DateTime     time.Time    `json:"dateTime" bson:"date_time"`
	LatLon       geo.GeoPoint `json:"latlon" bson:"latlon"`
	BatteryState string       `json:"batteryState" bson:"battery_state"`
	// The fix before DateTime, used to tell direction of travel.
	PriorPosition *geo.GeoPoint `json:"prior_position,omitempty" bson:"prior_position,omitempty"`
}

// TrackRecord is the cached track of one device. Exactly one record exists
// per ID; writes replace the whole record.
type TrackRecord struct {
	ID            string         `json:"id" gorm:"primaryKey" bson:"_id"`
	LastQueryTime time.Time      `json:"last_query_time" bson:"last_query_time"`
	Latest        *Latest        `json:"latest,omitempty" gorm:"serializer:json" bson:"latest,omitempty"`
	Path          []geo.GeoPoint `json:"path" gorm:"serializer:json" bson:"path"`
	UpdatedAt     time.Time      `json:"-" bson:"updated_at"`
}

// NewPlaceholder returns the record stored for a device before its first
// successful fetch. It is always stale.
func NewPlaceholder(id string) *TrackRecord {
	return &TrackRecord{
		ID:            id,
		LastQueryTime: Epoch,
		Path:          []geo.GeoPoint{},
	}
}

// Placeholder reports whether the record has never carried a fix.
func (t *TrackRecord) Placeholder() bool {
	return t.Latest == nil
}
