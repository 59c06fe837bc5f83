package models

import (
	"gorm.io/gorm"

	"enroute_tracker/internal/route"
)

// Route is a named event route. The geographic polyline is kept as WKB and
// its planarization alongside it, so projections never re-planarize.
type Route struct {
	gorm.Model `bson:",inline"`

	Name        string `json:"name" gorm:"uniqueIndex;not null" bson:"name"`
	Description string `json:"description" bson:"description"`

	// LINESTRING in WGS84, X=longitude Y=latitude
	Geometry []byte `json:"-" gorm:"type:bytea" bson:"geometry"`

	Zone    int                `json:"zone" bson:"zone"`
	South   bool               `json:"south" bson:"south"`
	TotalKm float64            `json:"total_km" bson:"total_km"`
	Planar  *route.PlanarRoute `json:"-" gorm:"serializer:json" bson:"planar,omitempty"`
}
