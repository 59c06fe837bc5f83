package models

import "time"

// PollState records when a provider scope was last queried. The aggregated
// provider keeps one shared row; single-device polling uses the
// LastQueryTime of each TrackRecord instead.
type PollState struct {
	Scope         string    `json:"scope" gorm:"primaryKey" bson:"_id"`
	LastQueryTime time.Time `json:"last_query_time" bson:"last_query_time"`
}
