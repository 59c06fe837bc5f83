package feeds

import (
	"time"

	"enroute_tracker/internal/geo"
	"enroute_tracker/internal/models"
)

// DefaultPathWindow is how far back a track's path reaches.
const DefaultPathWindow = time.Hour

// Message is one position report from either provider, newest first within
// a device.
type Message struct {
	DeviceID     string
	Time         time.Time
	Point        geo.GeoPoint
	BatteryState string
	// Provider fields as received, keyed by their upstream names.
	Fields map[string]string
}

// Track is a normalized device track, a TrackRecord without the cache
// bookkeeping.
type Track struct {
	ID     string
	Latest *models.Latest
	Path   []geo.GeoPoint
}

// Record stamps the track with its query time.
func (t Track) Record(queried time.Time) *models.TrackRecord {
	path := t.Path
	if path == nil {
		path = []geo.GeoPoint{}
	}
	return &models.TrackRecord{
		ID:            t.ID,
		LastQueryTime: queried,
		Latest:        t.Latest,
		Path:          path,
	}
}

// Normalize builds the track of one device from its messages, which must be
// ordered newest first. The first message becomes latest and the second its
// prior position. The path holds the points reported within window of now,
// oldest first; the walk stops at the first message older than the window.
// Messages newer than latest are reported, never promoted.
func Normalize(id string, msgs []Message, now time.Time, window time.Duration) (Track, []AnomalousOrdering) {
	track := Track{ID: id, Path: []geo.GeoPoint{}}
	if len(msgs) == 0 {
		return track, nil
	}

	first := msgs[0]
	track.Latest = &models.Latest{
		DateTime:     first.Time,
		LatLon:       first.Point,
		BatteryState: first.BatteryState,
	}
	if len(msgs) > 1 {
		prior := msgs[1].Point
		track.Latest.PriorPosition = &prior
	}

	var anomalies []AnomalousOrdering
	for _, m := range msgs[1:] {
		if m.Time.After(first.Time) {
			anomalies = append(anomalies, AnomalousOrdering{DeviceID: id, Latest: first.Time, Offending: m.Time})
		}
	}

	cutoff := now.Add(-window)
	for _, m := range msgs {
		if m.Time.Before(cutoff) {
			break
		}
		track.Path = append(track.Path, m.Point)
	}
	for i, j := 0, len(track.Path)-1; i < j; i, j = i+1, j-1 {
		track.Path[i], track.Path[j] = track.Path[j], track.Path[i]
	}
	return track, anomalies
}

// NormalizeBatch groups an aggregated feed by device and normalizes each
// group. Tracks come back in the order devices first appear.
func NormalizeBatch(msgs []Message, now time.Time, window time.Duration) ([]Track, []AnomalousOrdering) {
	var order []string
	groups := make(map[string][]Message)
	for _, m := range msgs {
		if _, seen := groups[m.DeviceID]; !seen {
			order = append(order, m.DeviceID)
		}
		groups[m.DeviceID] = append(groups[m.DeviceID], m)
	}

	tracks := make([]Track, 0, len(order))
	var anomalies []AnomalousOrdering
	for _, id := range order {
		track, found := Normalize(id, groups[id], now, window)
		tracks = append(tracks, track)
		anomalies = append(anomalies, found...)
	}
	return tracks, anomalies
}
