package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"enroute_tracker/internal/feeds"
	"enroute_tracker/internal/geo"
	"enroute_tracker/internal/models"
	"enroute_tracker/internal/store"
)

// DeviceCache serves tracks from a single-device provider. Each record's
// LastQueryTime is its poll state, so every device is polled on its own
// schedule.
type DeviceCache struct {
	store   store.TrackStore
	fetcher DeviceFetcher
	ttl     time.Duration
	config
}

func NewDeviceCache(st store.TrackStore, fetcher DeviceFetcher, ttl time.Duration, opts ...Option) *DeviceCache {
	return &DeviceCache{store: st, fetcher: fetcher, ttl: ttl, config: newConfig(opts)}
}

// GetTracks refreshes each stale requested device, then returns the
// requested devices that have ever reported a fix. A device that fails to
// refresh keeps its previous record and is listed in Status.Faults. The
// error is reserved for store failures.
func (c *DeviceCache) GetTracks(ctx context.Context, ids []string) ([]*models.TrackRecord, Status, error) {
	var status Status
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := c.refreshIfStale(ctx, id, &status); err != nil {
			return nil, status, err
		}
	}

	recs, err := c.store.FindMany(ctx, ids)
	if err != nil {
		return nil, status, err
	}
	return resolvable(recs), status, nil
}

// refreshIfStale fetches one device when its record is older than the TTL.
// A record that does not exist yet is created as a placeholder first, so a
// device without data is still polled no faster than one with data.
func (c *DeviceCache) refreshIfStale(ctx context.Context, id string, status *Status) error {
	log := logrus.WithField("device", id)

	rec, err := c.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		log.Debug("No cached track; storing placeholder")
		rec = models.NewPlaceholder(id)
		if err := c.store.Upsert(ctx, rec); err != nil {
			return err
		}
	}

	now := c.now()
	if !stale(rec.LastQueryTime, now, c.ttl) {
		log.Debug("Cached track is fresh")
		return nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			status.Faults = append(status.Faults, &feeds.NetworkFault{Scope: id, Err: fmt.Errorf("politeness wait: %w", err)})
			return nil
		}
	}

	msgs, err := c.fetcher.FetchDevice(ctx, id)
	outcome := feeds.Classify(msgs, err)
	switch outcome {
	case feeds.OutcomeProviderFault, feeds.OutcomeNetworkFault:
		log.WithError(err).WithField("outcome", outcome).Warn("Feed refresh failed; keeping cached track")
		status.Faults = append(status.Faults, err)
		return nil
	case feeds.OutcomeEmpty:
		// Nothing displayable: keep the last fix but let the path expire.
		log.Debug("Feed has no messages")
		rec.LastQueryTime = now
		rec.Path = []geo.GeoPoint{}
	default:
		track, anomalies := feeds.Normalize(id, msgs, now, c.window)
		logAnomalies("spot", anomalies)
		status.Anomalies = append(status.Anomalies, anomalies...)
		rec = track.Record(now)
	}

	if err := c.store.Upsert(ctx, rec); err != nil {
		return err
	}
	status.Refreshed++
	log.WithField("outcome", outcome).Debug("Track refreshed")
	return nil
}
