package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"enroute_tracker/internal/feeds"
	"enroute_tracker/internal/models"
	"enroute_tracker/internal/store"
)

// BatchCache serves tracks from an aggregated provider. One shared
// PollState decides staleness because one request refreshes every device.
type BatchCache struct {
	store   store.TrackStore
	fetcher BatchFetcher
	scope   string
	ttl     time.Duration
	config

	group singleflight.Group
}

func NewBatchCache(st store.TrackStore, fetcher BatchFetcher, scope string, ttl time.Duration, opts ...Option) *BatchCache {
	return &BatchCache{store: st, fetcher: fetcher, scope: scope, ttl: ttl, config: newConfig(opts)}
}

// GetTracks refreshes the whole feed if it is stale, then returns the
// requested devices found in the cache. When the refresh fails the previous
// snapshot is returned and the failure is listed in Status.Faults.
func (c *BatchCache) GetTracks(ctx context.Context, ids []string) ([]*models.TrackRecord, Status, error) {
	var status Status
	if err := c.refreshIfStale(ctx, &status); err != nil {
		return nil, status, err
	}
	recs, err := c.store.FindMany(ctx, ids)
	if err != nil {
		return nil, status, err
	}
	return resolvable(recs), status, nil
}

type batchResult struct {
	refreshed int
	faults    []error
	anomalies []feeds.AnomalousOrdering
}

// refreshIfStale reloads every device when the shared poll state is older
// than the TTL. Concurrent callers that find it stale share one reload.
func (c *BatchCache) refreshIfStale(ctx context.Context, status *Status) error {
	ps, err := c.store.PollState(ctx, c.scope)
	if err != nil {
		return err
	}
	now := c.now()
	if ps != nil && !stale(ps.LastQueryTime, now, c.ttl) {
		logrus.WithField("scope", c.scope).Debug("Aggregated feed cache is fresh")
		return nil
	}

	v, err, _ := c.group.Do(c.scope, func() (interface{}, error) {
		// Shared by every joined caller; outlives the request that started it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.reload(rctx, now)
	})
	if err != nil {
		return err
	}
	res := v.(*batchResult)
	status.Faults = append(status.Faults, res.faults...)
	status.Refreshed += res.refreshed
	status.Anomalies = append(status.Anomalies, res.anomalies...)
	return nil
}

func (c *BatchCache) reload(ctx context.Context, now time.Time) (*batchResult, error) {
	log := logrus.WithField("scope", c.scope)

	// The poll time is recorded before fetching, so a failing provider is
	// polled no more often than a healthy one.
	if err := c.store.SavePollState(ctx, &models.PollState{Scope: c.scope, LastQueryTime: now}); err != nil {
		return nil, err
	}

	batch, err := c.fetcher.FetchBatch(ctx)
	if outcome := feeds.Classify(batch.Messages, err); outcome.Failed() {
		log.WithError(err).WithField("outcome", outcome).Warn("Aggregated feed refresh failed; serving previous snapshot")
		return &batchResult{faults: []error{err}}, nil
	}

	var faults []error
	for _, f := range batch.Faults {
		log.WithField("device", f.Scope).WithError(f).Warn("Skipping unreadable message")
		faults = append(faults, f)
	}

	tracks, anomalies := feeds.NormalizeBatch(batch.Messages, now, c.window)
	logAnomalies(c.scope, anomalies)

	recs := make([]*models.TrackRecord, 0, len(tracks))
	for _, t := range tracks {
		recs = append(recs, t.Record(now))
	}
	if err := c.store.UpsertMany(ctx, recs); err != nil {
		return nil, err
	}
	log.WithField("devices", len(recs)).Debug("Aggregated feed reloaded")
	return &batchResult{refreshed: len(recs), faults: faults, anomalies: anomalies}, nil
}
