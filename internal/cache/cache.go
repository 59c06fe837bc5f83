package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"enroute_tracker/internal/feeds"
	"enroute_tracker/internal/models"
)

// Limiter paces outbound requests. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// DeviceFetcher retrieves the messages of one device, newest first.
type DeviceFetcher interface {
	FetchDevice(ctx context.Context, id string) ([]feeds.Message, error)
}

// BatchFetcher retrieves the messages of every device in one request.
type BatchFetcher interface {
	FetchBatch(ctx context.Context) (feeds.Batch, error)
}

// Status reports what a GetTracks call had to work around. Cached data is
// returned either way; Degraded means some of it may be stale.
type Status struct {
	Refreshed int
	Faults    []error
	Anomalies []feeds.AnomalousOrdering
}

// Degraded reports whether any refresh failed.
func (s Status) Degraded() bool {
	return len(s.Faults) > 0
}

// DefaultRefreshTimeout bounds a shared aggregated reload, which runs
// detached from the request that triggered it.
const DefaultRefreshTimeout = 30 * time.Second

type config struct {
	now            func() time.Time
	window         time.Duration
	limiter        Limiter
	refreshTimeout time.Duration
}

// Option tunes a cache.
type Option func(*config)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithPathWindow sets how far back track paths reach.
func WithPathWindow(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithLimiter paces single-device fetches. Batch caches ignore it.
func WithLimiter(l Limiter) Option {
	return func(c *config) { c.limiter = l }
}

// WithRefreshTimeout bounds an aggregated reload.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

func newConfig(opts []Option) config {
	c := config{now: time.Now, window: feeds.DefaultPathWindow, refreshTimeout: DefaultRefreshTimeout}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// stale reports whether more than ttl has passed since last.
func stale(last, now time.Time, ttl time.Duration) bool {
	return now.After(last.Add(ttl))
}

func resolvable(recs []*models.TrackRecord) []*models.TrackRecord {
	out := make([]*models.TrackRecord, 0, len(recs))
	for _, rec := range recs {
		if !rec.Placeholder() {
			out = append(out, rec)
		}
	}
	return out
}

func logAnomalies(provider string, anomalies []feeds.AnomalousOrdering) {
	for _, a := range anomalies {
		logrus.WithFields(logrus.Fields{
			"provider":  provider,
			"device":    a.DeviceID,
			"latest":    a.Latest,
			"offending": a.Offending,
		}).Warn("Message newer than latest; feed is not newest-first")
	}
}
