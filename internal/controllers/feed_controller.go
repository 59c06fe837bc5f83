package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"enroute_tracker/internal/cache"
	"enroute_tracker/internal/models"
)

// FeedStatusHeader carries "ok" or "degraded" alongside track responses.
const FeedStatusHeader = "X-Feed-Status"

// TrackSource is satisfied by cache.DeviceCache and cache.BatchCache.
type TrackSource interface {
	GetTracks(ctx context.Context, ids []string) ([]*models.TrackRecord, cache.Status, error)
}

// FeedChecker queries a single-device feed directly.
type FeedChecker interface {
	Check(ctx context.Context, gid string) (bool, string)
}

type FeedController struct {
	devices TrackSource
	batch   TrackSource
	checker FeedChecker
}

// NewFeedController wires the track sources. batch may be nil when the
// aggregated provider is not configured.
func NewFeedController(devices, batch TrackSource, checker FeedChecker) *FeedController {
	return &FeedController{devices: devices, batch: batch, checker: checker}
}

// Riders serves tracks for the single-device feeds named by ?feed=.
func (fc *FeedController) Riders(c *gin.Context) {
	fc.serve(c, fc.devices, "single-device")
}

// TLRiders serves tracks for devices of the aggregated provider.
func (fc *FeedController) TLRiders(c *gin.Context) {
	if fc.batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Aggregated provider is not configured"})
		return
	}
	fc.serve(c, fc.batch, "aggregated")
}

func (fc *FeedController) serve(c *gin.Context, src TrackSource, provider string) {
	ids := feedIDs(c)
	recs, status, err := src.GetTracks(c.Request.Context(), ids)
	if err != nil {
		logrus.WithError(err).WithField("provider", provider).Error("Track lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Track lookup failed"})
		return
	}

	if status.Degraded() {
		logrus.WithFields(logrus.Fields{
			"provider": provider,
			"faults":   len(status.Faults),
		}).Info("Serving cached tracks after refresh faults")
		c.Header(FeedStatusHeader, "degraded")
	} else {
		c.Header(FeedStatusHeader, "ok")
	}
	if recs == nil {
		recs = []*models.TrackRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

// CheckFeed reports whether a single-device identifier is usable.
func (fc *FeedController) CheckFeed(c *gin.Context) {
	gid := strings.TrimSpace(c.Query("gid"))
	if gid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "gid is required"})
		return
	}
	valid, message := fc.checker.Check(c.Request.Context(), gid)
	c.JSON(http.StatusOK, gin.H{"valid": valid, "message": message})
}

// feedIDs accepts both ?feed=a&feed=b and ?feed=a,b.
func feedIDs(c *gin.Context) []string {
	var ids []string
	for _, v := range c.QueryArray("feed") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
