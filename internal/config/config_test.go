package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 5*time.Minute, cfg.Spot.TTL)
	assert.Equal(t, 2*time.Second, cfg.Spot.PolitenessDelay)
	assert.Equal(t, time.Minute, cfg.TrackLeaders.TTL)
	assert.Empty(t, cfg.TrackLeaders.URL)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, time.Hour, cfg.PathWindow)
	assert.Equal(t, 2000.0, cfg.MaxDeviationMeters)
	assert.Equal(t, 64, cfg.RouteCacheSize)
	assert.Contains(t, cfg.Spot.URLTemplate, "%s")
	assert.Equal(t,
		"host=localhost user=postgres password=password dbname=enroute port=5432 sslmode=disable TimeZone=UTC",
		cfg.DB.DSN())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("TRACKLEADERS_URL", "http://trackleaders.com/spot/event/fullfeed.xml")
	t.Setenv("TRACKLEADERS_TTL", "90s")
	t.Setenv("MAX_DEVIATION_METERS", "500")
	t.Setenv("DB_PORT", "not-a-port") // ignored unless the backend is postgres

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, 90*time.Second, cfg.TrackLeaders.TTL)
	assert.Equal(t, 500.0, cfg.MaxDeviationMeters)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"SPOT_TTL": "five minutes"}},
		{"zero ttl", map[string]string{"SPOT_TTL": "0s"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "sqlite"}},
		{"mongo without uri", map[string]string{"STORE_BACKEND": "mongo"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"template without gid", map[string]string{"SPOT_URL_TEMPLATE": "http://example.com/feed"}},
		{"bad trackleaders url", map[string]string{"TRACKLEADERS_URL": "not a url"}},
		{"bad db port", map[string]string{"DB_PORT": "pg"}},
		{"bad deviation", map[string]string{"MAX_DEVIATION_METERS": "-5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
