package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"enroute_tracker/internal/controllers"
	"enroute_tracker/internal/store"
)

func TestSetupRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(Handlers{
		Feeds:  controllers.NewFeedController(nil, nil, nil),
		Routes: controllers.NewRouteController(store.NewInMemoryRouteStore(), 4, 0),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/routes", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = httptest.NewRecorder()
	body := `{"name":"short","points":[[44.0,-123.0],[44.01,-123.0]]}`
	req := httptest.NewRequest(http.MethodPost, "/routes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/routes/short/along?lat=44.005&lng=-123.0", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"on_route":true`)

	// Without an aggregated provider the endpoint exists but reports so.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_tl_riders?feed=x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccessLogGoesThroughLogrus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hook := logtest.NewGlobal()
	r := SetupRouter(Handlers{
		Feeds:  controllers.NewFeedController(nil, nil, nil),
		Routes: controllers.NewRouteController(store.NewInMemoryRouteStore(), 4, 0),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/routes/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if strings.Contains(e.Message, "/routes/missing") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
