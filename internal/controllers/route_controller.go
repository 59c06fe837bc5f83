package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bluele/gcache"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"enroute_tracker/internal/geo"
	"enroute_tracker/internal/models"
	"enroute_tracker/internal/route"
	"enroute_tracker/internal/store"
)

// RouteController registers routes and answers along-route queries.
// Planarized routes are kept in an LRU and shared read-only by every
// projection.
type RouteController struct {
	routes       store.RouteStore
	planar       gcache.Cache
	maxDeviation float64
	validate     *validator.Validate
}

func NewRouteController(routes store.RouteStore, cacheSize int, maxDeviationMeters float64) *RouteController {
	if maxDeviationMeters <= 0 {
		maxDeviationMeters = route.DefaultMaxDeviationMeters
	}
	return &RouteController{
		routes:       routes,
		planar:       gcache.New(cacheSize).LRU().Build(),
		maxDeviation: maxDeviationMeters,
		validate:     validator.New(),
	}
}

// RouteResponse is the API form of models.Route, with the geometry as GeoJSON.
type RouteResponse struct {
	ID          uint            `json:"ID"`
	CreatedAt   time.Time       `json:"CreatedAt"`
	UpdatedAt   time.Time       `json:"UpdatedAt"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Zone        int             `json:"zone"`
	South       bool            `json:"south"`
	TotalKm     float64         `json:"total_km"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
}

func toRouteResponse(r *models.Route, withGeometry bool) RouteResponse {
	resp := RouteResponse{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Name:        r.Name,
		Description: r.Description,
		Zone:        r.Zone,
		South:       r.South,
		TotalKm:     r.TotalKm,
	}
	if withGeometry && len(r.Geometry) > 0 {
		points, err := route.DecodeWKB(r.Geometry)
		if err != nil {
			logrus.WithError(err).WithField("route", r.Name).Warn("Stored route geometry is unreadable")
			return resp
		}
		if gj, err := route.ToGeoJSON(points); err == nil {
			resp.Geometry = gj
		}
	}
	return resp
}

type createRouteInput struct {
	Name        string          `json:"name" validate:"required,max=128,excludesall=/?#%"`
	Description string          `json:"description" validate:"max=1024"`
	Points      []geo.GeoPoint  `json:"points" validate:"required_without=Geometry"`
	Geometry    json.RawMessage `json:"geometry"`
}

// routePoints resolves the input to route points. Geometry may be a GeoJSON
// object or a string holding one.
func (in createRouteInput) routePoints() ([]geo.GeoPoint, error) {
	if len(in.Points) > 0 || len(in.Geometry) == 0 {
		return in.Points, nil
	}
	raw := in.Geometry
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = []byte(s)
	}
	return route.PointsFromGeoJSON(raw)
}

// CreateRoute planarizes and stores a route, replacing any route of the
// same name.
func (rc *RouteController) CreateRoute(c *gin.Context) {
	var input createRouteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logrus.WithError(err).Warn("CreateRoute: invalid input payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := rc.validate.Struct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	points, err := input.routePoints()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geometry: " + err.Error()})
		return
	}
	if len(points) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A route needs at least two points"})
		return
	}
	pr, err := route.Planarize(points)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geometry: " + err.Error()})
		return
	}
	wkbGeom, err := route.EncodeWKB(points)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Encode geometry failed: " + err.Error()})
		return
	}

	r := &models.Route{
		Name:        input.Name,
		Description: input.Description,
		Geometry:    wkbGeom,
		Zone:        pr.Zone,
		South:       pr.South,
		TotalKm:     pr.TotalKm(),
		Planar:      pr,
	}
	if err := rc.routes.Save(c.Request.Context(), r); err != nil {
		logrus.WithError(err).WithField("route", input.Name).Error("CreateRoute: save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Save route failed"})
		return
	}
	rc.planar.Remove(r.Name)

	logrus.WithFields(logrus.Fields{
		"route":    r.Name,
		"zone":     r.Zone,
		"vertices": len(pr.Vertices),
		"km":       fmt.Sprintf("%.2f", r.TotalKm),
	}).Info("Route registered")
	c.JSON(http.StatusCreated, toRouteResponse(r, true))
}

func (rc *RouteController) ListRoutes(c *gin.Context) {
	routes, err := rc.routes.List(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("ListRoutes: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list routes"})
		return
	}
	out := make([]RouteResponse, 0, len(routes))
	for _, r := range routes {
		out = append(out, toRouteResponse(r, false))
	}
	c.JSON(http.StatusOK, out)
}

func (rc *RouteController) GetRoute(c *gin.Context) {
	r, ok := rc.find(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toRouteResponse(r, true))
}

// GetRoutePoints serves the route in the points file format, [[lat, lon], ...].
func (rc *RouteController) GetRoutePoints(c *gin.Context) {
	r, ok := rc.find(c)
	if !ok {
		return
	}
	points, err := route.DecodeWKB(r.Geometry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored geometry is unreadable"})
		return
	}
	c.JSON(http.StatusOK, points)
}

// GetRoutePlanar serves the route in the planarized file format.
func (rc *RouteController) GetRoutePlanar(c *gin.Context) {
	pr, err := rc.planarFor(c.Request.Context(), c.Param("name"))
	if err != nil {
		rc.lookupFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

// Along reports the distance along the route of lat/lng. A prior position
// of (0, 0), or none, means direction is not known.
func (rc *RouteController) Along(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required numbers"})
		return
	}
	obs := route.Observation{Point: geo.Pt(lat, lng)}
	if c.Query("prior_lat") != "" || c.Query("prior_lng") != "" {
		plat, errLat := strconv.ParseFloat(c.DefaultQuery("prior_lat", "0"), 64)
		plng, errLng := strconv.ParseFloat(c.DefaultQuery("prior_lng", "0"), 64)
		if errLat != nil || errLng != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prior_lat and prior_lng must be numbers"})
			return
		}
		if prior := geo.Pt(plat, plng); !prior.IsZero() {
			obs.Prior = &prior
		}
	}

	pr, err := rc.planarFor(c.Request.Context(), c.Param("name"))
	if err != nil {
		rc.lookupFailed(c, err)
		return
	}
	res, err := route.Project(obs, pr, rc.maxDeviation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res.Distance(), "on_route": res.OnRoute})
}

func (rc *RouteController) find(c *gin.Context) (*models.Route, bool) {
	r, err := rc.routes.FindByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		rc.lookupFailed(c, err)
		return nil, false
	}
	return r, true
}

func (rc *RouteController) lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
		return
	}
	logrus.WithError(err).WithField("route", c.Param("name")).Error("Route lookup failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Route lookup failed"})
}

// planarFor returns the planarized route, from the LRU when possible.
// Routes stored without a planarization are planarized from their geometry.
func (rc *RouteController) planarFor(ctx context.Context, name string) (*route.PlanarRoute, error) {
	if v, err := rc.planar.Get(name); err == nil {
		return v.(*route.PlanarRoute), nil
	}
	r, err := rc.routes.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	pr := r.Planar
	if pr == nil {
		points, err := route.DecodeWKB(r.Geometry)
		if err != nil {
			return nil, err
		}
		if pr, err = route.Planarize(points); err != nil {
			return nil, err
		}
	}
	_ = rc.planar.Set(name, pr)
	return pr, nil
}
