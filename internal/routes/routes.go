package routes

import (
	"net/http"

	ginlogger "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"

	"enroute_tracker/internal/controllers"
	"enroute_tracker/internal/logger"
)

// Handlers are the controllers the router dispatches to.
type Handlers struct {
	Feeds  *controllers.FeedController
	Routes *controllers.RouteController
}

func SetupRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(ginlogger.SetLogger(
		ginlogger.WithWriter(logger.AccessWriter()),
		ginlogger.WithSkipPath([]string{"/healthz"}),
	))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	FeedRoutes(r, h.Feeds)
	RouteRoutes(r, h.Routes)

	return r
}
