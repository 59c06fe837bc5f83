package routes

import (
	"github.com/gin-gonic/gin"

	"enroute_tracker/internal/controllers"
)

func RouteRoutes(r *gin.Engine, rc *controllers.RouteController) {
	routes := r.Group("/routes")
	{
		routes.POST("", rc.CreateRoute)
		routes.GET("", rc.ListRoutes)
		routes.GET("/:name", rc.GetRoute)
		routes.GET("/:name/points", rc.GetRoutePoints)
		routes.GET("/:name/planar", rc.GetRoutePlanar)
		routes.GET("/:name/along", rc.Along)
	}
}
