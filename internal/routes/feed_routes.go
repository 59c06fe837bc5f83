package routes

import (
	"github.com/gin-gonic/gin"

	"enroute_tracker/internal/controllers"
)

// FeedRoutes keeps the paths the display layer already polls.
func FeedRoutes(r *gin.Engine, fc *controllers.FeedController) {
	r.GET("/_riders", fc.Riders)
	r.GET("/_tl_riders", fc.TLRiders)
	r.GET("/_check_feed", fc.CheckFeed)
}
