package notification

import (
	"net/http"
	"pneumatic/persistence"
	"pneumatic/session"

	"github.com/gin-gonic/gin"
)

var PathNotifications = "/v1/notifications"

func RegisterNotificationsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathNotifications, middleWares...)
	g.GET("", handleQueryNotifications)
}

// handleQueryNotifications lists the inbox of the current user, newest first.
func handleQueryNotifications(c *gin.Context) {
	s := session.ExtractSessionFromGinContext(c)
	records, err := QueryNotificationsFunc(s.Identity.ID, persistence.ActiveDataSourceManager.GormDB(s.Context))
	if err != nil {
		panic(err)
	}
	if records == nil {
		records = []Notification{}
	}
	c.JSON(http.StatusOK, records)
}
