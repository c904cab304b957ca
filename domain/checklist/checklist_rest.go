package checklist

import (
	"errors"
	"net/http"
	"pneumatic/bizerror"
	"pneumatic/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

var (
	PathTasks          = "/v1/tasks"
	PathChecklistItems = "/v1/checklist-items"
)

func RegisterChecklistRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	tg := r.Group(PathTasks, middleWares...)
	tg.GET(":taskId/checklist", handleListChecklist)

	g := r.Group(PathChecklistItems, middleWares...)
	g.POST(":id/mark", handleMarkChecklistItem)
	g.POST(":id/unmark", handleUnmarkChecklistItem)
}

func handleListChecklist(c *gin.Context) {
	taskID, err := types.ParseID(c.Param("taskId"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("taskId") + "'")})
	}
	items, err := ListChecklistFunc(taskID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, items)
}

func handleMarkChecklistItem(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("id") + "'")})
	}
	item, err := MarkChecklistItemFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, item)
}

func handleUnmarkChecklistItem(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("id") + "'")})
	}
	item, err := UnmarkChecklistItemFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, item)
}
