package workflow

import (
	"errors"
	"net/http"
	"pneumatic/bizerror"
	"pneumatic/event"
	"pneumatic/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var PathWorkflows = "/v1/workflows"

type TaskCompletion struct {
	Fields FieldValues `json:"fields"`
}

type TaskReverting struct {
	Comment string `json:"comment"`
}

type TaskReturning struct {
	TaskID types.ID `json:"taskId" binding:"required"`
}

type WorkflowDelaying struct {
	Date time.Time `json:"date" binding:"required"`
}

func RegisterWorkflowsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkflows, middleWares...)
	g.POST("", handleRunWorkflow)
	g.GET(":id", handleDetailWorkflow)
	g.DELETE(":id", handleTerminateWorkflow)
	g.GET(":id/events", handleQueryWorkflowEvents)
	g.PATCH(":id/events/:eventId", handleUpdateWorkflowEvent)
	g.POST(":id/comments", handleCommentWorkflow)
	g.GET(":id/analytics", handleQueryWorkflowTrackings)

	g.POST(":id/tasks/:taskId/complete", handleCompleteTask)
	g.POST(":id/tasks/:taskId/revert", handleRevertTask)
	g.POST(":id/return-to", handleReturnTo)
	g.POST(":id/delay", handleDelayWorkflow)
	g.POST(":id/resume", handleResumeWorkflow)
	g.POST(":id/finish", handleFinishWorkflow)
}

func handleRunWorkflow(c *gin.Context) {
	creation := WorkflowCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	w, err := RunWorkflowFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, w)
}

func handleDetailWorkflow(c *gin.Context) {
	detail, err := DetailWorkflowFunc(parseID(c, "id"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleQueryWorkflowEvents(c *gin.Context) {
	records, err := QueryWorkflowEventsFunc(parseID(c, "id"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleTerminateWorkflow(c *gin.Context) {
	service := NewActionServiceFunc(parseID(c, "id"), session.ExtractSessionFromGinContext(c))
	if err := service.TerminateWorkflow(); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func handleCompleteTask(c *gin.Context) {
	id, taskID := parseID(c, "id"), parseID(c, "taskId")
	req := TaskCompletion{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}
	service := NewActionServiceFunc(id, session.ExtractSessionFromGinContext(c))
	if err := service.CompleteTaskForUser(taskID, req.Fields); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, service.Workflow())
}

func handleRevertTask(c *gin.Context) {
	id, taskID := parseID(c, "id"), parseID(c, "taskId")
	req := TaskReverting{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}
	service := NewActionServiceFunc(id, session.ExtractSessionFromGinContext(c))
	if err := service.Revert(taskID, req.Comment); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, service.Workflow())
}

func handleReturnTo(c *gin.Context) {
	id := parseID(c, "id")
	req := TaskReturning{}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	service := NewActionServiceFunc(id, session.ExtractSessionFromGinContext(c))
	if err := service.ReturnTo(req.TaskID); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, service.Workflow())
}

func handleDelayWorkflow(c *gin.Context) {
	id := parseID(c, "id")
	req := WorkflowDelaying{}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	service := NewActionServiceFunc(id, session.ExtractSessionFromGinContext(c))
	if err := service.ForceDelayWorkflow(req.Date); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, service.Workflow())
}

func handleResumeWorkflow(c *gin.Context) {
	service := NewActionServiceFunc(parseID(c, "id"), session.ExtractSessionFromGinContext(c))
	if err := service.ForceResumeWorkflow(); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, service.Workflow())
}

func handleFinishWorkflow(c *gin.Context) {
	service := NewActionServiceFunc(parseID(c, "id"), session.ExtractSessionFromGinContext(c))
	if err := service.FinishWorkflow(); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, service.Workflow())
}

func handleCommentWorkflow(c *gin.Context) {
	id := parseID(c, "id")
	commenting := WorkflowCommenting{}
	if err := c.ShouldBindBodyWith(&commenting, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := CommentWorkflowFunc(id, &commenting, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleUpdateWorkflowEvent(c *gin.Context) {
	id, eventID := parseID(c, "id"), parseID(c, "eventId")
	fields := event.MutableFields{}
	if err := c.ShouldBindBodyWith(&fields, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := UpdateWorkflowEventFunc(id, eventID, &fields, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleQueryWorkflowTrackings(c *gin.Context) {
	trackings, err := QueryWorkflowTrackingsFunc(parseID(c, "id"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, trackings)
}

func parseID(c *gin.Context, name string) types.ID {
	id, err := types.ParseID(c.Param(name))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param(name) + "'")})
	}
	return id
}
