package bizerror

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrConcurrentModification = errors.New("workflow was modified concurrently")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: e.Error(), Data: nil}
}

// WorkflowError is a domain rule violation raised by the workflow engine.
// Values are sentinels: compare with errors.Is.
type WorkflowError struct {
	Status  int
	Code    string
	Message string
}

func (e *WorkflowError) Error() string {
	return e.Message
}

func (e *WorkflowError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: e.Status, Code: e.Code, Message: e.Message}
}

func newWorkflowError(code, message string) *WorkflowError {
	return &WorkflowError{Status: http.StatusBadRequest, Code: "workflow." + code, Message: message}
}

var (
	ErrResumeNotDelayedWorkflow         = newWorkflowError("resume_not_delayed_workflow", "workflow is not delayed")
	ErrCompleteDelayedWorkflow          = newWorkflowError("complete_delayed_workflow", "a delayed workflow cannot be completed")
	ErrCompleteCompletedWorkflow        = newWorkflowError("complete_completed_workflow", "the workflow is already completed")
	ErrCompleteInactiveTask             = newWorkflowError("complete_inactive_task", "the task is not active")
	ErrUserAlreadyCompleteTask          = newWorkflowError("user_already_complete_task", "you have already completed this task")
	ErrUserNotPerformer                 = newWorkflowError("user_not_performer", "you are not a performer of this task")
	ErrChecklistIncompleted             = newWorkflowError("checklist_incompleted", "all checklist items must be checked")
	ErrSubWorkflowsIncompleted          = newWorkflowError("sub_workflows_incompleted", "all sub-workflows must be completed")
	ErrFirstTaskCannotBeReverted        = newWorkflowError("first_task_cannot_be_reverted", "there is no earlier task to return to")
	ErrRevertInactiveTask               = newWorkflowError("revert_inactive_task", "only an active task can be reverted")
	ErrCompletedTaskCannotBeReturned    = newWorkflowError("completed_task_cannot_be_returned", "a completed task cannot be returned")
	ErrDelayedWorkflowCannotBeChanged   = newWorkflowError("delayed_workflow_cannot_be_changed", "a delayed workflow cannot be changed")
	ErrCompletedWorkflowCannotBeChanged = newWorkflowError("completed_workflow_cannot_be_changed", "a completed workflow cannot be changed")
	ErrBlockedBySubWorkflows            = newWorkflowError("blocked_by_sub_workflows", "the task has running sub-workflows")
	ErrReturnToFutureTask               = newWorkflowError("return_to_future_task", "cannot return to a task that has not been reached")
	ErrPermissionDenied                 = &WorkflowError{Status: http.StatusForbidden, Code: "workflow.permission_denied", Message: "permission denied"}
)
