package domain

import (
	"pneumatic/domain/state"
	"time"

	"github.com/fundwit/go-commons/types"
)

type WorkflowStatus string

const (
	WorkflowStatusRunning WorkflowStatus = "RUNNING"
	WorkflowStatusDelayed WorkflowStatus = "DELAYED"
	WorkflowStatusDone    WorkflowStatus = "DONE"
)

var (
	workflowRunning = state.State{Name: string(WorkflowStatusRunning), Category: state.InProcess}
	workflowDelayed = state.State{Name: string(WorkflowStatusDelayed), Category: state.InProcess}
	workflowDone    = state.State{Name: string(WorkflowStatusDone), Category: state.Done}

	WorkflowStateMachine = state.NewStateMachine("workflow",
		[]state.State{workflowRunning, workflowDelayed, workflowDone},
		[]state.Transition{
			{Name: "delay", From: workflowRunning, To: workflowDelayed},
			{Name: "resume", From: workflowDelayed, To: workflowRunning},
			{Name: "end", From: workflowRunning, To: workflowDone},
			{Name: "end", From: workflowDelayed, To: workflowDone},
			{Name: "reopen", From: workflowDone, To: workflowRunning},
		})
)

type Workflow struct {
	ID           types.ID `json:"id" gorm:"primary_key"`
	AccountID    types.ID `json:"accountId" gorm:"index"`
	Name         string   `json:"name"`
	TemplateName string   `json:"templateName"`

	Status           WorkflowStatus `json:"status"`
	CurrentTask      int            `json:"currentTask"`
	ActiveTasksCount int            `json:"activeTasksCount"`
	TasksCount       int            `json:"tasksCount"`

	IsUrgent bool       `json:"isUrgent"`
	DueDate  *time.Time `json:"dueDate"`

	// AncestorTaskID is the task of the parent workflow which ran this one, zero for top level workflows.
	AncestorTaskID types.ID `json:"ancestorTaskId" gorm:"index"`
	StarterID      types.ID `json:"starterId"`

	DateCreated   time.Time  `json:"dateCreated"`
	DateCompleted *time.Time `json:"dateCompleted"`

	Version int `json:"version"`
}

func (w *Workflow) IsDelayed() bool {
	return w.Status == WorkflowStatusDelayed
}

func (w *Workflow) IsDone() bool {
	return w.Status == WorkflowStatusDone
}

// WorkflowMember grants visibility on a workflow. Owners are members flagged IsOwner.
type WorkflowMember struct {
	ID         types.ID        `json:"id" gorm:"primary_key"`
	WorkflowID types.ID        `json:"workflowId" gorm:"index"`
	UserID     types.ID        `json:"userId"`
	IsOwner    bool            `json:"isOwner"`
	Status     LifecycleStatus `json:"status"`
}

// LifecycleStatus tags join entities which are soft removed instead of deleted.
type LifecycleStatus string

const (
	LifecycleActive  LifecycleStatus = "ACTIVE"
	LifecycleRemoved LifecycleStatus = "REMOVED"
)
