package domain

import (
	"pneumatic/domain/state"
	"time"

	"github.com/fundwit/go-commons/types"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusActive    TaskStatus = "ACTIVE"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusSkipped   TaskStatus = "SKIPPED"
	TaskStatusDelayed   TaskStatus = "DELAYED"
)

var (
	taskPending   = state.State{Name: string(TaskStatusPending), Category: state.InBacklog}
	taskActive    = state.State{Name: string(TaskStatusActive), Category: state.InProcess}
	taskDelayed   = state.State{Name: string(TaskStatusDelayed), Category: state.InProcess}
	taskCompleted = state.State{Name: string(TaskStatusCompleted), Category: state.Done}
	taskSkipped   = state.State{Name: string(TaskStatusSkipped), Category: state.Done}

	TaskStateMachine = state.NewStateMachine("task",
		[]state.State{taskPending, taskActive, taskDelayed, taskCompleted, taskSkipped},
		[]state.Transition{
			{Name: "start", From: taskPending, To: taskActive},
			{Name: "skip", From: taskPending, To: taskSkipped},
			{Name: "delay", From: taskPending, To: taskDelayed},
			{Name: "delay", From: taskActive, To: taskDelayed},
			{Name: "resume", From: taskDelayed, To: taskActive},
			{Name: "complete", From: taskActive, To: taskCompleted},
			{Name: "reset", From: taskActive, To: taskPending},
			{Name: "reset", From: taskDelayed, To: taskPending},
			{Name: "reset", From: taskCompleted, To: taskPending},
			{Name: "reset", From: taskSkipped, To: taskPending},
		})
)

type Task struct {
	ID          types.ID `json:"id" gorm:"primary_key"`
	WorkflowID  types.ID `json:"workflowId" gorm:"index"`
	AccountID   types.ID `json:"accountId"`
	Number      int      `json:"number"`
	APIName     string   `json:"apiName"`
	Name        string   `json:"name"`
	Description string   `json:"description"`

	Status                 TaskStatus `json:"status"`
	RequireCompletionByAll bool       `json:"requireCompletionByAll"`
	IsUrgent               bool       `json:"isUrgent"`

	DueDate          *time.Time `json:"dueDate"`
	DateStarted      *time.Time `json:"dateStarted"`
	DateFirstStarted *time.Time `json:"dateFirstStarted"`
	DateCompleted    *time.Time `json:"dateCompleted"`
}

type PerformerType string

const (
	PerformerTypeUser            PerformerType = "USER"
	PerformerTypeGroup           PerformerType = "GROUP"
	PerformerTypeWorkflowStarter PerformerType = "WORKFLOW_STARTER"
	PerformerTypeField           PerformerType = "FIELD"
)

// RawPerformer is the assignment rule of a task, resolved into TaskPerformer rows when the task starts.
type RawPerformer struct {
	ID         types.ID      `json:"id" gorm:"primary_key"`
	WorkflowID types.ID      `json:"workflowId" gorm:"index"`
	TaskID     types.ID      `json:"taskId" gorm:"index"`
	Type       PerformerType `json:"type"`
	UserID     types.ID      `json:"userId"`
	GroupID    types.ID      `json:"groupId"`
	// FieldAPIName names the user field whose value designates the performer.
	FieldAPIName string `json:"fieldApiName"`
}

// TaskPerformer assigns a user or a group to a task. Type is USER or GROUP.
type TaskPerformer struct {
	ID         types.ID      `json:"id" gorm:"primary_key"`
	WorkflowID types.ID      `json:"workflowId" gorm:"index"`
	TaskID     types.ID      `json:"taskId" gorm:"index"`
	Type       PerformerType `json:"type"`
	UserID     types.ID      `json:"userId"`
	GroupID    types.ID      `json:"groupId"`

	IsCompleted   bool            `json:"isCompleted"`
	DateCompleted *time.Time      `json:"dateCompleted"`
	Status        LifecycleStatus `json:"status"`
}

func (p TaskPerformer) IsActive() bool {
	return p.Status == LifecycleActive
}
