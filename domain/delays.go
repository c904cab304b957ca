package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// Delay holds a task. Template delays are created with the workflow and start when the task is reached,
// forced delays start immediately. A delay is open while started and not ended.
type Delay struct {
	ID         types.ID      `json:"id" gorm:"primary_key"`
	WorkflowID types.ID      `json:"workflowId" gorm:"index"`
	TaskID     types.ID      `json:"taskId" gorm:"index"`
	Duration   time.Duration `json:"duration"`
	StartDate  *time.Time    `json:"startDate"`
	EndDate    *time.Time    `json:"endDate"`
	IsForced   bool          `json:"isForced"`
}

func (d Delay) EstimatedEndDate() *time.Time {
	if d.StartDate == nil {
		return nil
	}
	end := d.StartDate.Add(d.Duration)
	return &end
}

func (d Delay) IsOpen() bool {
	return d.StartDate != nil && d.EndDate == nil
}

func (d Delay) IsPending() bool {
	return d.StartDate == nil && d.EndDate == nil
}
