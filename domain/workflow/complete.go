package workflow

import (
	"fmt"
	"pneumatic/analytics"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/domain/checklist"
	"pneumatic/event"
	"pneumatic/webhook"
	"strings"

	"github.com/fundwit/go-commons/types"
)

// FieldValues are the output field values submitted with a completion, by api name.
// The value of a user field is the id of the user.
type FieldValues map[string]string

// CompleteTask completes the task on behalf of the workflow owner.
func (s *WorkflowActionService) CompleteTask(taskID types.ID, byUser bool) error {
	return s.execute(func() error {
		if err := s.requireOwner(); err != nil {
			return err
		}
		task, err := s.findTask(taskID)
		if err != nil {
			return err
		}
		return s.completeTask(task, byUser)
	})
}

// completeTask does nothing for a task the workflow already moved past.
func (s *WorkflowActionService) completeTask(task *domain.Task, byUser bool) error {
	if task.Number < s.workflow.CurrentTask || task.Status == domain.TaskStatusCompleted {
		return nil
	}
	if err := s.setTaskStatus(task, domain.TaskStatusCompleted); err != nil {
		return err
	}
	now := s.now
	task.DateCompleted = &now
	if err := s.saveTask(task); err != nil {
		return err
	}

	performers, err := s.activePerformers(task)
	if err != nil {
		return err
	}
	var incomplete []types.ID
	for _, p := range performers {
		if !p.IsCompleted {
			incomplete = append(incomplete, p.ID)
		}
	}
	if err := s.completePerformers(incomplete); err != nil {
		return err
	}

	if task.Number == s.workflow.CurrentTask {
		if err := s.recordEvent(event.EventTypeTaskComplete, task, "", nil); err != nil {
			return err
		}
		if err := s.track(analytics.EventTaskCompleted, task, map[string]interface{}{"byUser": byUser}); err != nil {
			return err
		}
		if err := s.sendWebhook(webhook.EventTaskCompleted, task); err != nil {
			return err
		}
	}
	return s.startNextTasks(task.Number)
}

// CompleteTaskForUser completes the task as the caller. When every performer must complete the task, only the
// performer rows of the caller are completed until none is left.
func (s *WorkflowActionService) CompleteTaskForUser(taskID types.ID, values FieldValues) error {
	return s.execute(func() error {
		task, err := s.findTask(taskID)
		if err != nil {
			return err
		}
		return s.completeTaskForUser(task, values)
	})
}

func (s *WorkflowActionService) completeTaskForUser(task *domain.Task, values FieldValues) error {
	if s.workflow.IsDelayed() {
		return bizerror.ErrCompleteDelayedWorkflow
	}
	if s.workflow.IsDone() {
		return bizerror.ErrCompleteCompletedWorkflow
	}
	if task.Status != domain.TaskStatusActive {
		return bizerror.ErrCompleteInactiveTask
	}

	mine, err := s.callerPerformers(task)
	if err != nil {
		return err
	}
	if len(mine) > 0 && allCompleted(mine) {
		return bizerror.ErrUserAlreadyCompleteTask
	}
	if len(mine) == 0 && !s.sec.Identity.IsAccountOwner {
		return bizerror.ErrUserNotPerformer
	}

	unselected, err := checklist.CountUnselectedDirectly(task.ID, s.tx)
	if err != nil {
		return err
	}
	if unselected > 0 {
		return bizerror.ErrChecklistIncompleted
	}
	running, err := s.runningSubWorkflows(task.ID)
	if err != nil {
		return err
	}
	if running > 0 {
		return bizerror.ErrSubWorkflowsIncompleted
	}
	if err := s.writeFieldValues(task, values); err != nil {
		return err
	}

	if task.RequireCompletionByAll {
		var ids []types.ID
		for _, p := range mine {
			if !p.IsCompleted {
				ids = append(ids, p.ID)
			}
		}
		if err := s.completePerformers(ids); err != nil {
			return err
		}
		left := 0
		if err := s.tx.Model(&domain.TaskPerformer{}).Where("task_id = ? AND status = ? AND is_completed = ?",
			task.ID, domain.LifecycleActive, false).Count(&left).Error; err != nil {
			return err
		}
		// the account owner cannot complete for performers who have not completed yet
		if left > 0 && len(mine) == 0 {
			return bizerror.ErrUserNotPerformer
		}
		if left > 0 {
			s.logger().WithField("task", task.ID).WithField("left", left).Debug("task completed partially")
			return nil
		}
	}
	return s.completeTask(task, true)
}

func allCompleted(performers []domain.TaskPerformer) bool {
	for _, p := range performers {
		if !p.IsCompleted {
			return false
		}
	}
	return true
}

// writeFieldValues stores the submitted output fields of the task. A required field must have a value.
func (s *WorkflowActionService) writeFieldValues(task *domain.Task, values FieldValues) error {
	var fields []domain.TaskField
	if err := s.tx.Where("task_id = ? AND workflow_id = ?", task.ID, s.workflow.ID).Order("id ASC").Find(&fields).Error; err != nil {
		return err
	}
	known := map[string]bool{}
	for i := range fields {
		f := &fields[i]
		known[f.APIName] = true
		if v, ok := values[f.APIName]; ok {
			f.Value = strings.TrimSpace(v)
			f.UserID = 0
			if f.Type == domain.FieldTypeUser && f.Value != "" {
				uid, err := types.ParseID(f.Value)
				if err != nil {
					return &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid user '%s' of field '%s'", v, f.APIName)}
				}
				if err := checkAccountUser(s.tx, s.workflow.AccountID, uid); err != nil {
					return err
				}
				f.UserID = uid
			}
			if err := s.tx.Model(&domain.TaskField{}).Where("id = ?", f.ID).
				Updates(map[string]interface{}{"value": f.Value, "user_id": f.UserID}).Error; err != nil {
				return err
			}
		}
		if f.IsRequired && f.IsEmpty() {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("field '%s' is required", f.APIName)}
		}
	}
	for apiName := range values {
		if !known[apiName] {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("unknown field '%s'", apiName)}
		}
	}
	return nil
}
