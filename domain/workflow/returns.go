package workflow

import (
	"math"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/event"

	"github.com/fundwit/go-commons/types"
)

// Revert sends the active task back to the closest earlier task which would not be skipped.
func (s *WorkflowActionService) Revert(taskID types.ID, comment string) error {
	return s.execute(func() error {
		task, err := s.findTask(taskID)
		if err != nil {
			return err
		}
		return s.revert(task, comment)
	})
}

func (s *WorkflowActionService) revert(task *domain.Task, comment string) error {
	if s.workflow.IsDone() {
		return bizerror.ErrCompletedWorkflowCannotBeChanged
	}
	if s.workflow.IsDelayed() {
		return bizerror.ErrDelayedWorkflowCannotBeChanged
	}
	if task.Status == domain.TaskStatusCompleted {
		return bizerror.ErrCompletedTaskCannotBeReturned
	}
	if task.Status != domain.TaskStatusActive {
		return bizerror.ErrRevertInactiveTask
	}
	mine, err := s.callerPerformers(task)
	if err != nil {
		return err
	}
	if len(mine) == 0 && !s.sec.Identity.IsAccountOwner {
		return bizerror.ErrUserNotPerformer
	}
	if task.Number == 1 {
		return bizerror.ErrFirstTaskCannotBeReverted
	}
	running, err := s.runningSubWorkflows(task.ID)
	if err != nil {
		return err
	}
	if running > 0 {
		return bizerror.ErrBlockedBySubWorkflows
	}

	target, err := s.findReturnTarget(task.Number - 1)
	if err != nil {
		return err
	}

	if err := s.resetTasksFrom(target.Number, task.Number); err != nil {
		return err
	}
	if err := s.recordEvent(event.EventTypeTaskRevert, task, comment, nil); err != nil {
		return err
	}
	target, err = s.findTask(target.ID)
	if err != nil {
		return err
	}
	return s.startTask(target, true)
}

// ReturnTo moves the workflow back to the task, reopening a completed workflow.
func (s *WorkflowActionService) ReturnTo(taskID types.ID) error {
	return s.execute(func() error {
		task, err := s.findTask(taskID)
		if err != nil {
			return err
		}
		return s.returnTo(task)
	})
}

func (s *WorkflowActionService) returnTo(task *domain.Task) error {
	if err := s.requireOwner(); err != nil {
		return err
	}
	if s.workflow.IsDelayed() {
		return bizerror.ErrDelayedWorkflowCannotBeChanged
	}
	if task.Number > s.workflow.CurrentTask {
		return bizerror.ErrReturnToFutureTask
	}
	if current, err := s.taskByNumber(s.workflow.CurrentTask); err != nil {
		return err
	} else if current != nil {
		running, err := s.runningSubWorkflows(current.ID)
		if err != nil {
			return err
		}
		if running > 0 {
			return bizerror.ErrBlockedBySubWorkflows
		}
	}

	target, err := s.findReturnTarget(task.Number)
	if err != nil {
		return err
	}

	if s.workflow.IsDone() {
		if err := s.setWorkflowStatus(domain.WorkflowStatusRunning); err != nil {
			return err
		}
		s.workflow.DateCompleted = nil
	}
	if err := s.notifyRemovedTasks(); err != nil {
		return err
	}
	if err := s.closeOpenDelays(); err != nil {
		return err
	}

	if err := s.resetTasksFrom(target.Number, math.MaxInt32); err != nil {
		return err
	}

	target, err = s.findTask(target.ID)
	if err != nil {
		return err
	}
	if err := s.recordEvent(event.EventTypeTaskReturn, target, "", nil); err != nil {
		return err
	}
	return s.startTask(target, true)
}

// findReturnTarget walks backwards from number to the first task whose conditions would not skip it.
func (s *WorkflowActionService) findReturnTarget(number int) (*domain.Task, error) {
	for n := number; n >= 1; n-- {
		task, err := s.taskByNumber(n)
		if err != nil {
			return nil, err
		}
		if task == nil {
			continue
		}
		action, _, err := s.executeCondition(task)
		if err != nil {
			return nil, err
		}
		if action != domain.ActionSkipTask {
			return task, nil
		}
	}
	return nil, bizerror.ErrFirstTaskCannotBeReverted
}

// resetTasksFrom brings the tasks numbered from..to back to pending, pending tasks are left untouched.
func (s *WorkflowActionService) resetTasksFrom(from, to int) error {
	tasks, err := s.loadTasks()
	if err != nil {
		return err
	}
	for i := range tasks {
		t := &tasks[i]
		if t.Number < from || t.Number > to || t.Status == domain.TaskStatusPending {
			continue
		}
		if err := s.resetTask(t); err != nil {
			return err
		}
	}
	return nil
}
