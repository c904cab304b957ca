package workflow

import (
	"fmt"
	"pneumatic/analytics"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/domain/checklist"
	"pneumatic/domain/condition"
	"pneumatic/event"
	"pneumatic/notification"
	"pneumatic/persistence"
	"pneumatic/webhook"

	"github.com/fundwit/go-commons/types"
)

// StartWorkflow starts a workflow which was created but never started.
func (s *WorkflowActionService) StartWorkflow() error {
	return s.execute(func() error {
		if err := s.requireOwner(); err != nil {
			return err
		}
		if s.workflow.CurrentTask != 0 || s.workflow.IsDone() {
			return fmt.Errorf("workflow %d was already started: %w", s.workflow.ID, bizerror.ErrInvalidTransition)
		}
		return s.startWorkflow()
	})
}

func (s *WorkflowActionService) startWorkflow() error {
	s.workflow.Status = domain.WorkflowStatusRunning
	if err := s.recordEvent(event.EventTypeRun, nil, "", nil); err != nil {
		return err
	}
	if err := s.recordParentEvent(event.EventTypeSubWorkflowRun); err != nil {
		return err
	}
	if err := s.sendWebhook(webhook.EventWorkflowStarted, nil); err != nil {
		return err
	}
	if err := s.track(analytics.EventWorkflowStarted, nil, nil); err != nil {
		return err
	}
	return s.startNextTasks(0)
}

// startNextTasks enters the task following number, the workflow ends when there is none.
func (s *WorkflowActionService) startNextTasks(number int) error {
	next, err := s.taskByNumber(number + 1)
	if err != nil {
		return err
	}
	if next == nil {
		return s.endProcess(false, true)
	}
	return s.enterTask(next, false)
}

// startPreviousTasks enters the task preceding number while walking backwards.
func (s *WorkflowActionService) startPreviousTasks(number int) error {
	prev, err := s.taskByNumber(number - 1)
	if err != nil {
		return err
	}
	if prev == nil {
		return bizerror.ErrFirstTaskCannotBeReverted
	}
	if prev.Status != domain.TaskStatusPending {
		if err := s.resetTask(prev); err != nil {
			return err
		}
	}
	return s.enterTask(prev, true)
}

func (s *WorkflowActionService) enterTask(task *domain.Task, isReturned bool) error {
	action, byCondition, err := s.executeCondition(task)
	if err != nil {
		return err
	}
	switch action {
	case domain.ActionStartTask:
		return s.startTask(task, isReturned)
	case domain.ActionSkipTask:
		return s.skipTask(task, isReturned, byCondition, event.EventTypeTaskSkip)
	case domain.ActionEndProcess:
		return s.endProcess(byCondition, false)
	default:
		return fmt.Errorf("unsupported condition action '%s' of task %d", action, task.ID)
	}
}

// ExecuteCondition evaluates the conditions of the task against the current field values without changing anything.
func (s *WorkflowActionService) ExecuteCondition(taskID types.ID) (domain.ConditionAction, bool, error) {
	s.tx, s.fx, s.now = persistence.ActiveDataSourceManager.GormDB(s.sec.Context), &effects{}, NowFunc()
	w := domain.Workflow{}
	if err := s.tx.Where("id = ?", s.WorkflowID).First(&w).Error; err != nil {
		return "", false, err
	}
	if !s.sec.IsSystem() && w.AccountID != s.sec.Identity.AccountID {
		return "", false, bizerror.ErrForbidden
	}
	s.workflow, s.version = &w, w.Version
	task, err := s.findTask(taskID)
	if err != nil {
		return "", false, err
	}
	return s.executeCondition(task)
}

func (s *WorkflowActionService) executeCondition(task *domain.Task) (domain.ConditionAction, bool, error) {
	conditions, err := condition.LoadConditionsFunc(s.tx, task.ID)
	if err != nil {
		return "", false, err
	}
	if len(conditions) == 0 {
		return domain.ActionStartTask, false, nil
	}
	values, err := s.conditionValues()
	if err != nil {
		return "", false, err
	}
	action, byCondition := condition.Execute(conditions, values)
	return action, byCondition, nil
}

func (s *WorkflowActionService) conditionValues() (condition.Values, error) {
	values := condition.Values{Fields: map[string]domain.TaskField{}, TaskStatuses: map[string]domain.TaskStatus{}}
	var fields []domain.TaskField
	if err := s.tx.Where("workflow_id = ?", s.workflow.ID).Order("id ASC").Find(&fields).Error; err != nil {
		return values, err
	}
	for _, f := range fields {
		values.Fields[f.APIName] = f
	}
	tasks, err := s.loadTasks()
	if err != nil {
		return values, err
	}
	for _, t := range tasks {
		if t.APIName != "" {
			values.TaskStatuses[t.APIName] = t.Status
		}
	}
	return values, nil
}

// StartTask enters the task regardless of its conditions.
func (s *WorkflowActionService) StartTask(taskID types.ID, isReturned bool) error {
	return s.execute(func() error {
		if err := s.requireOwner(); err != nil {
			return err
		}
		task, err := s.findTask(taskID)
		if err != nil {
			return err
		}
		return s.startTask(task, isReturned)
	})
}

// startTask makes task the current one. A task nobody can perform is skipped, a task with a pending delay delays
// the workflow, any other task continues.
func (s *WorkflowActionService) startTask(task *domain.Task, isReturned bool) error {
	s.workflow.CurrentTask = task.Number

	users, err := s.resolvePerformers(task)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return s.skipTask(task, isReturned, false, event.EventTypeTaskSkipNoPerformers)
	}

	var delays []domain.Delay
	if err := s.tx.Where("task_id = ? AND start_date IS NULL AND end_date IS NULL", task.ID).Order("id ASC").
		Limit(1).Find(&delays).Error; err != nil {
		return err
	}
	if len(delays) > 0 {
		return s.delayWorkflow(&delays[0], task)
	}
	return s.continueWorkflow(task, isReturned)
}

// continueWorkflow brings a delayed workflow back to running before the task continues.
func (s *WorkflowActionService) continueWorkflow(task *domain.Task, isReturned bool) error {
	if s.workflow.IsDelayed() {
		if err := s.setWorkflowStatus(domain.WorkflowStatusRunning); err != nil {
			return err
		}
	}
	return s.continueTask(task, isReturned)
}

// continueTask activates the task and hands it over to its performers.
func (s *WorkflowActionService) continueTask(task *domain.Task, isReturned bool) error {
	if err := s.setTaskStatus(task, domain.TaskStatusActive); err != nil {
		return err
	}
	now := s.now
	task.DateStarted, task.DateCompleted = &now, nil
	if task.DateFirstStarted == nil {
		task.DateFirstStarted = &now
	}
	task.IsUrgent = task.IsUrgent || s.workflow.IsUrgent
	if err := s.saveTask(task); err != nil {
		return err
	}
	s.workflow.CurrentTask = task.Number

	users, err := s.performerUsers(task, true)
	if err != nil {
		return err
	}
	if err := s.addMembers(users); err != nil {
		return err
	}
	if err := s.recordEvent(event.EventTypeTaskStart, task, "", nil); err != nil {
		return err
	}
	kind := notification.KindNewTask
	if isReturned {
		kind = notification.KindReturnedTask
	}
	if err := s.notify(kind, task, users, nil); err != nil {
		return err
	}
	if err := s.sendWebhook(webhook.EventTaskStarted, task); err != nil {
		return err
	}
	if isReturned {
		if err := s.sendWebhook(webhook.EventTaskReturned, task); err != nil {
			return err
		}
		if err := s.track(analytics.EventTaskReturned, task, nil); err != nil {
			return err
		}
	}
	return nil
}

// SkipTask skips the task forward, or walks it back to pending when returned.
func (s *WorkflowActionService) SkipTask(taskID types.ID, isReturned, byCondition bool) error {
	return s.execute(func() error {
		if err := s.requireOwner(); err != nil {
			return err
		}
		task, err := s.findTask(taskID)
		if err != nil {
			return err
		}
		return s.skipTask(task, isReturned, byCondition, event.EventTypeTaskSkip)
	})
}

func (s *WorkflowActionService) skipTask(task *domain.Task, isReturned, byCondition bool, eventType event.EventType) error {
	if isReturned {
		if err := s.resetTask(task); err != nil {
			return err
		}
		return s.startPreviousTasks(task.Number)
	}

	if err := s.setTaskStatus(task, domain.TaskStatusSkipped); err != nil {
		return err
	}
	task.DateStarted, task.DateCompleted = nil, nil
	if err := s.saveTask(task); err != nil {
		return err
	}
	text := ""
	if byCondition {
		text = "skipped by condition"
	}
	if err := s.recordEvent(eventType, task, text, nil); err != nil {
		return err
	}
	return s.startNextTasks(task.Number)
}

// resetTask brings the task back to pending: dates, performer completions, template delays and checklist selections
// are cleared. Due dates and performers are kept.
func (s *WorkflowActionService) resetTask(task *domain.Task) error {
	if err := s.setTaskStatus(task, domain.TaskStatusPending); err != nil {
		return err
	}
	task.DateStarted, task.DateCompleted = nil, nil
	if err := s.saveTask(task); err != nil {
		return err
	}
	if err := s.resetPerformersCompletion(task); err != nil {
		return err
	}
	if err := s.tx.Model(&domain.Delay{}).Where("task_id = ? AND is_forced = ?", task.ID, false).
		Updates(map[string]interface{}{"start_date": nil, "end_date": nil}).Error; err != nil {
		return err
	}
	return checklist.UnselectAllDirectly(task.ID, s.tx)
}
