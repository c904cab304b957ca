package workflow

import (
	"pneumatic/analytics"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/domain/checklist"
	"pneumatic/event"
	"pneumatic/webhook"
)

// TerminateWorkflow deletes the workflow with everything it owns and terminates its running sub-workflows.
// The events of the workflow are kept.
func (s *WorkflowActionService) TerminateWorkflow() error {
	return s.execute(func() error {
		if err := s.requireOwner(); err != nil {
			return err
		}
		return s.terminate()
	})
}

func (s *WorkflowActionService) terminate() error {
	if err := s.notifyRemovedTasks(); err != nil {
		return err
	}
	if err := s.deactivateGuestTokens(); err != nil {
		return err
	}

	var children []domain.Workflow
	if err := s.tx.Where("ancestor_task_id IN ? AND status <> ?",
		s.tx.Table("tasks").Select("id").Where("workflow_id = ?", s.workflow.ID).SubQuery(),
		domain.WorkflowStatusDone).Order("id ASC").Find(&children).Error; err != nil {
		return err
	}
	for _, c := range children {
		child := &WorkflowActionService{WorkflowID: c.ID, sec: s.sec}
		if err := child.executeIn(s.tx, s.fx, child.terminate); err != nil {
			return err
		}
	}

	if err := s.sendWebhook(webhook.EventWorkflowTerminated, nil); err != nil {
		return err
	}
	if err := s.track(analytics.EventWorkflowTerminated, nil, nil); err != nil {
		return err
	}
	if err := s.deleteOwnedRows(); err != nil {
		return err
	}

	db := s.tx.Where("id = ? AND version = ?", s.workflow.ID, s.version).Delete(&domain.Workflow{})
	if db.Error != nil {
		return db.Error
	}
	if db.RowsAffected != 1 {
		return bizerror.ErrConcurrentModification
	}
	s.deleted = true
	return nil
}

func (s *WorkflowActionService) deleteOwnedRows() error {
	id := s.workflow.ID
	conditionIDs := s.tx.Table("conditions").Select("id").Where("workflow_id = ?", id).SubQuery()
	if err := s.tx.Where("rule_id IN ?", s.tx.Table("rules").Select("id").Where("condition_id IN ?", conditionIDs).SubQuery()).
		Delete(&domain.Predicate{}).Error; err != nil {
		return err
	}
	if err := s.tx.Where("condition_id IN ?", conditionIDs).Delete(&domain.Rule{}).Error; err != nil {
		return err
	}
	if err := checklist.CleanWorkflowChecklistDirectly(id, s.tx); err != nil {
		return err
	}
	for _, model := range []interface{}{&domain.Condition{}, &domain.TaskField{}, &domain.Delay{},
		&domain.TaskPerformer{}, &domain.RawPerformer{}, &domain.Task{}, &domain.WorkflowMember{}} {
		if err := s.tx.Where("workflow_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// FinishWorkflow ends the workflow on behalf of its owner.
func (s *WorkflowActionService) FinishWorkflow() error {
	return s.EndProcess(false, false)
}

func (s *WorkflowActionService) EndProcess(byCondition, byCompleteTask bool) error {
	return s.execute(func() error {
		if err := s.requireOwner(); err != nil {
			return err
		}
		if s.workflow.IsDone() {
			return bizerror.ErrCompletedWorkflowCannotBeChanged
		}
		return s.endProcess(byCondition, byCompleteTask)
	})
}

// endProcess marks the workflow done. Tasks in progress lose their performers' attention, open delays are closed.
func (s *WorkflowActionService) endProcess(byCondition, byCompleteTask bool) error {
	if err := s.notifyRemovedTasks(); err != nil {
		return err
	}
	if err := s.closeOpenDelays(); err != nil {
		return err
	}
	if err := s.deactivateGuestTokens(); err != nil {
		return err
	}
	if err := s.setWorkflowStatus(domain.WorkflowStatusDone); err != nil {
		return err
	}
	now := s.now
	s.workflow.DateCompleted = &now
	s.workflow.ActiveTasksCount = 0

	eventType := event.EventTypeEnded
	switch {
	case byCompleteTask:
		eventType = event.EventTypeComplete
	case byCondition:
		eventType = event.EventTypeEndedByCondition
	}
	if err := s.recordEvent(eventType, nil, "", nil); err != nil {
		return err
	}
	if err := s.sendWebhook(webhook.EventWorkflowCompleted, nil); err != nil {
		return err
	}
	if err := s.track(analytics.EventWorkflowCompleted, nil, map[string]interface{}{"byCondition": byCondition}); err != nil {
		return err
	}
	return s.recordParentEvent(event.EventTypeSubWorkflowComplete)
}
