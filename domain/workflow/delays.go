package workflow

import (
	"context"
	"errors"
	"fmt"
	"pneumatic/analytics"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/event"
	"pneumatic/idgen"
	"pneumatic/notification"
	"pneumatic/persistence"
	"pneumatic/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var ResumeExpiredDelaysFunc = ResumeExpiredDelays

// delayWorkflow starts the delay of the task and pauses the workflow until it expires.
func (s *WorkflowActionService) delayWorkflow(delay *domain.Delay, task *domain.Task) error {
	now := s.now
	delay.StartDate, delay.EndDate = &now, nil
	if err := s.tx.Save(delay).Error; err != nil {
		return err
	}
	if err := s.setWorkflowStatus(domain.WorkflowStatusDelayed); err != nil {
		return err
	}
	if err := s.setTaskStatus(task, domain.TaskStatusDelayed); err != nil {
		return err
	}
	if err := s.saveTask(task); err != nil {
		return err
	}
	if err := s.recordEvent(event.EventTypeDelay, task, "", delay); err != nil {
		return err
	}
	users, err := s.performerUsers(task, true)
	if err != nil {
		return err
	}
	return s.notify(notification.KindDelayWorkflow, task, users, delay.EstimatedEndDate())
}

// ForceDelayWorkflow pauses the current task until date.
func (s *WorkflowActionService) ForceDelayWorkflow(date time.Time) error {
	return s.execute(func() error {
		return s.forceDelayWorkflow(date)
	})
}

func (s *WorkflowActionService) forceDelayWorkflow(date time.Time) error {
	if err := s.requireOwner(); err != nil {
		return err
	}
	if s.workflow.IsDone() {
		return bizerror.ErrCompletedWorkflowCannotBeChanged
	}
	if s.workflow.IsDelayed() {
		return bizerror.ErrDelayedWorkflowCannotBeChanged
	}
	if !date.After(s.now) {
		return &bizerror.ErrBadParam{Cause: errors.New("delay date must be in the future")}
	}
	task, err := s.currentTask()
	if err != nil {
		return err
	}

	now := s.now
	delay := domain.Delay{
		ID:         idgen.NextID(workflowIdWorker),
		WorkflowID: s.workflow.ID,
		TaskID:     task.ID,
		Duration:   date.Sub(now).Round(time.Second),
		StartDate:  &now,
		IsForced:   true,
	}
	if err := s.tx.Create(&delay).Error; err != nil {
		return err
	}
	if err := s.setWorkflowStatus(domain.WorkflowStatusDelayed); err != nil {
		return err
	}
	if err := s.setTaskStatus(task, domain.TaskStatusDelayed); err != nil {
		return err
	}
	if err := s.saveTask(task); err != nil {
		return err
	}
	if err := s.recordEvent(event.EventTypeForceDelay, task, "", &delay); err != nil {
		return err
	}
	users, err := s.performerUsers(task, false)
	if err != nil {
		return err
	}
	if err := s.notify(notification.KindDelayWorkflow, task, users, delay.EstimatedEndDate()); err != nil {
		return err
	}
	return s.track(analytics.EventWorkflowDelayed, task, map[string]interface{}{"duration": delay.Duration.String()})
}

// ResumeWorkflow ends the open delay of a delayed workflow.
func (s *WorkflowActionService) ResumeWorkflow() error {
	return s.execute(func() error {
		return s.resumeWorkflow(false)
	})
}

// ForceResumeWorkflow ends the open delay before it expires.
func (s *WorkflowActionService) ForceResumeWorkflow() error {
	return s.execute(func() error {
		if err := s.requireOwner(); err != nil {
			return err
		}
		return s.resumeWorkflow(true)
	})
}

func (s *WorkflowActionService) resumeWorkflow(force bool) error {
	if !s.workflow.IsDelayed() {
		return bizerror.ErrResumeNotDelayedWorkflow
	}
	var delays []domain.Delay
	if err := s.tx.Where("workflow_id = ? AND start_date IS NOT NULL AND end_date IS NULL", s.workflow.ID).
		Order("start_date DESC").Find(&delays).Error; err != nil {
		return err
	}
	if err := s.closeOpenDelays(); err != nil {
		return err
	}

	task, err := s.currentTask()
	if err != nil {
		return err
	}
	eventType := event.EventTypeResume
	if force {
		eventType = event.EventTypeForceResume
	}
	if err := s.setWorkflowStatus(domain.WorkflowStatusRunning); err != nil {
		return err
	}
	if err := s.recordEvent(eventType, task, "", nil); err != nil {
		return err
	}
	if task.Status != domain.TaskStatusDelayed {
		return nil
	}

	forced := len(delays) > 0 && delays[0].IsForced
	if !forced || task.DateStarted == nil {
		return s.continueWorkflow(task, false)
	}
	if err := s.setTaskStatus(task, domain.TaskStatusActive); err != nil {
		return err
	}
	if err := s.saveTask(task); err != nil {
		return err
	}
	users, err := s.performerUsers(task, true)
	if err != nil {
		return err
	}
	return s.notify(notification.KindResumeWorkflow, task, users, nil)
}

// ResumeExpiredDelays resumes the delayed workflows whose open delay has expired. It returns the number of
// workflows resumed, a failing workflow is logged and does not stop the others.
func ResumeExpiredDelays(ctx context.Context) (int, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	var delays []domain.Delay
	if err := db.Table("delays").Select("delays.*").
		Joins("JOIN workflows ON workflows.id = delays.workflow_id").
		Where("workflows.status = ? AND delays.start_date IS NOT NULL AND delays.end_date IS NULL", domain.WorkflowStatusDelayed).
		Order("delays.id ASC").Find(&delays).Error; err != nil {
		return 0, err
	}

	now := NowFunc()
	seen := map[types.ID]bool{}
	resumed := 0
	for _, d := range delays {
		end := d.EstimatedEndDate()
		if seen[d.WorkflowID] || end == nil || end.After(now) {
			continue
		}
		seen[d.WorkflowID] = true
		if err := NewActionServiceFunc(d.WorkflowID, session.SystemSession(ctx)).ResumeWorkflow(); err != nil {
			logrus.WithError(err).WithField("workflow", d.WorkflowID).Error(fmt.Sprintf("failed to resume delay %d", d.ID))
			continue
		}
		resumed++
	}
	return resumed, nil
}
