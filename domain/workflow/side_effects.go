package workflow

import (
	"errors"
	"pneumatic/analytics"
	"pneumatic/domain"
	"pneumatic/event"
	"pneumatic/notification"
	"pneumatic/webhook"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// WebhookPayload is the data posted to webhook subscribers.
type WebhookPayload struct {
	Workflow *domain.Workflow `json:"workflow"`
	Task     *domain.Task     `json:"task,omitempty"`
}

func (s *WorkflowActionService) recordEvent(t event.EventType, task *domain.Task, text string, delay *domain.Delay) error {
	snapshot := event.Snapshot{WorkflowName: s.workflow.Name, WorkflowStatus: string(s.workflow.Status)}
	ev := event.Event{AccountID: s.workflow.AccountID, WorkflowID: s.workflow.ID, Type: t, Text: text}
	if task != nil {
		ev.TaskID = task.ID
		snapshot.TaskNumber, snapshot.TaskName, snapshot.TaskStatus = task.Number, task.Name, string(task.Status)
		performers, err := s.performerUsers(task, false)
		if err != nil {
			return err
		}
		snapshot.Performers = performers
	}
	if delay != nil {
		ev.DelayDuration = delay.Duration
		snapshot.EstimatedEndDate = delay.EstimatedEndDate()
	}
	ev.Snapshot = snapshot
	return s.createEvent(ev)
}

// recordParentEvent records an event about this sub-workflow on the workflow which spawned it.
func (s *WorkflowActionService) recordParentEvent(t event.EventType) error {
	if s.workflow.AncestorTaskID == 0 {
		return nil
	}
	ancestor := domain.Task{}
	if err := s.tx.Where("id = ?", s.workflow.AncestorTaskID).First(&ancestor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger().WithField("ancestorTask", s.workflow.AncestorTaskID).Warn("ancestor task of sub-workflow not found")
			return nil
		}
		return err
	}
	parent := domain.Workflow{}
	if err := s.tx.Where("id = ?", ancestor.WorkflowID).First(&parent).Error; err != nil {
		return err
	}
	ev := event.Event{AccountID: parent.AccountID, WorkflowID: parent.ID, TaskID: ancestor.ID, Type: t,
		Snapshot: event.Snapshot{
			WorkflowName: parent.Name, WorkflowStatus: string(parent.Status),
			TaskNumber: ancestor.Number, TaskName: ancestor.Name, TaskStatus: string(ancestor.Status),
			SubWorkflowID: s.workflow.ID,
		}}
	return s.createEvent(ev)
}

func (s *WorkflowActionService) createEvent(ev event.Event) error {
	record, err := event.CreateEventFunc(ev, &s.sec.Identity, s.now, s.tx)
	if err != nil {
		return err
	}
	s.fx.events = append(s.fx.events, record)
	return nil
}

func (s *WorkflowActionService) notify(kind notification.Kind, task *domain.Task, userIDs []types.ID, resumeDate *time.Time) error {
	for _, uid := range userIDs {
		intent := notification.Intent{
			Kind:         kind,
			AccountID:    s.workflow.AccountID,
			UserID:       uid,
			WorkflowID:   s.workflow.ID,
			WorkflowName: s.workflow.Name,
			ResumeDate:   resumeDate,
		}
		if task != nil {
			intent.TaskID, intent.TaskName = task.ID, task.Name
		}
		r, err := notification.EnqueueFunc(intent, s.now, s.tx)
		if err != nil {
			return err
		}
		s.fx.addOutbox(r)
	}
	return nil
}

// notifyRemovedTasks tells the performers of the tasks in progress that their task is gone.
func (s *WorkflowActionService) notifyRemovedTasks() error {
	var tasks []domain.Task
	if err := s.tx.Where("workflow_id = ? AND status IN (?)", s.workflow.ID,
		[]domain.TaskStatus{domain.TaskStatusActive, domain.TaskStatusDelayed}).Order("number ASC").Find(&tasks).Error; err != nil {
		return err
	}
	for i := range tasks {
		users, err := s.performerUsers(&tasks[i], true)
		if err != nil {
			return err
		}
		if err := s.notify(notification.KindRemovedTask, &tasks[i], users, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *WorkflowActionService) sendWebhook(eventName string, task *domain.Task) error {
	records, err := webhook.EnqueueFunc(s.workflow.AccountID, eventName, WebhookPayload{Workflow: s.workflow, Task: task}, s.now, s.tx)
	if err != nil {
		return err
	}
	for _, r := range records {
		s.fx.addOutbox(r)
	}
	return nil
}

func (s *WorkflowActionService) track(eventName string, task *domain.Task, properties map[string]interface{}) error {
	t := analytics.Tracking{
		Event:      eventName,
		AccountID:  s.workflow.AccountID,
		UserID:     s.sec.Identity.ID,
		WorkflowID: s.workflow.ID,
		Properties: properties,
		Timestamp:  s.now,
	}
	if task != nil {
		t.TaskID = task.ID
	}
	r, err := analytics.TrackFunc(t, s.tx)
	if err != nil {
		return err
	}
	s.fx.addOutbox(r)
	return nil
}
