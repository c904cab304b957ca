package workflow

import (
	"errors"
	"pneumatic/analytics"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/event"
	"pneumatic/persistence"
	"pneumatic/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	CommentWorkflowFunc        = CommentWorkflow
	UpdateWorkflowEventFunc    = UpdateWorkflowEvent
	QueryWorkflowTrackingsFunc = QueryWorkflowTrackings
)

type WorkflowCommenting struct {
	TaskID types.ID `json:"taskId"`
	Text   string   `json:"text" binding:"required"`
}

// CommentWorkflow appends a COMMENT event to the workflow history, optionally attached to one of its tasks.
func CommentWorkflow(id types.ID, c *WorkflowCommenting, s *session.Session) (*event.EventRecord, error) {
	var record *event.EventRecord
	txErr := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		w, err := findWorkflowAndCheckPerms(tx, id, s)
		if err != nil {
			return err
		}
		ev := event.Event{
			AccountID:  w.AccountID,
			WorkflowID: w.ID,
			TaskID:     c.TaskID,
			Type:       event.EventTypeComment,
			Text:       c.Text,
			Snapshot:   event.Snapshot{WorkflowName: w.Name, WorkflowStatus: string(w.Status)},
		}
		if c.TaskID != 0 {
			task := domain.Task{}
			if err := tx.Where("id = ? AND workflow_id = ?", c.TaskID, w.ID).First(&task).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &bizerror.ErrBadParam{Cause: errors.New("task " + c.TaskID.String() + " is not in the workflow")}
				}
				return err
			}
			ev.Snapshot.TaskNumber, ev.Snapshot.TaskName, ev.Snapshot.TaskStatus = task.Number, task.Name, string(task.Status)
		}
		record, err = event.CreateEventFunc(ev, &s.Identity, NowFunc(), tx)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}
	if event.InvokeHandlersFunc != nil {
		event.InvokeHandlersFunc(record)
	}
	return record, nil
}

// UpdateWorkflowEvent changes the watchers, reactions or comment text of an event. Only the author edits a comment.
func UpdateWorkflowEvent(id, eventID types.ID, fields *event.MutableFields, s *session.Session) (*event.EventRecord, error) {
	record := event.EventRecord{}
	txErr := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if _, err := findWorkflowAndCheckPerms(tx, id, s); err != nil {
			return err
		}
		if err := tx.Where("id = ? AND workflow_id = ?", eventID, id).First(&record).Error; err != nil {
			return err
		}
		if fields.Text != nil && record.Type == event.EventTypeComment && record.UserID != s.Identity.ID {
			return bizerror.ErrForbidden
		}
		if err := event.UpdateMutableFieldsFunc(eventID, *fields, NowFunc(), tx); err != nil {
			if errors.Is(err, event.ErrEventImmutableChanged) {
				return &bizerror.ErrBadParam{Cause: err}
			}
			return err
		}
		return tx.Where("id = ?", eventID).First(&record).Error
	})
	if txErr != nil {
		return nil, txErr
	}
	return &record, nil
}

// QueryWorkflowTrackings lists the analytics trackings of a workflow the caller can see.
func QueryWorkflowTrackings(id types.ID, s *session.Session) ([]analytics.Tracking, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if _, err := findWorkflowAndCheckPerms(db, id, s); err != nil {
		return nil, err
	}
	return analytics.QueryWorkflowTrackingsFunc(s.Context, id)
}
