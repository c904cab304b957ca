package notification

import (
	"encoding/json"
	"fmt"
	"pneumatic/idgen"
	"pneumatic/outbox"
	"pneumatic/persistence"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindNewTask        Kind = "NEW_TASK"
	KindReturnedTask   Kind = "RETURNED_TASK"
	KindRemovedTask    Kind = "REMOVED_TASK"
	KindDelayWorkflow  Kind = "DELAY_WORKFLOW"
	KindResumeWorkflow Kind = "RESUME_WORKFLOW"
)

var (
	notificationIdWorker = idgen.NewWorker()

	EnqueueFunc            = Enqueue
	QueryNotificationsFunc = QueryNotifications
)

// Intent asks for one user to be notified about a task.
type Intent struct {
	Kind       Kind     `json:"kind"`
	AccountID  types.ID `json:"accountId"`
	UserID     types.ID `json:"userId"`
	WorkflowID types.ID `json:"workflowId"`
	TaskID     types.ID `json:"taskId"`

	WorkflowName string     `json:"workflowName"`
	TaskName     string     `json:"taskName"`
	ResumeDate   *time.Time `json:"resumeDate,omitempty"`
}

// Notification is an in-app inbox entry.
type Notification struct {
	ID         types.ID `json:"id" gorm:"primary_key"`
	AccountID  types.ID `json:"accountId"`
	UserID     types.ID `json:"userId" gorm:"index"`
	WorkflowID types.ID `json:"workflowId"`
	TaskID     types.ID `json:"taskId"`

	Kind       Kind      `json:"kind"`
	Text       string    `json:"text"`
	Read       bool      `json:"read"`
	CreateTime time.Time `json:"createTime"`

	// MessageID is the outbox record the notification was delivered from.
	MessageID string `json:"-" gorm:"index"`
}

// Enqueue records the intent in the outbox of transaction tx.
func Enqueue(intent Intent, timestamp time.Time, tx *gorm.DB) (*outbox.Record, error) {
	return outbox.EnqueueFunc(outbox.TopicNotifications, intent.UserID.String(), intent, timestamp, tx)
}

func (i Intent) Text() string {
	switch i.Kind {
	case KindNewTask:
		return fmt.Sprintf("New task '%s' in workflow '%s'", i.TaskName, i.WorkflowName)
	case KindReturnedTask:
		return fmt.Sprintf("Task '%s' in workflow '%s' was returned to you", i.TaskName, i.WorkflowName)
	case KindRemovedTask:
		return fmt.Sprintf("Task '%s' in workflow '%s' is no longer assigned to you", i.TaskName, i.WorkflowName)
	case KindDelayWorkflow:
		if i.ResumeDate != nil {
			return fmt.Sprintf("Workflow '%s' is snoozed until %s", i.WorkflowName, i.ResumeDate.Format(time.RFC3339))
		}
		return fmt.Sprintf("Workflow '%s' is snoozed", i.WorkflowName)
	case KindResumeWorkflow:
		return fmt.Sprintf("Workflow '%s' was resumed", i.WorkflowName)
	default:
		return string(i.Kind)
	}
}

// Consume stores the notification in the inbox of the user. Push and email delivery are performed by the gateway.
func Consume(msg *message.Message) error {
	intent := Intent{}
	if err := json.Unmarshal(msg.Payload, &intent); err != nil {
		// malformed messages are dropped instead of retried
		logrus.WithError(err).WithField("message", msg.UUID).Error("invalid notification payload")
		return nil
	}
	n := Notification{
		ID:         idgen.NextID(notificationIdWorker),
		AccountID:  intent.AccountID,
		UserID:     intent.UserID,
		WorkflowID: intent.WorkflowID,
		TaskID:     intent.TaskID,
		Kind:       intent.Kind,
		Text:       intent.Text(),
		CreateTime: time.Now(),
		MessageID:  msg.UUID,
	}
	duplicated := false
	err := persistence.ActiveDataSourceManager.GormDB(msg.Context()).Transaction(func(tx *gorm.DB) error {
		count := 0
		if err := tx.Model(&Notification{}).Where("message_id = ?", msg.UUID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			duplicated = true
			return nil
		}
		return tx.Create(&n).Error
	})
	if err != nil {
		return err
	}
	if duplicated {
		logrus.WithField("message", msg.UUID).Debug("notification already delivered")
		return nil
	}
	logrus.WithFields(logrus.Fields{"user": n.UserID, "kind": n.Kind, "workflow": n.WorkflowID}).Info("notification delivered")
	return nil
}

func QueryNotifications(userID types.ID, db *gorm.DB) ([]Notification, error) {
	var records []Notification
	if err := db.Where("user_id = ?", userID).Order("create_time DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
