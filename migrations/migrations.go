package migrations

import (
	"pneumatic/account"
	"pneumatic/domain"
	"pneumatic/domain/checklist"
	"pneumatic/event"
	"pneumatic/notification"
	"pneumatic/outbox"
	"pneumatic/webhook"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

// Entities lists every persistent model of the service.
func Entities() []interface{} {
	return []interface{}{
		&account.User{}, &account.Group{}, &account.GroupMember{},
		&domain.Workflow{}, &domain.WorkflowMember{}, &domain.Task{},
		&domain.RawPerformer{}, &domain.TaskPerformer{}, &domain.Delay{},
		&domain.Condition{}, &domain.Rule{}, &domain.Predicate{},
		&domain.TaskField{}, &domain.GuestToken{}, &checklist.ChecklistItem{},
		&event.EventRecord{}, &outbox.Record{}, &notification.Notification{}, &webhook.Subscription{},
	}
}

// Migrate creates missing tables, columns and indexes. Existing columns are never dropped.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Entities()...).Error; err != nil {
		return err
	}
	logrus.WithField("tables", len(Entities())).Info("database migrated")
	return nil
}
