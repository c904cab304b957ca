package event

import (
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	EventPersistCreateFunc = eventPersistCreate
)

func eventPersistCreate(record *EventRecord, db *gorm.DB) error {
	return db.Create(record).Error
}

// LoadUnsyncedEvents pages events not yet delivered to the event handlers.
func LoadUnsyncedEvents(page, size int, db *gorm.DB) ([]EventRecord, error) {
	var records []EventRecord
	if err := db.Where("synced = ?", false).Order("id ASC").Offset((page - 1) * size).Limit(size).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func MarkSynced(ids []types.ID, db *gorm.DB) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(&EventRecord{}).Where("id IN (?)", ids).Update("synced", true).Error
}

// CreateEventPersistDefault is the default EventPersistCreateFunc.
var CreateEventPersistDefault = eventPersistCreate
