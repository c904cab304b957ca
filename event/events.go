package event

import (
	"errors"
	"pneumatic/idgen"
	"pneumatic/session"
	"strconv"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	eventIdWorker = idgen.NewWorker()

	CreateEventFunc          = CreateEvent
	UpdateMutableFieldsFunc  = UpdateMutableFields
	QueryWorkflowEventsFunc  = QueryWorkflowEvents
	ErrEventImmutableChanged = errors.New("only updated, watched, reactions and comment text of an event can be changed")
)

// CreateEvent records ev in the transaction db. The identity of a system session is recorded without user.
func CreateEvent(ev Event, identity *session.Identity, timestamp time.Time, db *gorm.DB) (*EventRecord, error) {
	record := EventRecord{
		ID:        idgen.NextID(eventIdWorker),
		Event:     ev,
		Timestamp: timestamp,
		Watched:   UserIDs{},
		Reactions: Reactions{},
		Synced:    false,
	}
	if identity != nil {
		record.UserID = identity.ID
		record.UserName = identity.Name
	}
	if err := EventPersistCreateFunc(&record, db); err != nil {
		return nil, err
	}
	return &record, nil
}

type MutableFields struct {
	Text      *string   `json:"text"`
	Watched   UserIDs   `json:"watched"`
	Reactions Reactions `json:"reactions"`
}

// UpdateMutableFields changes the mutable set of an event and stamps Updated. Text can only be changed on comments.
func UpdateMutableFields(id types.ID, fields MutableFields, timestamp time.Time, db *gorm.DB) error {
	record := EventRecord{}
	if err := db.Where("id = ?", id).First(&record).Error; err != nil {
		return err
	}
	changes := map[string]interface{}{"updated": timestamp}
	if fields.Text != nil {
		if record.Type != EventTypeComment {
			return ErrEventImmutableChanged
		}
		changes["text"] = *fields.Text
	}
	if fields.Watched != nil {
		changes["watched"] = fields.Watched
	}
	if fields.Reactions != nil {
		changes["reactions"] = fields.Reactions
	}

	result := db.Model(&EventRecord{}).Where("id = ?", id).Updates(changes)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return errors.New("expected affected row is 1, but actual is " + strconv.FormatInt(result.RowsAffected, 10))
	}
	return nil
}

// QueryWorkflowEvents lists the events of a workflow in the order they happened.
func QueryWorkflowEvents(workflowID types.ID, db *gorm.DB) ([]EventRecord, error) {
	var records []EventRecord
	if err := db.Where("workflow_id = ?", workflowID).Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
