package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"pneumatic/idgen"
	"pneumatic/persistence"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const (
	TopicNotifications = "notifications"
	TopicWebhooks      = "webhooks"
	TopicAnalytics     = "analytics"

	MetadataKey = "key"

	pendingPageSize = 100
)

var (
	recordIdWorker = idgen.NewWorker()

	EnqueueFunc         = Enqueue
	DispatchFunc        = Dispatch
	DispatchPendingFunc = DispatchPending

	// ActivePublisher stays nil until the transport is started, records are then kept for DispatchPending.
	ActivePublisher message.Publisher

	// MaxAttempts bounds the publish attempts of a record before it is marked obsolete.
	MaxAttempts = 10
)

// Record is a side effect written in the transaction of the state change that caused it.
// It is published to Topic after commit.
type Record struct {
	ID      types.ID `json:"id" gorm:"primary_key"`
	Topic   string   `json:"topic" gorm:"index"`
	Key     string   `json:"key"`
	Payload string   `json:"payload" sql:"type:TEXT"`

	Timestamp      time.Time  `json:"timestamp"`
	DispatchedTime *time.Time `json:"dispatchedTime"`
	Attempts       int        `json:"attempts"`
	Obsolete       bool       `json:"obsolete"`
}

func (r *Record) TableName() string {
	return "outbox_records"
}

func Enqueue(topic, key string, payload interface{}, timestamp time.Time, tx *gorm.DB) (*Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	r := Record{
		ID:        idgen.NextID(recordIdWorker),
		Topic:     topic,
		Key:       key,
		Payload:   string(data),
		Timestamp: timestamp,
	}
	if err := tx.Create(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// Dispatch publishes committed records. Failures are logged and left to DispatchPending.
func Dispatch(ctx context.Context, ids []types.ID) {
	if len(ids) == 0 || ActivePublisher == nil {
		return
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	var records []Record
	if err := db.Where("id IN (?) AND dispatched_time IS NULL AND obsolete = ?", ids, false).
		Order("id ASC").Find(&records).Error; err != nil {
		logrus.WithError(err).Error("load outbox records failed")
		return
	}
	for i := range records {
		if err := publish(ctx, db, &records[i]); err != nil {
			logrus.WithError(err).WithField("record", records[i].ID).Warn("publish outbox record failed")
		}
	}
}

// DispatchPending republishes records which were not published after commit. It returns the number of records published.
func DispatchPending(ctx context.Context) int {
	if ActivePublisher == nil {
		return 0
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	published := 0
	var lastID types.ID
	for {
		var records []Record
		if err := db.Where("id > ? AND dispatched_time IS NULL AND obsolete = ?", lastID, false).
			Order("id ASC").Limit(pendingPageSize).Find(&records).Error; err != nil {
			logrus.WithError(err).Error("load pending outbox records failed")
			return published
		}
		for i := range records {
			if err := publish(ctx, db, &records[i]); err != nil {
				logrus.WithError(err).WithField("record", records[i].ID).Warn("republish outbox record failed")
				continue
			}
			published++
		}
		if len(records) < pendingPageSize {
			return published
		}
		lastID = records[len(records)-1].ID
	}
}

func publish(ctx context.Context, db *gorm.DB, r *Record) error {
	msg := message.NewMessage(r.ID.String(), []byte(r.Payload))
	msg.Metadata.Set(MetadataKey, r.Key)
	msg.SetContext(ctx)

	publishErr := ActivePublisher.Publish(r.Topic, msg)
	if publishErr == nil {
		now := time.Now()
		return db.Model(&Record{}).Where("id = ?", r.ID).
			Updates(map[string]interface{}{"dispatched_time": now, "attempts": r.Attempts + 1}).Error
	}

	changes := map[string]interface{}{"attempts": r.Attempts + 1}
	if r.Attempts+1 >= MaxAttempts {
		changes["obsolete"] = true
		logrus.WithField("record", r.ID).WithField("topic", r.Topic).Error("outbox record obsoleted after max attempts")
	}
	if err := db.Model(&Record{}).Where("id = ?", r.ID).Updates(changes).Error; err != nil {
		return errors.Join(publishErr, err)
	}
	return publishErr
}
