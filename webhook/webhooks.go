package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"pneumatic/common"
	"pneumatic/outbox"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	EventWorkflowStarted    = "workflow_started"
	EventWorkflowCompleted  = "workflow_completed"
	EventWorkflowTerminated = "workflow_terminated"
	EventTaskStarted        = "task_started"
	EventTaskCompleted      = "task_completed"
	EventTaskReturned       = "task_returned"

	HeaderEvent = "X-Pneumatic-Event"

	DefaultMaxAttempts = 8
)

var (
	EnqueueFunc = Enqueue
)

type Subscription struct {
	ID        types.ID `json:"id" gorm:"primary_key"`
	AccountID types.ID `json:"accountId" gorm:"index"`
	Event     string   `json:"event"`
	TargetURL string   `json:"targetUrl"`
	IsActive  bool     `json:"isActive"`
}

func (s *Subscription) TableName() string {
	return "webhook_subscriptions"
}

// Delivery is the outbox payload of one webhook call.
type Delivery struct {
	Event     string          `json:"event"`
	AccountID types.ID        `json:"accountId"`
	TargetURL string          `json:"targetUrl"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Enqueue writes one delivery per active subscription of the account to the event. Nothing is written without subscription.
func Enqueue(accountID types.ID, eventName string, data interface{}, timestamp time.Time, tx *gorm.DB) ([]*outbox.Record, error) {
	var subscriptions []Subscription
	if err := tx.Where("account_id = ? AND event = ? AND is_active = ?", accountID, eventName, true).
		Order("id ASC").Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var records []*outbox.Record
	for _, s := range subscriptions {
		d := Delivery{Event: eventName, AccountID: accountID, TargetURL: s.TargetURL, Data: raw, Timestamp: timestamp}
		r, err := outbox.EnqueueFunc(outbox.TopicWebhooks, s.ID.String(), d, timestamp, tx)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Deliverer posts deliveries to their target, at most Limiter allows. A delivery is given up after MaxAttempts
// failed posts or on the first client error response, and the message is acked.
type Deliverer struct {
	Client      *http.Client
	Limiter     *rate.Limiter
	MaxAttempts int

	attempts *cache.Cache
}

func NewDeliverer(client *http.Client, perSecond float64) *Deliverer {
	if perSecond <= 0 {
		perSecond = 10
	}
	return &Deliverer{
		Client:      client,
		Limiter:     rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		MaxAttempts: DefaultMaxAttempts,
		attempts:    cache.New(24*time.Hour, time.Hour),
	}
}

func (d *Deliverer) Consume(msg *message.Message) error {
	delivery := Delivery{}
	if err := json.Unmarshal(msg.Payload, &delivery); err != nil {
		logrus.WithError(err).WithField("message", msg.UUID).Error("invalid webhook payload")
		return nil
	}
	ctx := msg.Context()
	if err := d.Limiter.Wait(ctx); err != nil {
		return err
	}
	headers := http.Header{}
	headers.Set(HeaderEvent, delivery.Event)
	headers.Set("X-Pneumatic-Delivery", msg.UUID)
	body, err := json.Marshal(map[string]interface{}{
		"event": delivery.Event, "data": delivery.Data, "timestamp": delivery.Timestamp,
	})
	if err != nil {
		return err
	}
	if err := common.PostJSON(ctx, d.Client, delivery.TargetURL, headers, body); err != nil {
		fields := logrus.Fields{"event": delivery.Event, "target": delivery.TargetURL, "message": msg.UUID}
		if !retryable(err) {
			d.attempts.Delete(msg.UUID)
			logrus.WithError(err).WithFields(fields).Error("webhook delivery rejected, dropped")
			return nil
		}
		attempt := d.attempt(msg.UUID)
		if attempt >= d.MaxAttempts {
			d.attempts.Delete(msg.UUID)
			logrus.WithError(err).WithFields(fields).WithField("attempts", attempt).Error("webhook delivery exhausted, dropped")
			return nil
		}
		logrus.WithError(err).WithFields(fields).WithField("attempts", attempt).Warn("webhook delivery failed")
		return err
	}
	d.attempts.Delete(msg.UUID)
	logrus.WithFields(logrus.Fields{"event": delivery.Event, "target": delivery.TargetURL}).Debug("webhook delivered")
	return nil
}

// attempt counts the failed posts of the message, redeliveries included.
func (d *Deliverer) attempt(uuid string) int {
	n, err := d.attempts.IncrementInt(uuid, 1)
	if err != nil {
		d.attempts.SetDefault(uuid, 1)
		return 1
	}
	return n
}

// retryable tells transport failures and server errors from responses the target will keep rejecting.
func retryable(err error) bool {
	var status *common.ErrUnexpectedStatus
	if !errors.As(err, &status) {
		return true
	}
	if status.StatusCode == http.StatusRequestTimeout || status.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return status.StatusCode < 400 || status.StatusCode >= 500
}
