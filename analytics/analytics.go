package analytics

import (
	"context"
	"encoding/json"
	"pneumatic/es"
	"pneumatic/outbox"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const (
	EventWorkflowStarted    = "workflow_started"
	EventWorkflowCompleted  = "workflow_completed"
	EventWorkflowTerminated = "workflow_terminated"
	EventWorkflowDelayed    = "workflow_delayed"
	EventTaskCompleted      = "task_completed"
	EventTaskReturned       = "task_returned"

	IndexAnalytics = "analytics"
)

var (
	TrackFunc                  = Track
	QueryWorkflowTrackingsFunc = QueryWorkflowTrackings
)

// trackingsPageSize bounds the trackings returned for one workflow.
const trackingsPageSize = 200

type Tracking struct {
	Event      string                 `json:"event"`
	AccountID  types.ID               `json:"accountId"`
	UserID     types.ID               `json:"userId"`
	WorkflowID types.ID               `json:"workflowId"`
	TaskID     types.ID               `json:"taskId,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Track records the tracking in the outbox of transaction tx.
func Track(t Tracking, tx *gorm.DB) (*outbox.Record, error) {
	return outbox.EnqueueFunc(outbox.TopicAnalytics, t.WorkflowID.String(), t, t.Timestamp, tx)
}

// Consume indexes trackings into elasticsearch, they are only logged when no client is configured.
func Consume(msg *message.Message) error {
	t := Tracking{}
	if err := json.Unmarshal(msg.Payload, &t); err != nil {
		logrus.WithError(err).WithField("message", msg.UUID).Error("invalid tracking payload")
		return nil
	}
	if es.ActiveESClient == nil {
		logrus.WithFields(logrus.Fields{"event": t.Event, "workflow": t.WorkflowID, "task": t.TaskID}).Info("tracked")
		return nil
	}
	return es.IndexFunc(msg.Context(), IndexAnalytics, msg.UUID, t)
}

// QueryWorkflowTrackings searches the indexed trackings of a workflow, oldest first.
// Nothing is returned when no elasticsearch client is configured.
func QueryWorkflowTrackings(ctx context.Context, workflowID types.ID) ([]Tracking, error) {
	trackings := []Tracking{}
	if es.ActiveESClient == nil {
		return trackings, nil
	}
	result, err := es.SearchFunc(ctx, IndexAnalytics, es.H{
		"size":  trackingsPageSize,
		"query": es.H{"term": es.H{"workflowId": workflowID.String()}},
		"sort":  []es.H{{"timestamp": es.H{"order": "asc"}}},
	})
	if err != nil {
		return nil, err
	}
	for _, hit := range result.Hits {
		t := Tracking{}
		if err := json.Unmarshal(hit.Source, &t); err != nil {
			return nil, err
		}
		trackings = append(trackings, t)
	}
	return trackings, nil
}
