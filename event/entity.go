package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundwit/go-commons/types"
)

type EventType string

const (
	EventTypeRun                  EventType = "RUN"
	EventTypeSubWorkflowRun       EventType = "SUB_WORKFLOW_RUN"
	EventTypeSubWorkflowComplete  EventType = "SUB_WORKFLOW_COMPLETE"
	EventTypeTaskStart            EventType = "TASK_START"
	EventTypeTaskComplete         EventType = "TASK_COMPLETE"
	EventTypeTaskSkip             EventType = "TASK_SKIP"
	EventTypeTaskSkipNoPerformers EventType = "TASK_SKIP_NO_PERFORMERS"
	EventTypeTaskRevert           EventType = "TASK_REVERT"
	EventTypeTaskReturn           EventType = "TASK_RETURN"
	EventTypeDelay                EventType = "DELAY"
	EventTypeForceDelay           EventType = "FORCE_DELAY"
	EventTypeResume               EventType = "RESUME"
	EventTypeForceResume          EventType = "FORCE_RESUME"
	EventTypeComplete             EventType = "COMPLETE"
	EventTypeEnded                EventType = "ENDED"
	EventTypeEndedByCondition     EventType = "ENDED_BY_CONDITION"
	EventTypeComment              EventType = "COMMENT"
	EventTypePerformerAdded       EventType = "PERFORMER_ADDED"
	EventTypePerformerRemoved     EventType = "PERFORMER_REMOVED"
)

// Event is the immutable part of an event record.
type Event struct {
	AccountID  types.ID  `json:"accountId"`
	WorkflowID types.ID  `json:"workflowId" gorm:"index"`
	TaskID     types.ID  `json:"taskId"`
	Type       EventType `json:"type"`

	UserID   types.ID `json:"userId"`
	UserName string   `json:"userName"`

	Text          string        `json:"text" sql:"type:TEXT"`
	Snapshot      Snapshot      `json:"snapshot" sql:"type:TEXT"`
	DelayDuration time.Duration `json:"delayDuration"`
}

// Snapshot denormalizes the workflow and task state at the time the event was written.
type Snapshot struct {
	WorkflowName   string `json:"workflowName,omitempty"`
	WorkflowStatus string `json:"workflowStatus,omitempty"`

	TaskNumber int    `json:"taskNumber,omitempty"`
	TaskName   string `json:"taskName,omitempty"`
	TaskStatus string `json:"taskStatus,omitempty"`

	Performers       []types.ID `json:"performers,omitempty"`
	EstimatedEndDate *time.Time `json:"estimatedEndDate,omitempty"`
	SubWorkflowID    types.ID   `json:"subWorkflowId,omitempty"`
}

type EventRecord struct {
	ID types.ID `json:"id" gorm:"primary_key"`
	Event

	Timestamp time.Time `json:"timestamp"`

	Updated   *time.Time `json:"updated"`
	Watched   UserIDs    `json:"watched" sql:"type:TEXT"`
	Reactions Reactions  `json:"reactions" sql:"type:TEXT"`

	Synced bool `json:"synced"`
}

func (r *EventRecord) TableName() string {
	return "workflow_events"
}

type UserIDs []types.ID

// Reactions maps a reaction to the users who gave it.
type Reactions map[string]UserIDs

func (t Snapshot) Value() (driver.Value, error) {
	return jsonValue(t)
}

func (t *Snapshot) Scan(v interface{}) error {
	return jsonScan(v, t)
}

func (t UserIDs) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *UserIDs) Scan(v interface{}) error {
	return jsonScan(v, t)
}

func (t Reactions) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	return jsonValue(t)
}

func (t *Reactions) Scan(v interface{}) error {
	return jsonScan(v, t)
}

func jsonValue(v interface{}) (driver.Value, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func jsonScan(v interface{}, target interface{}) error {
	if v == nil {
		return nil
	}
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	if jsonString == "" {
		return nil
	}
	return json.Unmarshal([]byte(jsonString), target)
}
