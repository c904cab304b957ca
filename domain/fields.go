package domain

import "github.com/fundwit/go-commons/types"

type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeText     FieldType = "text"
	FieldTypeURL      FieldType = "url"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeUser     FieldType = "user"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeDropdown FieldType = "dropdown"
	FieldTypeFile     FieldType = "file"

	// FieldTypeTask is only used by predicates which test the status of a task.
	FieldTypeTask FieldType = "task"
)

// TaskField is a field value of a workflow. Kickoff fields have no task.
type TaskField struct {
	ID         types.ID  `json:"id" gorm:"primary_key"`
	WorkflowID types.ID  `json:"workflowId" gorm:"index"`
	TaskID     types.ID  `json:"taskId"`
	APIName    string    `json:"apiName"`
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	IsRequired bool      `json:"isRequired"`
	Value      string    `json:"value" sql:"type:TEXT"`
	UserID     types.ID  `json:"userId"`
}

func (f TaskField) IsEmpty() bool {
	if f.Type == FieldTypeUser {
		return f.UserID == 0 && f.Value == ""
	}
	return f.Value == ""
}
