package domain

import "github.com/fundwit/go-commons/types"

type ConditionAction string

const (
	ActionStartTask  ConditionAction = "START_TASK"
	ActionSkipTask   ConditionAction = "SKIP_TASK"
	ActionEndProcess ConditionAction = "END_PROCESS"
)

func (a ConditionAction) IsValid() bool {
	switch a {
	case ActionStartTask, ActionSkipTask, ActionEndProcess:
		return true
	}
	return false
}

type PredicateOperator string

const (
	OperatorEquals      PredicateOperator = "equals"
	OperatorNotEquals   PredicateOperator = "not_equals"
	OperatorExists      PredicateOperator = "exists"
	OperatorNotExists   PredicateOperator = "not_exists"
	OperatorContains    PredicateOperator = "contains"
	OperatorNotContains PredicateOperator = "not_contains"
	OperatorMoreThan    PredicateOperator = "more_than"
	OperatorLessThan    PredicateOperator = "less_than"
	OperatorCompleted   PredicateOperator = "completed"
)

// Condition decides how a task is entered. Conditions of a task are evaluated by SortOrder.
type Condition struct {
	ID         types.ID        `json:"id" gorm:"primary_key"`
	WorkflowID types.ID        `json:"workflowId" gorm:"index"`
	TaskID     types.ID        `json:"taskId" gorm:"index"`
	Action     ConditionAction `json:"action"`
	SortOrder  int             `json:"sortOrder"`
}

type Rule struct {
	ID          types.ID `json:"id" gorm:"primary_key"`
	ConditionID types.ID `json:"conditionId" gorm:"index"`
	SortOrder   int      `json:"sortOrder"`
}

// Predicate compares the field named by api name against Value.
type Predicate struct {
	ID        types.ID          `json:"id" gorm:"primary_key"`
	RuleID    types.ID          `json:"ruleId" gorm:"index"`
	SortOrder int               `json:"sortOrder"`
	Field     string            `json:"field"`
	FieldType FieldType         `json:"fieldType"`
	Operator  PredicateOperator `json:"operator"`
	Value     string            `json:"value"`
}

type ConditionDetail struct {
	Condition
	Rules []RuleDetail `json:"rules"`
}

type RuleDetail struct {
	Rule
	Predicates []Predicate `json:"predicates"`
}
