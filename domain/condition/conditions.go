package condition

import (
	"pneumatic/domain"
	"strconv"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	LoadConditionsFunc = LoadConditions
)

// Values are the facts predicates are evaluated against.
type Values struct {
	// Fields by api name.
	Fields map[string]domain.TaskField
	// TaskStatuses by task api name.
	TaskStatuses map[string]domain.TaskStatus
}

// LoadConditions loads the conditions of a task with their rules and predicates, each level ordered by sort order.
func LoadConditions(db *gorm.DB, taskID types.ID) ([]domain.ConditionDetail, error) {
	var conditions []domain.Condition
	if err := db.Where("task_id = ?", taskID).Order("sort_order ASC, id ASC").Find(&conditions).Error; err != nil {
		return nil, err
	}
	if len(conditions) == 0 {
		return []domain.ConditionDetail{}, nil
	}
	conditionIDs := make([]types.ID, 0, len(conditions))
	for _, c := range conditions {
		conditionIDs = append(conditionIDs, c.ID)
	}

	var rules []domain.Rule
	if err := db.Where("condition_id IN (?)", conditionIDs).Order("sort_order ASC, id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	ruleIDs := make([]types.ID, 0, len(rules))
	for _, r := range rules {
		ruleIDs = append(ruleIDs, r.ID)
	}

	predicatesOfRule := map[types.ID][]domain.Predicate{}
	if len(ruleIDs) > 0 {
		var predicates []domain.Predicate
		if err := db.Where("rule_id IN (?)", ruleIDs).Order("sort_order ASC, id ASC").Find(&predicates).Error; err != nil {
			return nil, err
		}
		for _, p := range predicates {
			predicatesOfRule[p.RuleID] = append(predicatesOfRule[p.RuleID], p)
		}
	}

	rulesOfCondition := map[types.ID][]domain.RuleDetail{}
	for _, r := range rules {
		rulesOfCondition[r.ConditionID] = append(rulesOfCondition[r.ConditionID],
			domain.RuleDetail{Rule: r, Predicates: predicatesOfRule[r.ID]})
	}

	details := make([]domain.ConditionDetail, 0, len(conditions))
	for _, c := range conditions {
		details = append(details, domain.ConditionDetail{Condition: c, Rules: rulesOfCondition[c.ID]})
	}
	return details, nil
}

// Execute decides how a task is entered. The first satisfied condition selects its action. When none
// is satisfied but the task has a START_TASK condition the task is skipped. Without any satisfied
// condition the task starts, and the returned flag reports that no condition decided.
func Execute(conditions []domain.ConditionDetail, values Values) (domain.ConditionAction, bool) {
	hasStartCondition := false
	for _, c := range conditions {
		if c.Action == domain.ActionStartTask {
			hasStartCondition = true
		}
		if IsSatisfied(c, values) {
			return c.Action, true
		}
	}
	if hasStartCondition {
		return domain.ActionSkipTask, true
	}
	return domain.ActionStartTask, false
}

// IsSatisfied reports whether any rule of the condition holds.
func IsSatisfied(c domain.ConditionDetail, values Values) bool {
	for _, r := range c.Rules {
		if ruleHolds(r, values) {
			return true
		}
	}
	return false
}

func ruleHolds(r domain.RuleDetail, values Values) bool {
	if len(r.Predicates) == 0 {
		return false
	}
	for _, p := range r.Predicates {
		if !EvaluatePredicate(p, values) {
			return false
		}
	}
	return true
}

func EvaluatePredicate(p domain.Predicate, values Values) bool {
	if p.FieldType == domain.FieldTypeTask {
		if p.Operator != domain.OperatorCompleted {
			return false
		}
		status, found := values.TaskStatuses[p.Field]
		return found && status == domain.TaskStatusCompleted
	}

	field, found := values.Fields[p.Field]
	if !found || field.IsEmpty() {
		switch p.Operator {
		case domain.OperatorNotExists:
			return true
		case domain.OperatorNotEquals, domain.OperatorNotContains:
			return found
		default:
			return false
		}
	}

	switch p.Operator {
	case domain.OperatorExists:
		return true
	case domain.OperatorNotExists:
		return false
	case domain.OperatorEquals:
		eq, ok := equals(field, p.Value)
		return ok && eq
	case domain.OperatorNotEquals:
		eq, ok := equals(field, p.Value)
		return ok && !eq
	case domain.OperatorContains:
		c, ok := contains(field, p.Value)
		return ok && c
	case domain.OperatorNotContains:
		c, ok := contains(field, p.Value)
		return ok && !c
	case domain.OperatorMoreThan:
		cmp, ok := compare(field, p.Value)
		return ok && cmp > 0
	case domain.OperatorLessThan:
		cmp, ok := compare(field, p.Value)
		return ok && cmp < 0
	default:
		return false
	}
}

func equals(field domain.TaskField, value string) (bool, bool) {
	switch field.Type {
	case domain.FieldTypeNumber, domain.FieldTypeDate:
		cmp, ok := compare(field, value)
		return cmp == 0, ok
	case domain.FieldTypeUser:
		if field.UserID != 0 {
			return field.UserID.String() == value, true
		}
		return field.Value == value, true
	case domain.FieldTypeCheckbox:
		a, b := selections(field.Value), selections(value)
		if len(a) != len(b) {
			return false, true
		}
		for s := range b {
			if !a[s] {
				return false, true
			}
		}
		return true, true
	default:
		return field.Value == value, true
	}
}

func contains(field domain.TaskField, value string) (bool, bool) {
	switch field.Type {
	case domain.FieldTypeString, domain.FieldTypeText, domain.FieldTypeURL, domain.FieldTypeFile:
		return strings.Contains(field.Value, value), true
	case domain.FieldTypeCheckbox:
		return selections(field.Value)[strings.TrimSpace(value)], true
	default:
		return false, false
	}
}

func compare(field domain.TaskField, value string) (int, bool) {
	switch field.Type {
	case domain.FieldTypeNumber:
		a, err := strconv.ParseFloat(strings.TrimSpace(field.Value), 64)
		if err != nil {
			return 0, false
		}
		b, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		switch {
		case a > b:
			return 1, true
		case a < b:
			return -1, true
		}
		return 0, true
	case domain.FieldTypeDate:
		a, err := time.Parse(time.RFC3339, field.Value)
		if err != nil {
			return 0, false
		}
		b, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return 0, false
		}
		switch {
		case a.After(b):
			return 1, true
		case a.Before(b):
			return -1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func selections(v string) map[string]bool {
	r := map[string]bool{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			r[s] = true
		}
	}
	return r
}
