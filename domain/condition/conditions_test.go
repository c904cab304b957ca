package condition_test

import (
	"context"
	"pneumatic/domain"
	"pneumatic/domain/condition"
	"pneumatic/testinfra"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func predicate(field string, fieldType domain.FieldType, op domain.PredicateOperator, value string) domain.Predicate {
	return domain.Predicate{Field: field, FieldType: fieldType, Operator: op, Value: value}
}

func conditionOf(action domain.ConditionAction, rules ...[]domain.Predicate) domain.ConditionDetail {
	c := domain.ConditionDetail{Condition: domain.Condition{Action: action}}
	for _, ps := range rules {
		c.Rules = append(c.Rules, domain.RuleDetail{Predicates: ps})
	}
	return c
}

var _ = Describe("Conditions", func() {
	var values condition.Values

	BeforeEach(func() {
		values = condition.Values{
			Fields: map[string]domain.TaskField{
				"name":    {APIName: "name", Type: domain.FieldTypeString, Value: "Acme Corp"},
				"empty":   {APIName: "empty", Type: domain.FieldTypeString},
				"amount":  {APIName: "amount", Type: domain.FieldTypeNumber, Value: "1500.5"},
				"bad":     {APIName: "bad", Type: domain.FieldTypeNumber, Value: "many"},
				"due":     {APIName: "due", Type: domain.FieldTypeDate, Value: "2022-05-01T10:00:00Z"},
				"owner":   {APIName: "owner", Type: domain.FieldTypeUser, UserID: 42},
				"options": {APIName: "options", Type: domain.FieldTypeCheckbox, Value: "red, green"},
				"level":   {APIName: "level", Type: domain.FieldTypeDropdown, Value: "high"},
			},
			TaskStatuses: map[string]domain.TaskStatus{
				"review":  domain.TaskStatusCompleted,
				"approve": domain.TaskStatusActive,
			},
		}
	})

	Describe("EvaluatePredicate", func() {
		It("should compare strings textually", func() {
			Expect(condition.EvaluatePredicate(predicate("name", domain.FieldTypeString, domain.OperatorEquals, "Acme Corp"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("name", domain.FieldTypeString, domain.OperatorEquals, "acme corp"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("name", domain.FieldTypeString, domain.OperatorNotEquals, "Other"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("name", domain.FieldTypeString, domain.OperatorContains, "Acme"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("name", domain.FieldTypeString, domain.OperatorNotContains, "Acme"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("level", domain.FieldTypeDropdown, domain.OperatorEquals, "high"), values)).To(BeTrue())
		})

		It("should compare numbers and dates by value", func() {
			Expect(condition.EvaluatePredicate(predicate("amount", domain.FieldTypeNumber, domain.OperatorMoreThan, "1000"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("amount", domain.FieldTypeNumber, domain.OperatorLessThan, "1000"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("amount", domain.FieldTypeNumber, domain.OperatorEquals, "1500.50"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("due", domain.FieldTypeDate, domain.OperatorLessThan, "2022-06-01T00:00:00Z"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("due", domain.FieldTypeDate, domain.OperatorEquals, "2022-05-01T12:00:00+02:00"), values)).To(BeTrue())
		})

		It("should be false on unparsable values", func() {
			Expect(condition.EvaluatePredicate(predicate("bad", domain.FieldTypeNumber, domain.OperatorMoreThan, "1"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("bad", domain.FieldTypeNumber, domain.OperatorEquals, "many"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("amount", domain.FieldTypeNumber, domain.OperatorNotEquals, "x"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("name", domain.FieldTypeString, domain.OperatorMoreThan, "A"), values)).To(BeFalse())
		})

		It("should compare users by id and checkboxes by selection", func() {
			Expect(condition.EvaluatePredicate(predicate("owner", domain.FieldTypeUser, domain.OperatorEquals, "42"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("owner", domain.FieldTypeUser, domain.OperatorNotEquals, "43"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("options", domain.FieldTypeCheckbox, domain.OperatorContains, "green"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("options", domain.FieldTypeCheckbox, domain.OperatorContains, "gre"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("options", domain.FieldTypeCheckbox, domain.OperatorNotContains, "blue"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("options", domain.FieldTypeCheckbox, domain.OperatorEquals, "green,red"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("options", domain.FieldTypeCheckbox, domain.OperatorEquals, "green,blue"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("options", domain.FieldTypeCheckbox, domain.OperatorEquals, "green"), values)).To(BeFalse())
		})

		It("should treat unknown and empty fields as missing", func() {
			Expect(condition.EvaluatePredicate(predicate("unknown", domain.FieldTypeString, domain.OperatorNotExists, ""), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("unknown", domain.FieldTypeString, domain.OperatorExists, ""), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("unknown", domain.FieldTypeString, domain.OperatorEquals, ""), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("unknown", domain.FieldTypeString, domain.OperatorNotEquals, "x"), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("empty", domain.FieldTypeString, domain.OperatorNotExists, ""), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("empty", domain.FieldTypeString, domain.OperatorExists, ""), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("empty", domain.FieldTypeString, domain.OperatorNotEquals, "x"), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("name", domain.FieldTypeString, domain.OperatorExists, ""), values)).To(BeTrue())
		})

		It("should test completion of tasks", func() {
			Expect(condition.EvaluatePredicate(predicate("review", domain.FieldTypeTask, domain.OperatorCompleted, ""), values)).To(BeTrue())
			Expect(condition.EvaluatePredicate(predicate("approve", domain.FieldTypeTask, domain.OperatorCompleted, ""), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("missing", domain.FieldTypeTask, domain.OperatorCompleted, ""), values)).To(BeFalse())
			Expect(condition.EvaluatePredicate(predicate("review", domain.FieldTypeTask, domain.OperatorEquals, ""), values)).To(BeFalse())
		})
	})

	Describe("Execute", func() {
		satisfied := []domain.Predicate{predicate("amount", domain.FieldTypeNumber, domain.OperatorMoreThan, "1000")}
		unsatisfied := []domain.Predicate{predicate("amount", domain.FieldTypeNumber, domain.OperatorLessThan, "1000")}

		It("should start tasks without conditions", func() {
			action, byCondition := condition.Execute(nil, values)
			Expect(action).To(Equal(domain.ActionStartTask))
			Expect(byCondition).To(BeFalse())
		})

		It("should select the action of the first satisfied condition", func() {
			action, byCondition := condition.Execute([]domain.ConditionDetail{
				conditionOf(domain.ActionSkipTask, unsatisfied),
				conditionOf(domain.ActionEndProcess, unsatisfied, satisfied),
				conditionOf(domain.ActionSkipTask, satisfied),
			}, values)
			Expect(action).To(Equal(domain.ActionEndProcess))
			Expect(byCondition).To(BeTrue())
		})

		It("should skip tasks whose start condition is not satisfied", func() {
			action, byCondition := condition.Execute([]domain.ConditionDetail{
				conditionOf(domain.ActionStartTask, unsatisfied),
			}, values)
			Expect(action).To(Equal(domain.ActionSkipTask))
			Expect(byCondition).To(BeTrue())
		})

		It("should start tasks when only skip conditions are unsatisfied", func() {
			action, byCondition := condition.Execute([]domain.ConditionDetail{
				conditionOf(domain.ActionSkipTask, unsatisfied),
				conditionOf(domain.ActionEndProcess),
			}, values)
			Expect(action).To(Equal(domain.ActionStartTask))
			Expect(byCondition).To(BeFalse())
		})

		It("should require all predicates of a rule", func() {
			action, _ := condition.Execute([]domain.ConditionDetail{
				conditionOf(domain.ActionSkipTask, append(append([]domain.Predicate{}, satisfied...), unsatisfied...)),
			}, values)
			Expect(action).To(Equal(domain.ActionStartTask))

			action, _ = condition.Execute([]domain.ConditionDetail{conditionOf(domain.ActionSkipTask, []domain.Predicate{})}, values)
			Expect(action).To(Equal(domain.ActionStartTask))
		})
	})

	Describe("LoadConditions", func() {
		var testDatabase *testinfra.TestDatabase

		BeforeEach(func() {
			testDatabase = testinfra.StartTestDatabase("pneumatic")
			Expect(testDatabase.DS.GormDB(context.TODO()).AutoMigrate(&domain.Condition{}, &domain.Rule{}, &domain.Predicate{}).Error).To(BeNil())
		})
		AfterEach(func() {
			testinfra.StopTestDatabase(testDatabase)
		})

		It("should load conditions ordered by sort order at every level", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			// inserted in reverse order on purpose
			Expect(db.Create(&domain.Condition{ID: 2, TaskID: 10, Action: domain.ActionSkipTask, SortOrder: 1}).Error).To(BeNil())
			Expect(db.Create(&domain.Condition{ID: 1, TaskID: 10, Action: domain.ActionEndProcess, SortOrder: 2}).Error).To(BeNil())
			Expect(db.Create(&domain.Condition{ID: 3, TaskID: 11, Action: domain.ActionStartTask}).Error).To(BeNil())
			Expect(db.Create(&domain.Rule{ID: 20, ConditionID: 2, SortOrder: 2}).Error).To(BeNil())
			Expect(db.Create(&domain.Rule{ID: 21, ConditionID: 2, SortOrder: 1}).Error).To(BeNil())
			Expect(db.Create(&domain.Predicate{ID: 31, RuleID: 21, SortOrder: 2, Field: "b"}).Error).To(BeNil())
			Expect(db.Create(&domain.Predicate{ID: 30, RuleID: 21, SortOrder: 1, Field: "a"}).Error).To(BeNil())

			details, err := condition.LoadConditions(db, 10)
			Expect(err).To(BeNil())
			Expect(len(details)).To(Equal(2))
			Expect(details[0].ID).To(BeEquivalentTo(2))
			Expect(details[1].ID).To(BeEquivalentTo(1))
			Expect(details[1].Rules).To(BeEmpty())
			Expect(len(details[0].Rules)).To(Equal(2))
			Expect(details[0].Rules[0].ID).To(BeEquivalentTo(21))
			Expect(details[0].Rules[0].Predicates[0].Field).To(Equal("a"))
			Expect(details[0].Rules[0].Predicates[1].Field).To(Equal("b"))
			Expect(details[0].Rules[1].Predicates).To(BeEmpty())

			details, err = condition.LoadConditions(db, 99)
			Expect(err).To(BeNil())
			Expect(details).To(BeEmpty())
		})
	})
})
