package workflow_test

import (
	"context"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/domain/checklist"
	"pneumatic/domain/workflow"
	"pneumatic/event"
	"pneumatic/notification"
	"pneumatic/persistence"
	"pneumatic/testinfra"
	"testing"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func countRows(model interface{}, query string, args ...interface{}) int {
	count := 0
	Expect(persistence.ActiveDataSourceManager.GormDB(context.Background()).Model(model).Where(query, args...).
		Count(&count).Error).To(BeNil())
	return count
}

func TestTerminateWorkflow(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should delete the workflow with everything it owns", func(t *testing.T) {
		rec := setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		c := threeTasks()
		c.KickoffFields = []workflow.FieldDefinition{{APIName: "fast", Type: domain.FieldTypeString, Value: "no"}}
		c.Tasks[0].Checklist = []string{"sign contract"}
		c.Tasks[1].DelaySeconds = 60
		c.Tasks[2].Conditions = []workflow.ConditionDefinition{{Action: domain.ActionSkipTask, Rules: []workflow.RuleDefinition{
			{Predicates: []workflow.PredicateDefinition{{Field: "fast", FieldType: domain.FieldTypeString,
				Operator: domain.OperatorEquals, Value: "yes"}}},
		}}}
		w := runWorkflow(c)
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())
		Expect(db.Create(&domain.GuestToken{ID: 1, WorkflowID: w.ID, TaskID: loadTask(w.ID, 1).ID, Token: "t", IsActive: true}).
			Error).To(BeNil())
		rec.reset()

		Expect(workflow.NewWorkflowActionService(w.ID, sessionOf(starterID)).TerminateWorkflow()).To(Succeed())

		Expect(countRows(&domain.Workflow{}, "id = ?", w.ID)).To(BeZero())
		for _, model := range []interface{}{&domain.Task{}, &domain.TaskPerformer{}, &domain.RawPerformer{},
			&domain.TaskField{}, &domain.Delay{}, &domain.Condition{}, &domain.WorkflowMember{}, &checklist.ChecklistItem{}} {
			Expect(countRows(model, "workflow_id = ?", w.ID)).To(BeZero())
		}
		Expect(countRows(&domain.Rule{}, "1 = 1")).To(BeZero())
		Expect(countRows(&domain.Predicate{}, "1 = 1")).To(BeZero())
		Expect(countRows(&domain.GuestToken{}, "workflow_id = ? AND is_active = ?", w.ID, true)).To(BeZero())
		Expect(countRows(&event.EventRecord{}, "workflow_id = ?", w.ID)).ToNot(BeZero())

		removed := rec.notificationsOf(notification.KindRemovedTask)
		Expect(len(removed)).To(Equal(1))
		Expect(removed[0].UserID).To(Equal(performerA))
		Expect(len(rec.trackingsOf("workflow_terminated"))).To(Equal(1))
	})

	t.Run("should terminate a workflow without active performers", func(t *testing.T) {
		setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		c := &workflow.WorkflowCreation{Name: "nobody", Tasks: []workflow.TaskDefinition{
			{Name: "first", Performers: userPerformer(inactiveID)},
		}}
		w := runWorkflow(c)
		Expect(w.Status).To(Equal(domain.WorkflowStatusDone))

		Expect(workflow.NewWorkflowActionService(w.ID, sessionOf(starterID)).TerminateWorkflow()).To(Succeed())
		Expect(countRows(&domain.Workflow{}, "id = ?", w.ID)).To(BeZero())
		Expect(countRows(&domain.Task{}, "workflow_id = ?", w.ID)).To(BeZero())
	})

	t.Run("should terminate running sub-workflows", func(t *testing.T) {
		setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		w := runWorkflow(threeTasks())
		sub := threeTasks()
		sub.AncestorTaskID = loadTask(w.ID, 1).ID
		child := runWorkflow(sub)
		done := runWorkflow(sub)
		Expect(workflow.NewWorkflowActionService(done.ID, sessionOf(starterID)).FinishWorkflow()).To(Succeed())

		Expect(workflow.NewWorkflowActionService(w.ID, sessionOf(ownerID)).TerminateWorkflow()).To(Succeed())
		Expect(countRows(&domain.Workflow{}, "id IN (?)", []types.ID{w.ID, child.ID})).To(BeZero())
		Expect(countRows(&domain.Task{}, "workflow_id = ?", child.ID)).To(BeZero())
		Expect(countRows(&domain.Workflow{}, "id = ?", done.ID)).To(Equal(1))
	})

	t.Run("should only let owners terminate", func(t *testing.T) {
		setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		w := runWorkflow(threeTasks())
		err := workflow.NewWorkflowActionService(w.ID, sessionOf(performerA)).TerminateWorkflow()
		Expect(err).To(Equal(bizerror.ErrPermissionDenied))
		Expect(countRows(&domain.Workflow{}, "id = ?", w.ID)).To(Equal(1))
	})
}

func TestFinishWorkflow(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should end the workflow on behalf of its owner", func(t *testing.T) {
		rec := setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		w := runWorkflow(threeTasks())
		rec.reset()

		service := workflow.NewWorkflowActionService(w.ID, sessionOf(starterID))
		Expect(service.FinishWorkflow()).To(Succeed())
		Expect(service.Workflow().Status).To(Equal(domain.WorkflowStatusDone))
		Expect(service.Workflow().DateCompleted).ToNot(BeNil())

		persisted := loadWorkflow(w.ID)
		Expect(persisted.Status).To(Equal(domain.WorkflowStatusDone))
		Expect(persisted.ActiveTasksCount).To(BeZero())
		Expect(len(rec.eventsOf(event.EventTypeEnded))).To(Equal(1))
		Expect(len(rec.notificationsOf(notification.KindRemovedTask))).To(Equal(1))

		err := workflow.NewWorkflowActionService(w.ID, sessionOf(starterID)).FinishWorkflow()
		Expect(err).To(Equal(bizerror.ErrCompletedWorkflowCannotBeChanged))
		err = workflow.NewWorkflowActionService(w.ID, sessionOf(strangerID)).FinishWorkflow()
		Expect(err).To(Equal(bizerror.ErrPermissionDenied))
	})

	t.Run("should end the workflow when a condition says so", func(t *testing.T) {
		rec := setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		c := threeTasks()
		c.Tasks[1].Conditions = []workflow.ConditionDefinition{{Action: domain.ActionEndProcess, Rules: []workflow.RuleDefinition{
			{Predicates: []workflow.PredicateDefinition{{Field: "prepare", FieldType: domain.FieldTypeTask,
				Operator: domain.OperatorCompleted}}},
		}}}
		w := runWorkflow(c)
		complete(w, 1, performerA)

		persisted := loadWorkflow(w.ID)
		Expect(persisted.Status).To(Equal(domain.WorkflowStatusDone))
		Expect(persisted.CurrentTask).To(Equal(1))
		Expect(loadTask(w.ID, 2).Status).To(Equal(domain.TaskStatusPending))
		Expect(len(rec.eventsOf(event.EventTypeEndedByCondition))).To(Equal(1))
	})
}

func TestExecuteCondition(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should evaluate the conditions of a task without changing it", func(t *testing.T) {
		setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		c := threeTasks()
		c.KickoffFields = []workflow.FieldDefinition{{APIName: "amount", Type: domain.FieldTypeNumber, Value: "150"}}
		c.Tasks[2].Conditions = []workflow.ConditionDefinition{
			{Action: domain.ActionSkipTask, Rules: []workflow.RuleDefinition{
				{Predicates: []workflow.PredicateDefinition{{Field: "amount", FieldType: domain.FieldTypeNumber,
					Operator: domain.OperatorLessThan, Value: "100"}}},
			}},
			{Action: domain.ActionStartTask, Rules: []workflow.RuleDefinition{
				{Predicates: []workflow.PredicateDefinition{{Field: "amount", FieldType: domain.FieldTypeNumber,
					Operator: domain.OperatorMoreThan, Value: "100"}}},
			}},
		}
		w := runWorkflow(c)

		service := workflow.NewWorkflowActionService(w.ID, sessionOf(starterID))
		action, byCondition, err := service.ExecuteCondition(loadTask(w.ID, 3).ID)
		Expect(err).To(BeNil())
		Expect(action).To(Equal(domain.ActionStartTask))
		Expect(byCondition).To(BeTrue())

		action, byCondition, err = service.ExecuteCondition(loadTask(w.ID, 2).ID)
		Expect(err).To(BeNil())
		Expect(action).To(Equal(domain.ActionStartTask))
		Expect(byCondition).To(BeFalse())

		Expect(loadWorkflow(w.ID).Version).To(Equal(w.Version))
	})
}

func TestQueryWorkflow(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should only show workflows to their members and account owners", func(t *testing.T) {
		setupEngineTest(&testDatabase)
		defer func() { teardownEngineTest(testDatabase) }()

		w := runWorkflow(threeTasks())

		detail, err := workflow.DetailWorkflow(w.ID, sessionOf(performerA))
		Expect(err).To(BeNil())
		Expect(detail.ID).To(Equal(w.ID))
		Expect(len(detail.Members)).To(Equal(2))
		Expect(detail.Tasks[0].Status).To(Equal(domain.TaskStatusActive))

		_, err = workflow.DetailWorkflow(w.ID, sessionOf(ownerID))
		Expect(err).To(BeNil())
		_, err = workflow.DetailWorkflow(w.ID, sessionOf(performerB))
		Expect(err).To(Equal(bizerror.ErrForbidden))
		_, err = workflow.DetailWorkflow(w.ID, testinfra.BuildSession(performerA, otherAccout, false))
		Expect(err).To(Equal(bizerror.ErrForbidden))

		records, err := workflow.QueryWorkflowEvents(w.ID, sessionOf(starterID))
		Expect(err).To(BeNil())
		Expect(len(records)).To(Equal(2))
		Expect(records[0].Type).To(Equal(event.EventTypeRun))
		Expect(records[1].Type).To(Equal(event.EventTypeTaskStart))

		_, err = workflow.QueryWorkflowEvents(w.ID, sessionOf(strangerID))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})
}
