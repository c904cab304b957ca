package checklist_test

import (
	"context"
	"errors"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/domain/checklist"
	"pneumatic/persistence"
	"pneumatic/testinfra"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
)

const (
	memberID   types.ID = 10
	strangerID types.ID = 20
	ownerID    types.ID = 30
)

func checklistTestSetup(testDatabase **testinfra.TestDatabase) (*domain.Workflow, *domain.Task, []checklist.ChecklistItem) {
	db := testinfra.StartTestDatabase("pneumatic")
	*testDatabase = db
	gdb := db.DS.GormDB(context.Background())
	Expect(gdb.AutoMigrate(&checklist.ChecklistItem{}, &domain.Workflow{}, &domain.Task{}, &domain.WorkflowMember{}).Error).To(BeNil())
	persistence.ActiveDataSourceManager = db.DS

	w := domain.Workflow{ID: 1, AccountID: 1, Name: "onboarding", Status: domain.WorkflowStatusRunning, CurrentTask: 1,
		DateCreated: time.Now()}
	Expect(gdb.Create(&w).Error).To(BeNil())
	task := domain.Task{ID: 100, WorkflowID: w.ID, AccountID: 1, Number: 1, Name: "prepare", Status: domain.TaskStatusActive}
	Expect(gdb.Create(&task).Error).To(BeNil())
	Expect(gdb.Create(&domain.WorkflowMember{ID: 1000, WorkflowID: w.ID, UserID: memberID, Status: domain.LifecycleActive}).
		Error).To(BeNil())

	var items []checklist.ChecklistItem
	Expect(gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		items, err = checklist.CreateChecklistDirectly(&task, []string{"sign contract", "order laptop"}, time.Now(), tx)
		return err
	})).To(BeNil())
	return &w, &task, items
}

func checklistTestTeardown(testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func TestListChecklist(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should list the items of a task in order", func(t *testing.T) {
		_, task, created := checklistTestSetup(&testDatabase)
		defer func() { checklistTestTeardown(testDatabase) }()

		items, err := checklist.ListChecklist(task.ID, testinfra.BuildSession(memberID, 1, false))
		Expect(err).To(BeNil())
		Expect(len(items)).To(Equal(2))
		Expect(items[0].ID).To(Equal(created[0].ID))
		Expect(items[0].Name).To(Equal("sign contract"))
		Expect(items[1].SortOrder).To(Equal(1))
		Expect(items[1].Selected).To(BeFalse())

		_, err = checklist.ListChecklist(task.ID, testinfra.BuildSession(ownerID, 1, true))
		Expect(err).To(BeNil())
	})

	t.Run("should block users who cannot see the workflow", func(t *testing.T) {
		_, task, _ := checklistTestSetup(&testDatabase)
		defer func() { checklistTestTeardown(testDatabase) }()

		_, err := checklist.ListChecklist(task.ID, testinfra.BuildSession(strangerID, 1, false))
		Expect(err).To(Equal(bizerror.ErrForbidden))
		_, err = checklist.ListChecklist(task.ID, testinfra.BuildSession(memberID, 2, true))
		Expect(err).To(Equal(bizerror.ErrForbidden))
		_, err = checklist.ListChecklist(999, testinfra.BuildSession(memberID, 1, false))
		Expect(errors.Is(err, gorm.ErrRecordNotFound)).To(BeTrue())
	})
}

func TestMarkChecklistItem(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should mark and unmark items", func(t *testing.T) {
		_, task, items := checklistTestSetup(&testDatabase)
		defer func() { checklistTestTeardown(testDatabase) }()
		s := testinfra.BuildSession(memberID, 1, false)
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())

		item, err := checklist.MarkChecklistItem(items[0].ID, s)
		Expect(err).To(BeNil())
		Expect(item.Selected).To(BeTrue())
		Expect(item.SelectedUserID).To(Equal(memberID))
		Expect(item.SelectedTime).ToNot(BeNil())

		count, err := checklist.CountUnselectedDirectly(task.ID, db)
		Expect(err).To(BeNil())
		Expect(count).To(Equal(1))

		again, err := checklist.MarkChecklistItem(items[0].ID, s)
		Expect(err).To(BeNil())
		Expect(again.Selected).To(BeTrue())

		item, err = checklist.UnmarkChecklistItem(items[0].ID, s)
		Expect(err).To(BeNil())
		Expect(item.Selected).To(BeFalse())
		Expect(item.SelectedUserID).To(BeZero())
		Expect(item.SelectedTime).To(BeNil())

		count, err = checklist.CountUnselectedDirectly(task.ID, db)
		Expect(err).To(BeNil())
		Expect(count).To(Equal(2))
	})

	t.Run("should only change items of active tasks in running workflows", func(t *testing.T) {
		w, task, items := checklistTestSetup(&testDatabase)
		defer func() { checklistTestTeardown(testDatabase) }()
		s := testinfra.BuildSession(memberID, 1, false)
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())

		Expect(db.Model(&domain.Workflow{}).Where("id = ?", w.ID).Update("status", domain.WorkflowStatusDelayed).Error).To(BeNil())
		_, err := checklist.MarkChecklistItem(items[0].ID, s)
		Expect(err).To(Equal(bizerror.ErrDelayedWorkflowCannotBeChanged))

		Expect(db.Model(&domain.Workflow{}).Where("id = ?", w.ID).Update("status", domain.WorkflowStatusDone).Error).To(BeNil())
		_, err = checklist.MarkChecklistItem(items[0].ID, s)
		Expect(err).To(Equal(bizerror.ErrCompletedWorkflowCannotBeChanged))

		Expect(db.Model(&domain.Workflow{}).Where("id = ?", w.ID).Update("status", domain.WorkflowStatusRunning).Error).To(BeNil())
		Expect(db.Model(&domain.Task{}).Where("id = ?", task.ID).Update("status", domain.TaskStatusPending).Error).To(BeNil())
		_, err = checklist.MarkChecklistItem(items[0].ID, s)
		Expect(err).To(Equal(bizerror.ErrCompleteInactiveTask))

		_, err = checklist.MarkChecklistItem(items[0].ID, testinfra.BuildSession(strangerID, 1, false))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should reset and clean checklists", func(t *testing.T) {
		w, task, items := checklistTestSetup(&testDatabase)
		defer func() { checklistTestTeardown(testDatabase) }()
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())

		for _, i := range items {
			_, err := checklist.MarkChecklistItem(i.ID, testinfra.BuildSession(memberID, 1, false))
			Expect(err).To(BeNil())
		}
		Expect(checklist.UnselectAllDirectly(task.ID, db)).To(BeNil())
		count, err := checklist.CountUnselectedDirectly(task.ID, db)
		Expect(err).To(BeNil())
		Expect(count).To(Equal(2))

		Expect(checklist.CleanWorkflowChecklistDirectly(w.ID, db)).To(BeNil())
		count, err = checklist.CountUnselectedDirectly(task.ID, db)
		Expect(err).To(BeNil())
		Expect(count).To(BeZero())
	})
}
