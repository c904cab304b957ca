package checklist

import (
	"errors"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/idgen"
	"pneumatic/persistence"
	"pneumatic/session"
	"strconv"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	checklistIdWorker = idgen.NewWorker()

	ListChecklistFunc       = ListChecklist
	MarkChecklistItemFunc   = MarkChecklistItem
	UnmarkChecklistItemFunc = UnmarkChecklistItem
)

type ChecklistItem struct {
	ID         types.ID `json:"id" gorm:"primary_key"`
	TaskID     types.ID `json:"taskId" gorm:"index"`
	WorkflowID types.ID `json:"workflowId" gorm:"index"`
	Name       string   `json:"name"`
	SortOrder  int      `json:"sortOrder"`

	Selected       bool       `json:"selected"`
	SelectedUserID types.ID   `json:"selectedUserId"`
	SelectedTime   *time.Time `json:"selectedTime"`

	CreateTime time.Time `json:"createTime"`
}

// CreateChecklistDirectly appends items to the checklist of a task inside transaction tx.
func CreateChecklistDirectly(task *domain.Task, names []string, timestamp time.Time, tx *gorm.DB) ([]ChecklistItem, error) {
	items := make([]ChecklistItem, 0, len(names))
	for idx, name := range names {
		i := ChecklistItem{
			ID:         idgen.NextID(checklistIdWorker),
			TaskID:     task.ID,
			WorkflowID: task.WorkflowID,
			Name:       name,
			SortOrder:  idx,
			CreateTime: timestamp,
		}
		if err := tx.Create(&i).Error; err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, nil
}

// CountUnselectedDirectly counts the items of a task which are not selected yet.
func CountUnselectedDirectly(taskID types.ID, db *gorm.DB) (int, error) {
	count := 0
	if err := db.Model(&ChecklistItem{}).Where("task_id = ? AND selected = ?", taskID, false).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// UnselectAllDirectly clears the selections of a task, used when the task is entered again.
func UnselectAllDirectly(taskID types.ID, tx *gorm.DB) error {
	return tx.Model(&ChecklistItem{}).Where("task_id = ?", taskID).
		Updates(map[string]interface{}{"selected": false, "selected_user_id": 0, "selected_time": nil}).Error
}

func CleanWorkflowChecklistDirectly(workflowID types.ID, tx *gorm.DB) error {
	return tx.Delete(&ChecklistItem{}, "workflow_id = ?", workflowID).Error
}

func ListChecklist(taskID types.ID, s *session.Session) ([]ChecklistItem, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	task, _, err := findTaskAndCheckPerms(db, taskID, s)
	if err != nil {
		return nil, err
	}
	var items []ChecklistItem
	if err := db.Where("task_id = ?", task.ID).Order("sort_order ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func MarkChecklistItem(id types.ID, s *session.Session) (*ChecklistItem, error) {
	return selectChecklistItem(id, true, s)
}

func UnmarkChecklistItem(id types.ID, s *session.Session) (*ChecklistItem, error) {
	return selectChecklistItem(id, false, s)
}

func selectChecklistItem(id types.ID, selected bool, s *session.Session) (*ChecklistItem, error) {
	var r *ChecklistItem
	txErr := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		item := ChecklistItem{}
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			return err
		}
		task, w, err := findTaskAndCheckPerms(tx, item.TaskID, s)
		if err != nil {
			return err
		}
		if w.IsDone() {
			return bizerror.ErrCompletedWorkflowCannotBeChanged
		}
		if w.IsDelayed() {
			return bizerror.ErrDelayedWorkflowCannotBeChanged
		}
		if task.Status != domain.TaskStatusActive {
			return bizerror.ErrCompleteInactiveTask
		}
		if item.Selected == selected {
			r = &item
			return nil
		}

		changes := map[string]interface{}{"selected": selected, "selected_user_id": 0, "selected_time": nil}
		if selected {
			now := time.Now()
			changes["selected_user_id"] = s.Identity.ID
			changes["selected_time"] = &now
			item.SelectedUserID, item.SelectedTime = s.Identity.ID, &now
		} else {
			item.SelectedUserID, item.SelectedTime = 0, nil
		}
		item.Selected = selected

		db := tx.Model(&ChecklistItem{}).Where("id = ? AND selected = ?", id, !selected).Updates(changes)
		if db.Error != nil {
			return db.Error
		}
		if db.RowsAffected != 1 {
			return errors.New("expected affected row is 1, but actual is " + strconv.FormatInt(db.RowsAffected, 10))
		}
		r = &item
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return r, nil
}

// findTaskAndCheckPerms grants account owners and active members of the workflow.
func findTaskAndCheckPerms(db *gorm.DB, taskID types.ID, s *session.Session) (*domain.Task, *domain.Workflow, error) {
	task := domain.Task{}
	if err := db.Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, nil, err
	}
	w := domain.Workflow{}
	if err := db.Where("id = ?", task.WorkflowID).First(&w).Error; err != nil {
		return nil, nil, err
	}
	if s == nil || s.Identity.ID == 0 || w.AccountID != s.Identity.AccountID {
		return nil, nil, bizerror.ErrForbidden
	}
	if s.Identity.IsAccountOwner {
		return &task, &w, nil
	}
	count := 0
	if err := db.Model(&domain.WorkflowMember{}).Where("workflow_id = ? AND user_id = ? AND status = ?",
		w.ID, s.Identity.ID, domain.LifecycleActive).Count(&count).Error; err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, nil, bizerror.ErrForbidden
	}
	return &task, &w, nil
}
