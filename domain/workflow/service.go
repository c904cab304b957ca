package workflow

import (
	"errors"
	"fmt"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/event"
	"pneumatic/outbox"
	"pneumatic/persistence"
	"pneumatic/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	NowFunc = time.Now

	NewActionServiceFunc = func(workflowID types.ID, s *session.Session) ActionService {
		return NewWorkflowActionService(workflowID, s)
	}
)

// ActionService is the part of WorkflowActionService reachable from outside the engine.
type ActionService interface {
	CompleteTaskForUser(taskID types.ID, values FieldValues) error
	Revert(taskID types.ID, comment string) error
	ReturnTo(taskID types.ID) error
	ForceDelayWorkflow(date time.Time) error
	ResumeWorkflow() error
	ForceResumeWorkflow() error
	FinishWorkflow() error
	TerminateWorkflow() error

	Workflow() *domain.Workflow
}

// effects collects what must happen once the transaction committed.
type effects struct {
	events    []*event.EventRecord
	outboxIDs []types.ID
}

func (fx *effects) addOutbox(r *outbox.Record) {
	if r != nil {
		fx.outboxIDs = append(fx.outboxIDs, r.ID)
	}
}

// WorkflowActionService changes the state of one workflow and its tasks. Every public operation runs in a single
// transaction, cascades through the unexported methods sharing that transaction and saves the workflow row with a
// version check.
type WorkflowActionService struct {
	WorkflowID types.ID

	sec *session.Session

	tx       *gorm.DB
	fx       *effects
	workflow *domain.Workflow
	version  int
	now      time.Time
	deleted  bool
}

func NewWorkflowActionService(workflowID types.ID, s *session.Session) *WorkflowActionService {
	return &WorkflowActionService{WorkflowID: workflowID, sec: s}
}

// Workflow is the state left by the last operation.
func (s *WorkflowActionService) Workflow() *domain.Workflow {
	return s.workflow
}

func (s *WorkflowActionService) execute(action func() error) error {
	fx := &effects{}
	txErr := persistence.ActiveDataSourceManager.GormDB(s.sec.Context).Transaction(func(tx *gorm.DB) error {
		return s.executeIn(tx, fx, action)
	})
	if txErr != nil {
		return txErr
	}
	s.flush(fx)
	return nil
}

// executeIn runs action against the workflow inside the transaction tx owned by the caller.
func (s *WorkflowActionService) executeIn(tx *gorm.DB, fx *effects, action func() error) error {
	s.tx, s.fx, s.now, s.deleted = tx, fx, NowFunc(), false

	w := domain.Workflow{}
	if err := tx.Where("id = ?", s.WorkflowID).First(&w).Error; err != nil {
		return err
	}
	if !s.sec.IsSystem() && w.AccountID != s.sec.Identity.AccountID {
		return bizerror.ErrForbidden
	}
	s.workflow, s.version = &w, w.Version

	if err := action(); err != nil {
		return err
	}
	if s.deleted {
		return nil
	}
	return s.saveWorkflow()
}

func (s *WorkflowActionService) flush(fx *effects) {
	if event.InvokeHandlersFunc != nil {
		for _, ev := range fx.events {
			event.InvokeHandlersFunc(ev)
		}
	}
	outbox.DispatchFunc(s.sec.Context, fx.outboxIDs)
}

// saveWorkflow recomputes the counters and writes the workflow row if nobody changed it since it was loaded.
func (s *WorkflowActionService) saveWorkflow() error {
	w := s.workflow
	tasksCount, activeCount := 0, 0
	if err := s.tx.Model(&domain.Task{}).Where("workflow_id = ?", w.ID).Count(&tasksCount).Error; err != nil {
		return err
	}
	if !w.IsDone() {
		if err := s.tx.Model(&domain.Task{}).Where("workflow_id = ? AND status = ?", w.ID, domain.TaskStatusActive).
			Count(&activeCount).Error; err != nil {
			return err
		}
	}
	w.TasksCount, w.ActiveTasksCount = tasksCount, activeCount

	db := s.tx.Model(&domain.Workflow{}).Where("id = ? AND version = ?", w.ID, s.version).Updates(map[string]interface{}{
		"status":             w.Status,
		"current_task":       w.CurrentTask,
		"active_tasks_count": w.ActiveTasksCount,
		"tasks_count":        w.TasksCount,
		"is_urgent":          w.IsUrgent,
		"date_completed":     w.DateCompleted,
		"version":            s.version + 1,
	})
	if db.Error != nil {
		return db.Error
	}
	if db.RowsAffected != 1 {
		return bizerror.ErrConcurrentModification
	}
	w.Version = s.version + 1
	return nil
}

func (s *WorkflowActionService) setWorkflowStatus(status domain.WorkflowStatus) error {
	if err := domain.WorkflowStateMachine.Check(string(s.workflow.Status), string(status)); err != nil {
		return err
	}
	s.workflow.Status = status
	return nil
}

func (s *WorkflowActionService) setTaskStatus(task *domain.Task, status domain.TaskStatus) error {
	if err := domain.TaskStateMachine.Check(string(task.Status), string(status)); err != nil {
		return err
	}
	task.Status = status
	return nil
}

func (s *WorkflowActionService) saveTask(task *domain.Task) error {
	return s.tx.Save(task).Error
}

func (s *WorkflowActionService) loadTasks() ([]domain.Task, error) {
	var tasks []domain.Task
	if err := s.tx.Where("workflow_id = ?", s.workflow.ID).Order("number ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// taskByNumber returns nil when the workflow has no such task.
func (s *WorkflowActionService) taskByNumber(number int) (*domain.Task, error) {
	task := domain.Task{}
	err := s.tx.Where("workflow_id = ? AND number = ?", s.workflow.ID, number).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *WorkflowActionService) findTask(taskID types.ID) (*domain.Task, error) {
	task := domain.Task{}
	if err := s.tx.Where("id = ? AND workflow_id = ?", taskID, s.workflow.ID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %d of workflow %d: %w", taskID, s.workflow.ID, bizerror.ErrNotFound)
		}
		return nil, err
	}
	return &task, nil
}

func (s *WorkflowActionService) currentTask() (*domain.Task, error) {
	task, err := s.taskByNumber(s.workflow.CurrentTask)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("current task %d of workflow %d: %w", s.workflow.CurrentTask, s.workflow.ID, bizerror.ErrNotFound)
	}
	return task, nil
}

// runningSubWorkflows counts the workflows spawned from the task which are not done.
func (s *WorkflowActionService) runningSubWorkflows(taskID types.ID) (int, error) {
	count := 0
	if err := s.tx.Model(&domain.Workflow{}).Where("ancestor_task_id = ? AND status <> ?", taskID, domain.WorkflowStatusDone).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// closeOpenDelays ends every started delay of the workflow.
func (s *WorkflowActionService) closeOpenDelays() error {
	return s.tx.Model(&domain.Delay{}).
		Where("workflow_id = ? AND start_date IS NOT NULL AND end_date IS NULL", s.workflow.ID).
		Updates(map[string]interface{}{"end_date": &s.now}).Error
}

func (s *WorkflowActionService) deactivateGuestTokens() error {
	return s.tx.Model(&domain.GuestToken{}).Where("workflow_id = ? AND is_active = ?", s.workflow.ID, true).
		Updates(map[string]interface{}{"is_active": false}).Error
}

func (s *WorkflowActionService) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"workflow": s.WorkflowID, "user": s.sec.Identity.ID})
}
