package workflow

import (
	"errors"
	"fmt"
	"pneumatic/account"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/domain/checklist"
	"pneumatic/idgen"
	"pneumatic/persistence"
	"pneumatic/session"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/gorm"
)

var (
	RunWorkflowFunc = RunWorkflow

	creationValidator = validator.New()
)

// WorkflowCreation is what running a template produces: the workflow and the definition of its tasks, in order.
type WorkflowCreation struct {
	Name           string            `json:"name" validate:"required"`
	TemplateName   string            `json:"templateName"`
	IsUrgent       bool              `json:"isUrgent"`
	DueDate        *time.Time        `json:"dueDate"`
	AncestorTaskID types.ID          `json:"ancestorTaskId"`
	Owners         []types.ID        `json:"owners"`
	KickoffFields  []FieldDefinition `json:"kickoffFields" validate:"dive"`
	Tasks          []TaskDefinition  `json:"tasks" validate:"required,min=1,dive"`
}

type TaskDefinition struct {
	Name                   string                `json:"name" validate:"required"`
	APIName                string                `json:"apiName"`
	Description            string                `json:"description"`
	RequireCompletionByAll bool                  `json:"requireCompletionByAll"`
	DueDate                *time.Time            `json:"dueDate"`
	DelaySeconds           int64                 `json:"delaySeconds" validate:"min=0"`
	Performers             []PerformerDefinition `json:"performers" validate:"dive"`
	Conditions             []ConditionDefinition `json:"conditions" validate:"dive"`
	Fields                 []FieldDefinition     `json:"fields" validate:"dive"`
	Checklist              []string              `json:"checklist" validate:"dive,required"`
}

type PerformerDefinition struct {
	Type         domain.PerformerType `json:"type" validate:"required,oneof=USER GROUP WORKFLOW_STARTER FIELD"`
	UserID       types.ID             `json:"userId"`
	GroupID      types.ID             `json:"groupId"`
	FieldAPIName string               `json:"fieldApiName"`
}

type ConditionDefinition struct {
	Action domain.ConditionAction `json:"action" validate:"required,oneof=START_TASK SKIP_TASK END_PROCESS"`
	Rules  []RuleDefinition       `json:"rules" validate:"dive"`
}

type RuleDefinition struct {
	Predicates []PredicateDefinition `json:"predicates" validate:"required,min=1,dive"`
}

type PredicateDefinition struct {
	Field     string                   `json:"field" validate:"required"`
	FieldType domain.FieldType         `json:"fieldType" validate:"required"`
	Operator  domain.PredicateOperator `json:"operator" validate:"required"`
	Value     string                   `json:"value"`
}

type FieldDefinition struct {
	APIName    string           `json:"apiName" validate:"required"`
	Name       string           `json:"name"`
	Type       domain.FieldType `json:"type" validate:"required"`
	IsRequired bool             `json:"isRequired"`
	Value      string           `json:"value"`
}

// RunWorkflow creates the workflow of the caller's account and starts it in the same transaction.
func RunWorkflow(c *WorkflowCreation, s *session.Session) (*domain.Workflow, error) {
	if err := creationValidator.Struct(c); err != nil {
		return nil, &bizerror.ErrBadParam{Cause: err}
	}
	if s.Identity.ID == 0 {
		return nil, bizerror.ErrForbidden
	}

	workflowID := idgen.NextID(workflowIdWorker)
	service := NewWorkflowActionService(workflowID, s)
	fx := &effects{}
	txErr := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if err := createWorkflowRows(workflowID, c, s, NowFunc(), tx); err != nil {
			return err
		}
		return service.executeIn(tx, fx, service.startWorkflow)
	})
	if txErr != nil {
		return nil, txErr
	}
	service.flush(fx)
	return service.Workflow(), nil
}

func createWorkflowRows(workflowID types.ID, c *WorkflowCreation, s *session.Session, now time.Time, tx *gorm.DB) error {
	if c.AncestorTaskID != 0 {
		ancestor := domain.Task{}
		if err := tx.Where("id = ? AND account_id = ?", c.AncestorTaskID, s.Identity.AccountID).First(&ancestor).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &bizerror.ErrBadParam{Cause: fmt.Errorf("ancestor task %d not found", c.AncestorTaskID)}
			}
			return err
		}
	}

	w := domain.Workflow{
		ID:             workflowID,
		AccountID:      s.Identity.AccountID,
		Name:           c.Name,
		TemplateName:   c.TemplateName,
		Status:         domain.WorkflowStatusRunning,
		TasksCount:     len(c.Tasks),
		IsUrgent:       c.IsUrgent,
		DueDate:        c.DueDate,
		AncestorTaskID: c.AncestorTaskID,
		StarterID:      s.Identity.ID,
		DateCreated:    now,
	}
	if err := tx.Create(&w).Error; err != nil {
		return err
	}

	owners := map[types.ID]bool{s.Identity.ID: true}
	ownerIDs := []types.ID{s.Identity.ID}
	for _, id := range c.Owners {
		if id != 0 && !owners[id] {
			if err := checkAccountUser(tx, w.AccountID, id); err != nil {
				return err
			}
			owners[id] = true
			ownerIDs = append(ownerIDs, id)
		}
	}
	for _, uid := range ownerIDs {
		m := domain.WorkflowMember{ID: idgen.NextID(workflowIdWorker), WorkflowID: w.ID, UserID: uid, IsOwner: true,
			Status: domain.LifecycleActive}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
	}

	apiNames := map[string]bool{}
	if err := createFields(&w, 0, c.KickoffFields, apiNames, tx); err != nil {
		return err
	}
	taskAPINames := map[string]bool{}
	for idx := range c.Tasks {
		def := &c.Tasks[idx]
		apiName := strings.TrimSpace(def.APIName)
		if apiName == "" {
			apiName = fmt.Sprintf("task-%d", idx+1)
		}
		if taskAPINames[apiName] {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("duplicated task api name '%s'", apiName)}
		}
		taskAPINames[apiName] = true

		task := domain.Task{
			ID:                     idgen.NextID(workflowIdWorker),
			WorkflowID:             w.ID,
			AccountID:              w.AccountID,
			Number:                 idx + 1,
			APIName:                apiName,
			Name:                   def.Name,
			Description:            def.Description,
			Status:                 domain.TaskStatusPending,
			RequireCompletionByAll: def.RequireCompletionByAll,
			IsUrgent:               c.IsUrgent,
			DueDate:                def.DueDate,
		}
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		if err := createTaskDefinition(&w, &task, def, apiNames, now, tx); err != nil {
			return err
		}
	}
	return nil
}

func createTaskDefinition(w *domain.Workflow, task *domain.Task, def *TaskDefinition, apiNames map[string]bool,
	now time.Time, tx *gorm.DB) error {
	for _, p := range def.Performers {
		raw := domain.RawPerformer{
			ID:           idgen.NextID(workflowIdWorker),
			WorkflowID:   w.ID,
			TaskID:       task.ID,
			Type:         p.Type,
			FieldAPIName: p.FieldAPIName,
		}
		switch p.Type {
		case domain.PerformerTypeUser:
			if err := checkAccountUser(tx, w.AccountID, p.UserID); err != nil {
				return err
			}
			raw.UserID = p.UserID
		case domain.PerformerTypeGroup:
			if _, err := account.FindAccountGroup(tx, w.AccountID, p.GroupID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &bizerror.ErrBadParam{Cause: errors.New("unknown group " + p.GroupID.String())}
				}
				return err
			}
			raw.GroupID = p.GroupID
		case domain.PerformerTypeField:
			if p.FieldAPIName == "" {
				return &bizerror.ErrBadParam{Cause: fmt.Errorf("performer field of task '%s' is required", task.Name)}
			}
		}
		if err := tx.Create(&raw).Error; err != nil {
			return err
		}
	}

	if def.DelaySeconds > 0 {
		d := domain.Delay{ID: idgen.NextID(workflowIdWorker), WorkflowID: w.ID, TaskID: task.ID,
			Duration: time.Duration(def.DelaySeconds) * time.Second}
		if err := tx.Create(&d).Error; err != nil {
			return err
		}
	}

	for ci, cd := range def.Conditions {
		cond := domain.Condition{ID: idgen.NextID(workflowIdWorker), WorkflowID: w.ID, TaskID: task.ID,
			Action: cd.Action, SortOrder: ci}
		if !cond.Action.IsValid() {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid condition action '%s'", cd.Action)}
		}
		if err := tx.Create(&cond).Error; err != nil {
			return err
		}
		for ri, rd := range cd.Rules {
			rule := domain.Rule{ID: idgen.NextID(workflowIdWorker), ConditionID: cond.ID, SortOrder: ri}
			if err := tx.Create(&rule).Error; err != nil {
				return err
			}
			for pi, pd := range rd.Predicates {
				predicate := domain.Predicate{ID: idgen.NextID(workflowIdWorker), RuleID: rule.ID, SortOrder: pi,
					Field: pd.Field, FieldType: pd.FieldType, Operator: pd.Operator, Value: pd.Value}
				if err := tx.Create(&predicate).Error; err != nil {
					return err
				}
			}
		}
	}

	if err := createFields(w, task.ID, def.Fields, apiNames, tx); err != nil {
		return err
	}
	_, err := checklist.CreateChecklistDirectly(task, def.Checklist, now, tx)
	return err
}

func createFields(w *domain.Workflow, taskID types.ID, defs []FieldDefinition, apiNames map[string]bool, tx *gorm.DB) error {
	for _, fd := range defs {
		if apiNames[fd.APIName] {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("duplicated field api name '%s'", fd.APIName)}
		}
		apiNames[fd.APIName] = true
		f := domain.TaskField{
			ID:         idgen.NextID(workflowIdWorker),
			WorkflowID: w.ID,
			TaskID:     taskID,
			APIName:    fd.APIName,
			Name:       fd.Name,
			Type:       fd.Type,
			IsRequired: fd.IsRequired,
			Value:      fd.Value,
		}
		if fd.Type == domain.FieldTypeUser && fd.Value != "" {
			uid, err := types.ParseID(fd.Value)
			if err != nil {
				return &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid user '%s' of field '%s'", fd.Value, fd.APIName)}
			}
			if err := checkAccountUser(tx, w.AccountID, uid); err != nil {
				return err
			}
			f.UserID = uid
		}
		if taskID == 0 && f.IsRequired && f.IsEmpty() {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("field '%s' is required", fd.APIName)}
		}
		if err := tx.Create(&f).Error; err != nil {
			return err
		}
	}
	return nil
}

// checkAccountUser rejects users unknown to the account.
func checkAccountUser(db *gorm.DB, accountID, uid types.ID) error {
	if _, err := account.FindAccountUser(db, accountID, uid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &bizerror.ErrBadParam{Cause: errors.New("unknown user " + uid.String())}
		}
		return err
	}
	return nil
}
