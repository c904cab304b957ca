package guest

import (
	"context"
	"errors"
	"pneumatic/account"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/idgen"
	"pneumatic/persistence"
	"pneumatic/session"
	"strconv"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

var (
	guestTokenIdWorker = idgen.NewWorker()

	IssueGuestTokenFunc  = IssueGuestToken
	RevokeGuestTokenFunc = RevokeGuestToken
	LoadGuestTokenFunc   = LoadGuestToken
)

type IssueGuestTokenRequest struct {
	UserID types.ID `json:"userId" binding:"required"`
}

// IssueGuestToken lets a performer of an active task act on its workflow without a gateway login.
// An active token of the same user and task is returned instead of a new one.
func IssueGuestToken(taskID types.ID, req *IssueGuestTokenRequest, s *session.Session) (*domain.GuestToken, error) {
	var r *domain.GuestToken
	txErr := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		task := domain.Task{}
		if err := tx.Where("id = ?", taskID).First(&task).Error; err != nil {
			return err
		}
		w, err := findWorkflowAndCheckPerms(tx, task.WorkflowID, s)
		if err != nil {
			return err
		}
		if w.IsDone() {
			return bizerror.ErrCompletedWorkflowCannotBeChanged
		}
		if task.Status != domain.TaskStatusActive {
			return bizerror.ErrCompleteInactiveTask
		}

		user, err := account.FindUser(tx, req.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &bizerror.ErrBadParam{Cause: errors.New("unknown user " + req.UserID.String())}
			}
			return err
		}
		if user.AccountID != w.AccountID || !user.IsActive() {
			return &bizerror.ErrBadParam{Cause: errors.New("unknown user " + req.UserID.String())}
		}
		performers := 0
		if err := tx.Model(&domain.TaskPerformer{}).Where("task_id = ? AND user_id = ? AND type = ? AND status = ?",
			task.ID, user.ID, domain.PerformerTypeUser, domain.LifecycleActive).Count(&performers).Error; err != nil {
			return err
		}
		if performers == 0 {
			return bizerror.ErrUserNotPerformer
		}

		existed := domain.GuestToken{}
		err = tx.Where("task_id = ? AND user_id = ? AND is_active = ?", task.ID, user.ID, true).First(&existed).Error
		if err == nil {
			r = &existed
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		t := domain.GuestToken{
			ID:          idgen.NextID(guestTokenIdWorker),
			WorkflowID:  w.ID,
			TaskID:      task.ID,
			UserID:      user.ID,
			Token:       uuid.New().String(),
			IsActive:    true,
			DateCreated: time.Now(),
		}
		if err := tx.Create(&t).Error; err != nil {
			return err
		}
		r = &t
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return r, nil
}

func RevokeGuestToken(id types.ID, s *session.Session) error {
	return persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		t := domain.GuestToken{}
		if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
			return err
		}
		if _, err := findWorkflowAndCheckPerms(tx, t.WorkflowID, s); err != nil {
			return err
		}
		if !t.IsActive {
			return nil
		}
		db := tx.Model(&domain.GuestToken{}).Where("id = ? AND is_active = ?", id, true).
			Updates(map[string]interface{}{"is_active": false})
		if db.Error != nil {
			return db.Error
		}
		if db.RowsAffected != 1 {
			return errors.New("expected affected row is 1, but actual is " + strconv.FormatInt(db.RowsAffected, 10))
		}
		session.TokenCache.Delete(cacheKey(t.Token))
		return nil
	})
}

// LoadGuestToken resolves an active token, inactive and unknown tokens are unauthenticated.
func LoadGuestToken(ctx context.Context, token string) (*domain.GuestToken, error) {
	t := domain.GuestToken{}
	err := persistence.ActiveDataSourceManager.GormDB(ctx).Where("token = ? AND is_active = ?", token, true).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrUnauthenticated
		}
		return nil, err
	}
	return &t, nil
}

// findWorkflowAndCheckPerms grants account owners and active members of the workflow.
func findWorkflowAndCheckPerms(db *gorm.DB, workflowID types.ID, s *session.Session) (*domain.Workflow, error) {
	w := domain.Workflow{}
	if err := db.Where("id = ?", workflowID).First(&w).Error; err != nil {
		return nil, err
	}
	if s == nil || s.Identity.ID == 0 || w.AccountID != s.Identity.AccountID {
		return nil, bizerror.ErrForbidden
	}
	if s.Identity.IsAccountOwner {
		return &w, nil
	}
	count := 0
	if err := db.Model(&domain.WorkflowMember{}).Where("workflow_id = ? AND user_id = ? AND status = ?",
		w.ID, s.Identity.ID, domain.LifecycleActive).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, bizerror.ErrForbidden
	}
	return &w, nil
}
