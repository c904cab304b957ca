package workflow

import (
	"pneumatic/account"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/idgen"
	"sort"

	"github.com/fundwit/go-commons/types"
)

var workflowIdWorker = idgen.NewWorker()

// resolvePerformers turns the raw performers of the task into task performer rows and returns the active users
// assigned to the task. An existing row for the same user or group is reactivated instead of duplicated.
func (s *WorkflowActionService) resolvePerformers(task *domain.Task) ([]types.ID, error) {
	var raws []domain.RawPerformer
	if err := s.tx.Where("task_id = ?", task.ID).Order("id ASC").Find(&raws).Error; err != nil {
		return nil, err
	}
	for _, raw := range raws {
		switch raw.Type {
		case domain.PerformerTypeUser:
			if err := s.ensurePerformer(task, domain.PerformerTypeUser, raw.UserID, 0); err != nil {
				return nil, err
			}
		case domain.PerformerTypeGroup:
			if err := s.ensurePerformer(task, domain.PerformerTypeGroup, 0, raw.GroupID); err != nil {
				return nil, err
			}
		case domain.PerformerTypeWorkflowStarter:
			if s.workflow.StarterID == 0 {
				continue
			}
			if err := s.ensurePerformer(task, domain.PerformerTypeUser, s.workflow.StarterID, 0); err != nil {
				return nil, err
			}
		case domain.PerformerTypeField:
			var fields []domain.TaskField
			if err := s.tx.Where("workflow_id = ? AND api_name = ? AND type = ?", s.workflow.ID, raw.FieldAPIName, domain.FieldTypeUser).
				Find(&fields).Error; err != nil {
				return nil, err
			}
			for _, f := range fields {
				if err := s.ensurePerformer(task, domain.PerformerTypeUser, f.UserID, 0); err != nil {
					return nil, err
				}
			}
		}
	}
	return s.performerUsers(task, false)
}

func (s *WorkflowActionService) ensurePerformer(task *domain.Task, t domain.PerformerType, userID, groupID types.ID) error {
	if userID == 0 && groupID == 0 {
		return nil
	}
	var existing []domain.TaskPerformer
	if err := s.tx.Where("task_id = ? AND type = ? AND user_id = ? AND group_id = ?", task.ID, t, userID, groupID).
		Find(&existing).Error; err != nil {
		return err
	}
	if len(existing) > 0 {
		if existing[0].IsActive() {
			return nil
		}
		return s.tx.Model(&domain.TaskPerformer{}).Where("id = ?", existing[0].ID).
			Updates(map[string]interface{}{"status": domain.LifecycleActive}).Error
	}
	p := domain.TaskPerformer{
		ID:         idgen.NextID(workflowIdWorker),
		WorkflowID: task.WorkflowID,
		TaskID:     task.ID,
		Type:       t,
		UserID:     userID,
		GroupID:    groupID,
		Status:     domain.LifecycleActive,
	}
	return s.tx.Create(&p).Error
}

func (s *WorkflowActionService) activePerformers(task *domain.Task) ([]domain.TaskPerformer, error) {
	var performers []domain.TaskPerformer
	if err := s.tx.Where("task_id = ? AND status = ?", task.ID, domain.LifecycleActive).Order("id ASC").
		Find(&performers).Error; err != nil {
		return nil, err
	}
	return performers, nil
}

// performerUsers lists the active users behind the active performers of the task, groups expanded to their members.
func (s *WorkflowActionService) performerUsers(task *domain.Task, incompleteOnly bool) ([]types.ID, error) {
	performers, err := s.activePerformers(task)
	if err != nil {
		return nil, err
	}
	var userIDs, groupIDs []types.ID
	for _, p := range performers {
		if incompleteOnly && p.IsCompleted {
			continue
		}
		switch p.Type {
		case domain.PerformerTypeUser:
			userIDs = append(userIDs, p.UserID)
		case domain.PerformerTypeGroup:
			groupIDs = append(groupIDs, p.GroupID)
		}
	}

	users, err := account.QueryActiveUsers(s.tx, s.workflow.AccountID, userIDs)
	if err != nil {
		return nil, err
	}
	members, err := account.QueryActiveUserIDsOfGroups(s.tx, s.workflow.AccountID, groupIDs)
	if err != nil {
		return nil, err
	}

	set := map[types.ID]bool{}
	for _, u := range users {
		set[u.ID] = true
	}
	for _, id := range members {
		set[id] = true
	}
	result := make([]types.ID, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// callerPerformers returns the active performer rows of the task which designate the caller, directly or by group.
func (s *WorkflowActionService) callerPerformers(task *domain.Task) ([]domain.TaskPerformer, error) {
	if s.sec.Identity.ID == 0 {
		return nil, nil
	}
	performers, err := s.activePerformers(task)
	if err != nil {
		return nil, err
	}
	groupIDs, err := account.QueryGroupIDsOfUser(s.tx, s.sec.Identity.ID)
	if err != nil {
		return nil, err
	}
	groups := map[types.ID]bool{}
	for _, id := range groupIDs {
		groups[id] = true
	}

	var mine []domain.TaskPerformer
	for _, p := range performers {
		if (p.Type == domain.PerformerTypeUser && p.UserID == s.sec.Identity.ID) ||
			(p.Type == domain.PerformerTypeGroup && groups[p.GroupID]) {
			mine = append(mine, p)
		}
	}
	return mine, nil
}

func (s *WorkflowActionService) completePerformers(ids []types.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.tx.Model(&domain.TaskPerformer{}).Where("id IN (?)", ids).
		Updates(map[string]interface{}{"is_completed": true, "date_completed": &s.now}).Error
}

func (s *WorkflowActionService) resetPerformersCompletion(task *domain.Task) error {
	return s.tx.Model(&domain.TaskPerformer{}).Where("task_id = ?", task.ID).
		Updates(map[string]interface{}{"is_completed": false, "date_completed": nil}).Error
}

// addMembers gives the users visibility on the workflow.
func (s *WorkflowActionService) addMembers(userIDs []types.ID) error {
	for _, uid := range userIDs {
		var existing []domain.WorkflowMember
		if err := s.tx.Where("workflow_id = ? AND user_id = ?", s.workflow.ID, uid).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 {
			if existing[0].Status == domain.LifecycleActive {
				continue
			}
			if err := s.tx.Model(&domain.WorkflowMember{}).Where("id = ?", existing[0].ID).
				Updates(map[string]interface{}{"status": domain.LifecycleActive}).Error; err != nil {
				return err
			}
			continue
		}
		m := domain.WorkflowMember{ID: idgen.NextID(workflowIdWorker), WorkflowID: s.workflow.ID, UserID: uid,
			Status: domain.LifecycleActive}
		if err := s.tx.Create(&m).Error; err != nil {
			return err
		}
	}
	return nil
}

// isOwner grants system sessions, account owners and active owners of the workflow.
func (s *WorkflowActionService) isOwner() (bool, error) {
	if s.sec.IsSystem() || s.sec.Identity.IsAccountOwner {
		return true, nil
	}
	count := 0
	if err := s.tx.Model(&domain.WorkflowMember{}).Where("workflow_id = ? AND user_id = ? AND is_owner = ? AND status = ?",
		s.workflow.ID, s.sec.Identity.ID, true, domain.LifecycleActive).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *WorkflowActionService) requireOwner() error {
	owner, err := s.isOwner()
	if err != nil {
		return err
	}
	if !owner {
		return bizerror.ErrPermissionDenied
	}
	return nil
}
