package workflow

import (
	"pneumatic/account"
	"pneumatic/bizerror"
	"pneumatic/domain"
	"pneumatic/event"
	"pneumatic/persistence"
	"pneumatic/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	DetailWorkflowFunc      = DetailWorkflow
	QueryWorkflowEventsFunc = QueryWorkflowEvents
)

type WorkflowDetail struct {
	domain.Workflow
	Members       []domain.WorkflowMember `json:"members"`
	KickoffFields []domain.TaskField      `json:"kickoffFields"`
	Tasks         []TaskDetail            `json:"tasks"`
	// Users names the members and performers referenced by the detail.
	Users []account.UserInfo `json:"users"`
}

type TaskDetail struct {
	domain.Task
	Performers []domain.TaskPerformer `json:"performers"`
	Fields     []domain.TaskField     `json:"fields"`
	Delays     []domain.Delay         `json:"delays"`
}

func DetailWorkflow(id types.ID, s *session.Session) (*WorkflowDetail, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	w, err := findWorkflowAndCheckPerms(db, id, s)
	if err != nil {
		return nil, err
	}
	detail := WorkflowDetail{Workflow: *w, Members: []domain.WorkflowMember{}, KickoffFields: []domain.TaskField{},
		Tasks: []TaskDetail{}, Users: []account.UserInfo{}}
	if err := db.Where("workflow_id = ? AND status = ?", id, domain.LifecycleActive).Order("id ASC").
		Find(&detail.Members).Error; err != nil {
		return nil, err
	}

	var tasks []domain.Task
	if err := db.Where("workflow_id = ?", id).Order("number ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	var performers []domain.TaskPerformer
	if err := db.Where("workflow_id = ? AND status = ?", id, domain.LifecycleActive).Order("id ASC").Find(&performers).Error; err != nil {
		return nil, err
	}
	var fields []domain.TaskField
	if err := db.Where("workflow_id = ?", id).Order("id ASC").Find(&fields).Error; err != nil {
		return nil, err
	}
	var delays []domain.Delay
	if err := db.Where("workflow_id = ?", id).Order("id ASC").Find(&delays).Error; err != nil {
		return nil, err
	}

	for _, t := range tasks {
		td := TaskDetail{Task: t, Performers: []domain.TaskPerformer{}, Fields: []domain.TaskField{}, Delays: []domain.Delay{}}
		for _, p := range performers {
			if p.TaskID == t.ID {
				td.Performers = append(td.Performers, p)
			}
		}
		for _, f := range fields {
			if f.TaskID == t.ID {
				td.Fields = append(td.Fields, f)
			}
		}
		for _, d := range delays {
			if d.TaskID == t.ID {
				td.Delays = append(td.Delays, d)
			}
		}
		detail.Tasks = append(detail.Tasks, td)
	}
	for _, f := range fields {
		if f.TaskID == 0 {
			detail.KickoffFields = append(detail.KickoffFields, f)
		}
	}

	var userIDs []types.ID
	seen := map[types.ID]bool{}
	for _, m := range detail.Members {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			userIDs = append(userIDs, m.UserID)
		}
	}
	for _, p := range performers {
		if p.UserID != 0 && !seen[p.UserID] {
			seen[p.UserID] = true
			userIDs = append(userIDs, p.UserID)
		}
	}
	names, err := account.QueryAccountNames(db, userIDs)
	if err != nil {
		return nil, err
	}
	for _, uid := range userIDs {
		if name, found := names[uid]; found {
			detail.Users = append(detail.Users, account.UserInfo{ID: uid, Name: name})
		}
	}
	return &detail, nil
}

// QueryWorkflowEvents lists the events of a workflow the caller can see.
func QueryWorkflowEvents(id types.ID, s *session.Session) ([]event.EventRecord, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if _, err := findWorkflowAndCheckPerms(db, id, s); err != nil {
		return nil, err
	}
	records, err := event.QueryWorkflowEventsFunc(id, db)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []event.EventRecord{}
	}
	return records, nil
}

// findWorkflowAndCheckPerms grants account owners and active members of the workflow.
func findWorkflowAndCheckPerms(db *gorm.DB, id types.ID, s *session.Session) (*domain.Workflow, error) {
	w := domain.Workflow{}
	if err := db.Where("id = ?", id).First(&w).Error; err != nil {
		return nil, err
	}
	if s.Identity.ID == 0 || w.AccountID != s.Identity.AccountID {
		return nil, bizerror.ErrForbidden
	}
	if s.Identity.IsAccountOwner {
		return &w, nil
	}
	count := 0
	if err := db.Model(&domain.WorkflowMember{}).Where("workflow_id = ? AND user_id = ? AND status = ?",
		id, s.Identity.ID, domain.LifecycleActive).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, bizerror.ErrForbidden
	}
	return &w, nil
}
