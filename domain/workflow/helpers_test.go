package workflow_test

import (
	"context"
	"pneumatic/account"
	"pneumatic/analytics"
	"pneumatic/domain"
	"pneumatic/domain/workflow"
	"pneumatic/event"
	"pneumatic/migrations"
	"pneumatic/notification"
	"pneumatic/outbox"
	"pneumatic/persistence"
	"pneumatic/session"
	"pneumatic/testinfra"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
)

const (
	accountID types.ID = 1

	starterID   types.ID = 10
	performerA  types.ID = 20
	performerB  types.ID = 30
	groupUserA  types.ID = 40
	groupUserB  types.ID = 50
	ownerID     types.ID = 90
	inactiveID  types.ID = 95
	strangerID  types.ID = 99
	groupID     types.ID = 500
	otherAccout types.ID = 2

	foreignUserID  types.ID = 777
	foreignGroupID types.ID = 778
)

type recorder struct {
	events        []event.EventRecord
	handled       []event.EventRecord
	notifications []notification.Intent
	trackings     []analytics.Tracking
	dispatched    []types.ID
}

func (r *recorder) reset() {
	r.events, r.handled, r.notifications, r.trackings, r.dispatched = nil, nil, nil, nil, nil
}

func (r *recorder) eventsOf(t event.EventType) []event.EventRecord {
	var result []event.EventRecord
	for _, e := range r.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

func (r *recorder) notificationsOf(kind notification.Kind) []notification.Intent {
	var result []notification.Intent
	for _, n := range r.notifications {
		if n.Kind == kind {
			result = append(result, n)
		}
	}
	return result
}

func (r *recorder) trackingsOf(name string) []analytics.Tracking {
	var result []analytics.Tracking
	for _, t := range r.trackings {
		if t.Event == name {
			result = append(result, t)
		}
	}
	return result
}

func setupEngineTest(testDatabase **testinfra.TestDatabase) *recorder {
	db := testinfra.StartTestDatabase("pneumatic")
	*testDatabase = db
	gdb := db.DS.GormDB(context.Background())
	Expect(migrations.Migrate(gdb)).To(Succeed())
	persistence.ActiveDataSourceManager = db.DS

	for _, u := range []account.User{
		{ID: starterID, AccountID: accountID, Name: "starter", Status: account.UserStatusActive},
		{ID: performerA, AccountID: accountID, Name: "ann", Status: account.UserStatusActive},
		{ID: performerB, AccountID: accountID, Name: "bob", Status: account.UserStatusActive},
		{ID: groupUserA, AccountID: accountID, Name: "gus", Status: account.UserStatusActive},
		{ID: groupUserB, AccountID: accountID, Name: "gail", Status: account.UserStatusActive},
		{ID: ownerID, AccountID: accountID, Name: "olga", IsAccountOwner: true, Status: account.UserStatusActive},
		{ID: inactiveID, AccountID: accountID, Name: "ivan", Status: account.UserStatusInactive},
		{ID: strangerID, AccountID: accountID, Name: "sam", Status: account.UserStatusActive},
	} {
		user := u
		Expect(gdb.Create(&user).Error).To(BeNil())
	}
	Expect(gdb.Create(&account.Group{ID: groupID, AccountID: accountID, Name: "reviewers"}).Error).To(BeNil())
	Expect(gdb.Create(&account.GroupMember{GroupID: groupID, UserID: groupUserA}).Error).To(BeNil())
	Expect(gdb.Create(&account.GroupMember{GroupID: groupID, UserID: groupUserB}).Error).To(BeNil())

	rec := &recorder{}
	workflow.NowFunc = time.Now
	event.CreateEventFunc = func(ev event.Event, identity *session.Identity, timestamp time.Time, db *gorm.DB) (*event.EventRecord, error) {
		r, err := event.CreateEvent(ev, identity, timestamp, db)
		if err == nil {
			rec.events = append(rec.events, *r)
		}
		return r, err
	}
	event.InvokeHandlersFunc = func(r *event.EventRecord) []event.EventHandleResult {
		rec.handled = append(rec.handled, *r)
		return nil
	}
	notification.EnqueueFunc = func(intent notification.Intent, timestamp time.Time, tx *gorm.DB) (*outbox.Record, error) {
		rec.notifications = append(rec.notifications, intent)
		return notification.Enqueue(intent, timestamp, tx)
	}
	analytics.TrackFunc = func(t analytics.Tracking, tx *gorm.DB) (*outbox.Record, error) {
		rec.trackings = append(rec.trackings, t)
		return analytics.Track(t, tx)
	}
	outbox.DispatchFunc = func(ctx context.Context, ids []types.ID) {
		rec.dispatched = append(rec.dispatched, ids...)
	}
	return rec
}

// createForeigners adds a user and a group of another account.
func createForeigners() {
	gdb := persistence.ActiveDataSourceManager.GormDB(context.Background())
	Expect(gdb.Create(&account.User{ID: foreignUserID, AccountID: otherAccout, Name: "fred",
		Status: account.UserStatusActive}).Error).To(BeNil())
	Expect(gdb.Create(&account.Group{ID: foreignGroupID, AccountID: otherAccout, Name: "partners"}).Error).To(BeNil())
	Expect(gdb.Create(&account.GroupMember{GroupID: foreignGroupID, UserID: foreignUserID}).Error).To(BeNil())
	Expect(gdb.Create(&account.GroupMember{GroupID: groupID, UserID: foreignUserID}).Error).To(BeNil())
}

func teardownEngineTest(testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func userPerformer(uid types.ID) []workflow.PerformerDefinition {
	return []workflow.PerformerDefinition{{Type: domain.PerformerTypeUser, UserID: uid}}
}

// threeTasks builds a workflow whose tasks are performed by performerA, performerB and performerA.
func threeTasks() *workflow.WorkflowCreation {
	return &workflow.WorkflowCreation{
		Name:         "onboarding",
		TemplateName: "employee onboarding",
		Tasks: []workflow.TaskDefinition{
			{Name: "prepare", APIName: "prepare", Performers: userPerformer(performerA)},
			{Name: "review", APIName: "review", Performers: userPerformer(performerB)},
			{Name: "archive", APIName: "archive", Performers: userPerformer(performerA)},
		},
	}
}

func sessionOf(uid types.ID) *session.Session {
	return testinfra.BuildSession(uid, accountID, uid == ownerID)
}

func runWorkflow(c *workflow.WorkflowCreation) *domain.Workflow {
	w, err := workflow.RunWorkflow(c, sessionOf(starterID))
	Expect(err).To(BeNil())
	Expect(w).ToNot(BeNil())
	return w
}

func loadWorkflow(id types.ID) *domain.Workflow {
	w := domain.Workflow{}
	Expect(persistence.ActiveDataSourceManager.GormDB(context.Background()).Where("id = ?", id).First(&w).Error).To(BeNil())
	return &w
}

func loadTask(workflowID types.ID, number int) *domain.Task {
	t := domain.Task{}
	Expect(persistence.ActiveDataSourceManager.GormDB(context.Background()).
		Where("workflow_id = ? AND number = ?", workflowID, number).First(&t).Error).To(BeNil())
	return &t
}

func loadPerformers(taskID types.ID) []domain.TaskPerformer {
	var performers []domain.TaskPerformer
	Expect(persistence.ActiveDataSourceManager.GormDB(context.Background()).
		Where("task_id = ?", taskID).Order("id ASC").Find(&performers).Error).To(BeNil())
	return performers
}

func loadDelays(workflowID types.ID) []domain.Delay {
	var delays []domain.Delay
	Expect(persistence.ActiveDataSourceManager.GormDB(context.Background()).
		Where("workflow_id = ?", workflowID).Order("id ASC").Find(&delays).Error).To(BeNil())
	return delays
}

func complete(w *domain.Workflow, number int, uid types.ID) {
	task := loadTask(w.ID, number)
	Expect(workflow.NewWorkflowActionService(w.ID, sessionOf(uid)).CompleteTaskForUser(task.ID, nil)).To(Succeed())
}
