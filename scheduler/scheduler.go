package scheduler

import (
	"context"
	"pneumatic/domain/workflow"
	"pneumatic/event"
	"pneumatic/outbox"

	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	ResumeExpiredDelaysSpec = "*/30 * * * * *"
	DispatchPendingSpec     = "0 * * * * *"
	SyncPendingEventsSpec   = "30 */5 * * * *"
)

// Register adds the periodic jobs of the engine to crontab. A job still running when its next turn comes is skipped.
func Register(crontab *cron.Cron) error {
	jobs := map[string]func(){
		ResumeExpiredDelaysSpec: resumeExpiredDelays,
		DispatchPendingSpec:     dispatchPending,
		SyncPendingEventsSpec:   syncPendingEvents,
	}
	for spec, job := range jobs {
		wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(job))
		if _, err := crontab.AddJob(spec, wrapped); err != nil {
			return err
		}
	}
	return nil
}

func StartCron() (*cron.Cron, error) {
	crontab := cron.New(cron.WithSeconds())
	if err := Register(crontab); err != nil {
		return nil, err
	}
	crontab.Start()
	return crontab, nil
}

func resumeExpiredDelays() {
	resumed, err := workflow.ResumeExpiredDelaysFunc(context.Background())
	if err != nil {
		logrus.Errorf("resume expired delays: %v", err)
		return
	}
	if resumed > 0 {
		logrus.Infof("resume expired delays: %d workflows resumed", resumed)
	}
}

func dispatchPending() {
	if published := outbox.DispatchPendingFunc(context.Background()); published > 0 {
		logrus.Infof("dispatch pending outbox records: %d records published", published)
	}
}

func syncPendingEvents() {
	event.SyncPendingEventsFunc(context.Background())
}
