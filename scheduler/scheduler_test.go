package scheduler

import (
	"context"
	"errors"
	"pneumatic/domain/workflow"
	"pneumatic/event"
	"pneumatic/outbox"
	"testing"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	crontab := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	assert.Nil(t, Register(crontab))
	assert.Len(t, crontab.Entries(), 3)

	base := time.Date(2026, 3, 2, 9, 0, 10, 0, time.UTC)
	var nexts []time.Time
	for _, e := range crontab.Entries() {
		nexts = append(nexts, e.Schedule.Next(base))
	}
	assert.ElementsMatch(t, []time.Time{
		time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC),
		time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC),
	}, nexts)
}

func TestJobs(t *testing.T) {
	defer func() {
		workflow.ResumeExpiredDelaysFunc = workflow.ResumeExpiredDelays
		outbox.DispatchPendingFunc = outbox.DispatchPending
		event.SyncPendingEventsFunc = event.SyncPendingEvents
	}()

	resumeCalls, dispatchCalls, syncCalls := 0, 0, 0
	workflow.ResumeExpiredDelaysFunc = func(ctx context.Context) (int, error) {
		resumeCalls++
		if resumeCalls > 1 {
			return 0, errors.New("database gone")
		}
		return 2, nil
	}
	outbox.DispatchPendingFunc = func(ctx context.Context) int {
		dispatchCalls++
		return 1
	}
	event.SyncPendingEventsFunc = func(ctx context.Context) {
		syncCalls++
	}

	resumeExpiredDelays()
	resumeExpiredDelays()
	dispatchPending()
	syncPendingEvents()

	assert.Equal(t, 2, resumeCalls)
	assert.Equal(t, 1, dispatchCalls)
	assert.Equal(t, 1, syncCalls)
}
