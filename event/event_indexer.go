package event

import (
	"context"
	"pneumatic/es"
	"pneumatic/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

const (
	IndexWorkflowEvents       = "workflow_events"
	indexHandlerIdentifier    = "event-indexer"
	syncPageSize              = 100
	maxSyncPagesPerInvocation = 50
)

var SyncPendingEventsFunc = SyncPendingEvents

// IndexEventHandler copies event records into elasticsearch and flags them synced.
// Records are left unsynced when no elasticsearch client is configured.
func IndexEventHandler(record *EventRecord) *EventHandleResult {
	if es.ActiveESClient == nil {
		return nil
	}
	if err := es.IndexFunc(context.Background(), IndexWorkflowEvents, record.ID.String(), record); err != nil {
		return &EventHandleResult{Success: false, Message: err.Error(), HandlerIdentifier: indexHandlerIdentifier}
	}
	if err := MarkSynced([]types.ID{record.ID}, persistence.ActiveDataSourceManager.GormDB(context.Background())); err != nil {
		return &EventHandleResult{Success: false, Message: err.Error(), HandlerIdentifier: indexHandlerIdentifier}
	}
	return &EventHandleResult{Success: true, HandlerIdentifier: indexHandlerIdentifier}
}

// SyncPendingEvents replays unsynced events through the event handlers.
func SyncPendingEvents(ctx context.Context) {
	if es.ActiveESClient == nil {
		return
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	for page := 0; page < maxSyncPagesPerInvocation; page++ {
		// synced records leave the result set, so the first page is always re-read
		records, err := LoadUnsyncedEvents(1, syncPageSize, db)
		if err != nil {
			logrus.WithError(err).Error("load unsynced events failed")
			return
		}
		if len(records) == 0 {
			return
		}
		failed := 0
		for i := range records {
			for _, r := range InvokeHandlersFunc(&records[i]) {
				if !r.Success {
					failed++
				}
			}
		}
		if failed > 0 {
			logrus.WithField("failed", failed).Warn("event sync incomplete, retry in next round")
			return
		}
	}
}
