package indices

import (
	"context"
	"fmt"
	"printflow/bizerror"
	"printflow/client/es"
	"printflow/domain/work"
	"printflow/indices/indexlog"
	"printflow/infra/metrics"
	"printflow/movement"
	"printflow/persistence"
	"printflow/session"
	"sync"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	WorkIndexHandlerName = "workIndexer"

	lock    sync.Mutex
	running bool

	SyncBatchSize  = 500
	maxFailedPages = 10
	// syncPageLimiter paces full syncs so they do not starve request traffic.
	syncPageLimiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 1)

	IndicesFullSyncFunc         = IndicesFullSync
	ScheduleNewSyncRunFunc      = ScheduleNewSyncRun
	IndexlogRecoveryRoutineFunc = IndexlogRecoveryRoutine
	LoadWorksFunc               = loadWorks
)

func loadWorks(page, size int) ([]work.Work, error) {
	return work.LoadWorks(page, size, persistence.ActiveDataSourceManager.GormDB(context.Background()))
}

// ScheduleNewSyncRun starts a full sync in the background unless one is already running.
func ScheduleNewSyncRun(s *session.Session) (bool, error) {
	if !s.IsSuperuser {
		return false, bizerror.ErrForbidden
	}

	lock.Lock()
	if running {
		lock.Unlock()
		return false, nil
	}
	running = true
	lock.Unlock()

	waitRunning := sync.WaitGroup{}
	waitRunning.Add(1)
	go func() {
		waitRunning.Done()
		defer func() {
			lock.Lock()
			running = false
			lock.Unlock()
		}()
		if err := IndicesFullSyncFunc(); err != nil {
			logrus.Errorf("indices fully sync: %v", err)
		}
	}()
	waitRunning.Wait()
	return true, nil
}

func IndicesFullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			if e, ok := ret.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
		metrics.Default.ObserveIndexRun(err == nil)
	}()
	if !es.Enabled() {
		return es.ErrClientDisabled
	}

	ctx := context.Background()
	failures := 0
	for page := 1; ; page++ {
		if err := syncPageLimiter.Wait(ctx); err != nil {
			return err
		}
		works, err := LoadWorksFunc(page, SyncBatchSize)
		if err != nil {
			logrus.Warnf("indices fully sync: error on retrieve works(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
			failures++
			if failures > maxFailedPages {
				return fmt.Errorf("indices fully sync aborted after %d failed pages: %w", failures, err)
			}
			continue
		}
		if len(works) == 0 {
			break
		}
		if err := IndexWorks(ctx, works); err != nil {
			logrus.Warnf("indices fully sync: error on index works(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
			failures++
		}
	}
	logrus.Infof("indices fully sync: there are no more work to index")
	if failures > 0 {
		return fmt.Errorf("indices fully sync finished with %d failed pages", failures)
	}
	return nil
}

// IndexWorkMovementHandle keeps the document of the moved work in line with the database.
func IndexWorkMovementHandle(m *movement.Movement) *movement.HandleResult {
	if !es.Enabled() || m.WorkID == nil {
		return nil
	}
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	record, err := indexlog.CreateIndexLogFunc(*m.WorkID, m.WorkName, m.Action == movement.ActionDelete, db)
	if err != nil {
		return &movement.HandleResult{Message: fmt.Sprintf("create index log of work %s, %v", *m.WorkID, err),
			HandlerIdentifier: WorkIndexHandlerName}
	}
	if err := applyIndexLog(context.Background(), record); err != nil {
		return &movement.HandleResult{Message: fmt.Sprintf("index work %s, %v", *m.WorkID, err),
			HandlerIdentifier: WorkIndexHandlerName}
	}
	return &movement.HandleResult{Success: true, HandlerIdentifier: WorkIndexHandlerName}
}

// ReindexShiftedWorks refreshes the documents of works whose priority was rewritten
// without a movement of their own. Failed documents stay pending in the index log.
func ReindexShiftedWorks(ids []types.ID) {
	if !es.Enabled() || len(ids) == 0 {
		return
	}
	ctx := context.Background()
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	works, err := work.FindWorks(ids, db)
	if err != nil {
		logrus.Warnf("reindex shifted works: load works: %v", err)
		return
	}

	records := make([]*indexlog.IndexLogRecord, 0, len(works))
	for _, w := range works {
		record, err := indexlog.CreateIndexLogFunc(w.ID, w.Name, false, db)
		if err != nil {
			logrus.Warnf("reindex shifted works: create index log of work %s: %v", w.ID, err)
			return
		}
		records = append(records, record)
	}
	if err := IndexWorks(ctx, works); err != nil {
		logrus.Warnf("reindex shifted works: %v", err)
		return
	}
	for _, record := range records {
		if err := indexlog.FinishIndexLogFunc(record.ID, db); err != nil {
			logrus.Warnf("reindex shifted works: finish index log %s: %v", record.ID, err)
		}
	}
}

// applyIndexLog writes or removes the document and marks the log finished.
func applyIndexLog(ctx context.Context, record *indexlog.IndexLogRecord) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	works := []work.Work{}
	if !record.Deletion {
		found, err := work.FindWorks([]types.ID{record.WorkID}, db)
		if err != nil {
			return err
		}
		works = found
	}

	if len(works) == 0 {
		if err := es.DeleteDocumentByIdFunc(ctx, WorkIndexName, record.WorkID); err != nil {
			return err
		}
	} else if err := IndexWorks(ctx, works); err != nil {
		return err
	}
	return indexlog.FinishIndexLogFunc(record.ID, db)
}

// IndexlogRecoveryRoutine replays the pending index logs in the background.
func IndexlogRecoveryRoutine(s *session.Session) error {
	if !s.IsSuperuser {
		return bizerror.ErrForbidden
	}
	if !es.Enabled() {
		return es.ErrClientDisabled
	}
	go recoverPendingIndexLogs(context.Background())
	return nil
}

func recoverPendingIndexLogs(ctx context.Context) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	// collect first, applied records leave the pending set
	pending := []indexlog.IndexLogRecord{}
	for page := 1; ; page++ {
		logs, err := indexlog.LoadPendingIndexLogFunc(page, SyncBatchSize, db)
		if err != nil {
			logrus.Warnf("index log recovery: load pending logs: %v", err)
			return
		}
		if len(logs) == 0 {
			break
		}
		pending = append(pending, logs...)
	}

	failed := 0
	for i := range pending {
		if err := applyIndexLog(ctx, &pending[i]); err != nil {
			logrus.Warnf("index log recovery: work %s: %v", pending[i].WorkID, err)
			failed++
		}
	}
	logrus.Infof("index log recovery: %d recovered, %d failed", len(pending)-failed, failed)
}
