package indices_test

import (
	"context"
	"errors"
	"printflow/account"
	"printflow/bizerror"
	"printflow/client/es"
	"printflow/domain/option"
	"printflow/domain/work"
	"printflow/indices"
	"printflow/indices/indexlog"
	"printflow/movement"
	"printflow/persistence"
	"printflow/testinfra"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

type indexResult struct {
	index string
	id    types.ID
}

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartTestDatabase("indices")
	*testDatabase = db
	gdb := db.DS.GormDB(context.Background())
	Expect(gdb.AutoMigrate(&account.User{}).Error).To(BeNil())
	Expect(option.Migrate(gdb)).To(BeNil())
	Expect(work.Migrate(gdb)).To(BeNil())
	Expect(indexlog.Migrate(gdb)).To(BeNil())
	persistence.ActiveDataSourceManager = db.DS

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{"http://127.0.0.1:9200"}})
	Expect(err).To(BeNil())
	es.ActiveESClient = client
}

func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	es.ActiveESClient = nil
	es.IndexFunc = es.Index
	es.DeleteDocumentByIdFunc = es.DeleteDocumentById
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func pagedWorks(total int, failPage int) func(page, size int) ([]work.Work, error) {
	return func(page, size int) ([]work.Work, error) {
		if page == failPage {
			return nil, errors.New("error on load works")
		}
		works := []work.Work{}
		for cur := size * (page - 1); cur < total && len(works) < size; cur++ {
			works = append(works, work.Work{ID: types.ID(cur + 1), Name: "work"})
		}
		return works, nil
	}
}

func TestIndexWorkMovementHandle(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should ignore movements when indexing is disabled", func(t *testing.T) {
		es.ActiveESClient = nil
		wid := types.ID(100)
		Expect(indices.IndexWorkMovementHandle(&movement.Movement{WorkID: &wid, Action: movement.ActionCreate})).To(BeNil())
	})

	t.Run("should delete the document of a deleted work", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		deleted := []types.ID{}
		es.DeleteDocumentByIdFunc = func(ctx context.Context, index string, id types.ID) error {
			deleted = append(deleted, id)
			return nil
		}
		wid := types.ID(100)
		result := indices.IndexWorkMovementHandle(&movement.Movement{WorkID: &wid, WorkName: "Poster", Action: movement.ActionDelete})
		Expect(*result).To(Equal(movement.HandleResult{Success: true, HandlerIdentifier: indices.WorkIndexHandlerName}))
		Expect(deleted).To(Equal([]types.ID{100}))

		pending, err := indexlog.LoadPendingIndexLog(1, 10, persistence.ActiveDataSourceManager.GormDB(context.Background()))
		Expect(err).To(BeNil())
		Expect(pending).To(BeEmpty())
	})

	t.Run("should index the current row and keep the log pending on failure", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())
		Expect(db.Create(&work.Work{ID: 100, Name: "Poster", Priority: 1, CreateTime: time.Now(), UpdateTime: time.Now()}).Error).To(BeNil())

		docs := []interface{}{}
		es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			docs = append(docs, doc)
			return nil
		}
		wid := types.ID(100)
		result := indices.IndexWorkMovementHandle(&movement.Movement{WorkID: &wid, WorkName: "Poster", Action: movement.ActionUpdate})
		Expect(result.Success).To(BeTrue())
		Expect(len(docs)).To(Equal(1))
		Expect(docs[0]).To(HaveKeyWithValue("name", "Poster"))

		es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			return errors.New("error on index document")
		}
		result = indices.IndexWorkMovementHandle(&movement.Movement{WorkID: &wid, WorkName: "Poster", Action: movement.ActionUpdate})
		Expect(*result).To(Equal(movement.HandleResult{HandlerIdentifier: indices.WorkIndexHandlerName,
			Message: "index work 100, map[100:error on index document]"}))

		pending, err := indexlog.LoadPendingIndexLog(1, 10, db)
		Expect(err).To(BeNil())
		Expect(len(pending)).To(Equal(1))
		Expect(pending[0].WorkID).To(Equal(types.ID(100)))
	})
}

func TestIndicesFullSync(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	defer func() { indices.SyncBatchSize = 500 }()

	t.Run("should recover panic to error", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		raisedErr := errors.New("error on load works")
		indices.LoadWorksFunc = func(page, size int) ([]work.Work, error) {
			panic(raisedErr)
		}
		Expect(indices.IndicesFullSync()).To(Equal(raisedErr))

		indices.LoadWorksFunc = func(page, size int) ([]work.Work, error) {
			panic("error on load works")
		}
		Expect(indices.IndicesFullSync()).To(Equal(errors.New("error on indices full sync: error on load works")))
	})

	t.Run("should index all works page by page", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		docs := []indexResult{}
		es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			docs = append(docs, indexResult{index, id})
			return nil
		}
		indices.LoadWorksFunc = pagedWorks(5, 0)
		indices.SyncBatchSize = 2
		Expect(indices.IndicesFullSync()).To(BeNil())

		Expect(docs).To(Equal([]indexResult{{"works", 1}, {"works", 2}, {"works", 3}, {"works", 4}, {"works", 5}}))
	})

	t.Run("should continue with the next page when a page fails", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		docs := []indexResult{}
		es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			docs = append(docs, indexResult{index, id})
			return nil
		}
		indices.LoadWorksFunc = pagedWorks(5, 2)
		indices.SyncBatchSize = 2
		Expect(indices.IndicesFullSync()).To(MatchError("indices fully sync finished with 1 failed pages"))
		Expect(docs).To(Equal([]indexResult{{"works", 1}, {"works", 2}, {"works", 5}}))
	})

	t.Run("should refuse to run when indexing is disabled", func(t *testing.T) {
		es.ActiveESClient = nil
		Expect(indices.IndicesFullSync()).To(Equal(es.ErrClientDisabled))
	})
}

func TestScheduleNewSyncRun(t *testing.T) {
	RegisterTestingT(t)
	defer func() { indices.IndicesFullSyncFunc = indices.IndicesFullSync }()

	t.Run("should be restricted to superusers", func(t *testing.T) {
		_, err := indices.ScheduleNewSyncRun(testinfra.BuildStaffSession(2, "staff"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should not start a second run while one is running", func(t *testing.T) {
		release := make(chan struct{})
		indices.IndicesFullSyncFunc = func() error {
			<-release
			return nil
		}
		admin := testinfra.BuildSuperuserSession(1, "admin")

		started, err := indices.ScheduleNewSyncRun(admin)
		Expect(err).To(BeNil())
		Expect(started).To(BeTrue())

		started, err = indices.ScheduleNewSyncRun(admin)
		Expect(err).To(BeNil())
		Expect(started).To(BeFalse())

		close(release)
		Eventually(func() bool {
			started, _ := indices.ScheduleNewSyncRun(admin)
			return started
		}).Should(BeTrue())
	})
}

func TestReindexShiftedWorks(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should refresh the priority of every shifted work", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())
		for i, name := range []string{"A", "B", "C"} {
			Expect(db.Create(&work.Work{ID: types.ID(i + 1), Name: name, Priority: i + 1,
				CreateTime: time.Now(), UpdateTime: time.Now()}).Error).To(BeNil())
		}

		indexed := map[types.ID]interface{}{}
		es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			Expect(index).To(Equal(indices.WorkIndexName))
			indexed[id] = doc.(map[string]interface{})["priority"]
			return nil
		}
		indices.ReindexShiftedWorks([]types.ID{2, 3, 404})
		Expect(indexed).To(Equal(map[types.ID]interface{}{2: 2, 3: 3}))

		pending, err := indexlog.LoadPendingIndexLog(1, 10, db)
		Expect(err).To(BeNil())
		Expect(pending).To(BeEmpty())
	})

	t.Run("should leave failed documents pending for recovery", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())
		Expect(db.Create(&work.Work{ID: 7, Name: "Poster", Priority: 1, CreateTime: time.Now(), UpdateTime: time.Now()}).Error).To(BeNil())

		es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			return errors.New("error on index document")
		}
		indices.ReindexShiftedWorks([]types.ID{7})

		pending, err := indexlog.LoadPendingIndexLog(1, 10, db)
		Expect(err).To(BeNil())
		Expect(len(pending)).To(Equal(1))
		Expect(pending[0].WorkID).To(Equal(types.ID(7)))
	})

	t.Run("should do nothing when indexing is disabled", func(t *testing.T) {
		es.ActiveESClient = nil
		called := false
		es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			called = true
			return nil
		}
		defer func() { es.IndexFunc = es.Index }()
		indices.ReindexShiftedWorks([]types.ID{1})
		Expect(called).To(BeFalse())
	})
}
