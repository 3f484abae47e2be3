package indexlog

import (
	"context"
	"errors"
	"printflow/testinfra"
	"testing"

	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
)

func TestCreateIndexLog(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should return error when failed to persist index log", func(t *testing.T) {
		defer func() { IndexLogPersistCreateFunc = indexLogPersistCreate }()
		testErr := errors.New("test error")
		IndexLogPersistCreateFunc = func(record *IndexLogRecord, tx *gorm.DB) error {
			return testErr
		}
		ret, err := CreateIndexLog(1234, "Poster", true, &gorm.DB{})
		Expect(ret).To(BeNil())
		Expect(err).To(Equal(testErr))
	})
}

func TestIndexLogPersistence(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should keep only the latest pending record of a work", func(t *testing.T) {
		testDatabase := testinfra.StartTestDatabase("indexlog")
		defer testinfra.StopTestDatabase(testDatabase)
		db := testDatabase.DS.GormDB(context.Background())
		Expect(Migrate(db)).To(BeNil())

		first, err := CreateIndexLog(1, "Poster", false, db)
		Expect(err).To(BeNil())
		second, err := CreateIndexLog(1, "Poster A3", false, db)
		Expect(err).To(BeNil())
		other, err := CreateIndexLog(2, "Flyer", true, db)
		Expect(err).To(BeNil())

		pending, err := LoadPendingIndexLog(1, 10, db)
		Expect(err).To(BeNil())
		Expect(len(pending)).To(Equal(2))
		Expect(pending[0].ID).To(Equal(second.ID))
		Expect(pending[1].ID).To(Equal(other.ID))
		Expect(pending[1].Deletion).To(BeTrue())

		Expect(FinishIndexLog(second.ID, db)).To(BeNil())
		pending, err = LoadPendingIndexLog(1, 10, db)
		Expect(err).To(BeNil())
		Expect(len(pending)).To(Equal(1))
		Expect(pending[0].ID).To(Equal(other.ID))

		stale := IndexLogRecord{}
		Expect(db.Where("id = ?", first.ID).First(&stale).Error).To(BeNil())
		Expect(stale.Obsolete).To(BeTrue())
		Expect(stale.IndexedTime).To(BeNil())
	})
}
