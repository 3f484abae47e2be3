package indexlog

import (
	"printflow/idgen"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// IndexLogRecord tracks one requested change of the work index. A record stays pending until the
// document is written, so failed attempts can be replayed.
type IndexLogRecord struct {
	ID       types.ID `json:"id" gorm:"primary_key"`
	WorkID   types.ID `json:"workId" gorm:"index:idx_index_logs_work"`
	WorkName string   `json:"workName" gorm:"size:200"`
	Deletion bool     `json:"deletion"`

	Obsolete    bool       `json:"obsolete"`
	CreateTime  time.Time  `json:"createTime"`
	IndexedTime *time.Time `json:"indexedTime"`
}

func (r *IndexLogRecord) TableName() string {
	return "index_logs"
}

var (
	idWorker = idgen.NewWorker()

	CreateIndexLogFunc        = CreateIndexLog
	FinishIndexLogFunc        = FinishIndexLog
	LoadPendingIndexLogFunc   = LoadPendingIndexLog
	IndexLogPersistCreateFunc = indexLogPersistCreate
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&IndexLogRecord{}).Error
}

func CreateIndexLog(workID types.ID, workName string, deletion bool, tx *gorm.DB) (*IndexLogRecord, error) {
	record := IndexLogRecord{
		ID:         idgen.NextID(idWorker),
		WorkID:     workID,
		WorkName:   workName,
		Deletion:   deletion,
		CreateTime: time.Now(),
	}
	if err := IndexLogPersistCreateFunc(&record, tx); err != nil {
		return nil, err
	}
	return &record, nil
}

func FinishIndexLog(id types.ID, db *gorm.DB) error {
	changes := map[string]interface{}{"indexed_time": time.Now(), "obsolete": false}
	return db.Model(&IndexLogRecord{}).Where("id = ?", id).Updates(changes).Error
}

// LoadPendingIndexLog pages through records that are neither indexed nor superseded, oldest first.
func LoadPendingIndexLog(page, size int, db *gorm.DB) ([]IndexLogRecord, error) {
	indexLogs := []IndexLogRecord{}
	offset := (page - 1) * size
	if offset < 0 {
		offset = 0
	}
	if err := db.Where("indexed_time IS NULL AND obsolete = ?", false).
		Order("create_time ASC, id ASC").Offset(offset).Limit(size).Find(&indexLogs).Error; err != nil {
		return nil, err
	}
	return indexLogs, nil
}

// indexLogPersistCreate supersedes the pending records of the same work before adding the new one.
func indexLogPersistCreate(record *IndexLogRecord, tx *gorm.DB) error {
	if err := tx.Model(&IndexLogRecord{}).Where("work_id = ? AND indexed_time IS NULL", record.WorkID).
		Update("obsolete", true).Error; err != nil {
		return err
	}
	return tx.Create(record).Error
}
