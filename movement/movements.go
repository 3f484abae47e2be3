package movement

import (
	"printflow/bizerror"
	"printflow/idgen"
	"printflow/persistence"
	"printflow/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

const DefaultPageSize = 50

var (
	movementIdWorker = idgen.NewWorker()

	MovementPersistCreateFunc = movementPersistCreate
	QueryMovementsFunc        = QueryMovements
)

func movementPersistCreate(record *Movement, db *gorm.DB) error {
	return db.Create(record).Error
}

// LogWorkAction records an action on a work inside the caller's transaction. Old and new are only
// compared for updates. The returned movement must be passed to Publish once the transaction commits.
// A nil identity records nothing.
func LogWorkAction(identity *session.Identity, workID types.ID, workName, action string,
	old, new Snapshot, tx *gorm.DB) (*Movement, error) {
	if identity == nil {
		return nil, nil
	}

	record := Movement{
		ID:           idgen.NextID(movementIdWorker),
		UserFullname: identity.DisplayName(),
		WorkName:     workName,
		Action:       action,
		CreateTime:   time.Now(),
	}
	if identity.ID != 0 {
		uid := identity.ID
		record.UserID = &uid
	}
	if workID != 0 {
		wid := workID
		record.WorkID = &wid
	}

	switch action {
	case ActionCreate:
		record.Description = CreatedDescription(workName)
	case ActionDelete:
		record.Description = DeletedDescription(workName)
	default:
		diff := ComputeDiff(workName, old, new)
		record.Description = diff.Description
		record.Changes = diff.Changes
	}

	if err := MovementPersistCreateFunc(&record, tx); err != nil {
		return nil, err
	}
	return &record, nil
}

func QueryMovements(q *MovementQuery, s *session.Session) (*MovementPage, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Model(&Movement{})
	if q.WorkID != 0 {
		db = db.Where("work_id = ?", q.WorkID)
	}
	if q.Action != "" {
		db = db.Where("action = ?", q.Action)
	}

	result := MovementPage{Items: []MovementView{}}
	if err := db.Count(&result.Total).Error; err != nil {
		return nil, err
	}
	var records []Movement
	if err := db.Order("create_time DESC, id DESC").Offset((page - 1) * size).Limit(size).Find(&records).Error; err != nil {
		return nil, err
	}
	for _, r := range records {
		result.Items = append(result.Items, r.View())
	}
	return &result, nil
}

// DetachUser keeps the movements of a deleted user, identified by the snapshotted name only.
func DetachUser(userID types.ID, tx *gorm.DB) error {
	return tx.Model(&Movement{}).Where("user_id = ?", userID).Update("user_id", gorm.Expr("NULL")).Error
}

// DetachWork keeps the movements of a deleted work, identified by the snapshotted name only.
func DetachWork(workID types.ID, tx *gorm.DB) error {
	return tx.Model(&Movement{}).Where("work_id = ?", workID).Update("work_id", gorm.Expr("NULL")).Error
}
