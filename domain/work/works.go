package work

import (
	"errors"
	"printflow/bizerror"
	"printflow/domain/option"
	"printflow/domain/permission"
	"printflow/idgen"
	"printflow/movement"
	"printflow/persistence"
	"printflow/session"
	"strings"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const DefaultPageSize = 100

var (
	workIdWorker = idgen.NewWorker()

	CreateWorkFunc          = CreateWork
	UpdateWorkFunc          = UpdateWork
	DeleteWorkFunc          = DeleteWork
	DetailWorkFunc          = DetailWork
	QueryWorksFunc          = QueryWorks
	AddSubListItemFunc      = AddSubListItem
	RemoveSubListItemFunc   = RemoveSubListItem
	SetPriorityFunc         = SetPriority
	ReorderBulkFunc         = ReorderBulk
	NormalizePrioritiesFunc = NormalizePriorities
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Work{}, &WorkOrderLock{}).Error; err != nil {
		return err
	}
	return db.Where(WorkOrderLock{ID: 1}).FirstOrCreate(&WorkOrderLock{ID: 1}).Error
}

func CreateWork(p Payload, s *session.Session) (map[string]interface{}, error) {
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	if !g.CanCreateWork() {
		return nil, bizerror.ErrForbidden
	}
	if err := g.ValidateWritable(p.Fields()...); err != nil {
		return nil, err
	}
	if !p.Has("name") {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("name: is required")}
	}
	position, positioned, err := p.position()
	if err != nil {
		return nil, err
	}

	now := stampTime()
	w := Work{ID: idgen.NextID(workIdWorker), CreateTime: now, UpdateTime: now,
		Links: Links{}, Confirmations: Confirmations{}, PrintingLocations: PrintingLocations{}}
	if err := p.apply(&w, newStamp(s.Identity)); err != nil {
		return nil, err
	}
	if err := checkPrintingController(&w, p); err != nil {
		return nil, err
	}
	if w.PrintingControl {
		w.PrintingControlDate = &now
	}

	var rel *relations
	var record *movement.Movement
	var shifted []types.ID
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := p.checkReferences(&w, tx); err != nil {
			return err
		}
		if err := lockOrdering(tx); err != nil {
			return err
		}
		last, err := maxPriority(tx)
		if err != nil {
			return err
		}
		w.Priority = last + 1
		if err := tx.Create(&w).Error; err != nil {
			return err
		}
		if positioned && position < w.Priority {
			if !g.CanReorderWork() {
				return bizerror.ErrForbidden
			}
			moved, err := moveTo(tx, w.ID, position)
			if err != nil {
				return err
			}
			shifted = withoutID(moved.changed, w.ID)
			if err := tx.Where("id = ?", w.ID).First(&w).Error; err != nil {
				return err
			}
		}

		if rel, err = loadRelations(tx, w); err != nil {
			return err
		}
		record, err = movement.LogWorkAction(&s.Identity, w.ID, w.Name, movement.ActionCreate, nil, nil, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	movement.Publish(record)
	publishShifted(shifted)

	return g.FilterReadable(rel.represent(&w)), nil
}

func UpdateWork(id types.ID, p Payload, s *session.Session) (map[string]interface{}, error) {
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	if err := g.ValidateWritable(p.Fields()...); err != nil {
		return nil, err
	}
	position, positioned, err := p.position()
	if err != nil {
		return nil, err
	}

	var w Work
	var rel *relations
	var record *movement.Movement
	var shifted []types.ID
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		if positioned {
			if err := lockOrdering(tx); err != nil {
				return err
			}
		}
		old, err := findWork(tx, id)
		if err != nil {
			return err
		}
		w = *old
		if err := p.apply(&w, newStamp(s.Identity)); err != nil {
			return err
		}
		now := stampTime()
		if p.Has("printing_control") {
			if w.PrintingControl && !old.PrintingControl {
				w.PrintingControlDate = &now
			} else if !w.PrintingControl {
				if p.Has("printing_controller") && w.PrintingControllerID != nil {
					return controllerWithoutControlError()
				}
				w.PrintingControllerID = nil
				w.PrintingControlDate = nil
			}
		}
		if err := checkPrintingController(&w, p); err != nil {
			return err
		}
		if err := p.checkReferences(&w, tx); err != nil {
			return err
		}

		w.Priority = old.Priority
		w.UpdateTime = now
		if err := tx.Save(&w).Error; err != nil {
			return err
		}
		if positioned && position != old.Priority {
			if !g.CanReorderWork() {
				return bizerror.ErrForbidden
			}
			moved, err := moveTo(tx, w.ID, position)
			if err != nil {
				return err
			}
			shifted = withoutID(moved.changed, w.ID)
			if err := tx.Model(&Work{}).Where("id = ?", w.ID).Select("priority").Row().Scan(&w.Priority); err != nil {
				return err
			}
		}

		if rel, err = loadRelations(tx, *old, w); err != nil {
			return err
		}
		oldSnapshot, newSnapshot := rel.snapshot(old), rel.snapshot(&w)
		if movement.ComputeDiff(w.Name, oldSnapshot, newSnapshot).Changes == nil {
			return nil
		}
		record, err = movement.LogWorkAction(&s.Identity, w.ID, w.Name, movement.ActionUpdate, oldSnapshot, newSnapshot, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	movement.Publish(record)
	publishShifted(shifted)

	return g.FilterReadable(rel.represent(&w)), nil
}

// DeleteWork removes the work, keeps its movements detached and closes the priority gap.
func DeleteWork(id types.ID, s *session.Session) error {
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return err
	}
	if !g.CanDeleteWork() {
		return bizerror.ErrForbidden
	}

	var record *movement.Movement
	var shifted []types.ID
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := lockOrdering(tx); err != nil {
			return err
		}
		w, err := findWork(tx, id)
		if err != nil {
			return err
		}
		record, err = movement.LogWorkAction(&s.Identity, w.ID, w.Name, movement.ActionDelete, nil, nil, tx)
		if err != nil {
			return err
		}
		if err := movement.DetachWork(w.ID, tx); err != nil {
			return err
		}
		if err := tx.Delete(&Work{}, "id = ?", w.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&Work{}).Where("priority > ?", w.Priority).Pluck("id", &shifted).Error; err != nil {
			return err
		}
		return tx.Model(&Work{}).Where("priority > ?", w.Priority).
			UpdateColumn("priority", gorm.Expr("priority - 1")).Error
	})
	if err != nil {
		return err
	}
	movement.Publish(record)
	publishShifted(shifted)
	return nil
}

func DetailWork(id types.ID, s *session.Session) (map[string]interface{}, error) {
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	w, err := findWork(db, id)
	if err != nil {
		return nil, err
	}
	rel, err := loadRelations(db, *w)
	if err != nil {
		return nil, err
	}
	return g.FilterReadable(rel.represent(w)), nil
}

func QueryWorks(q *WorkQuery, s *session.Session) (*WorkPage, error) {
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	scope := db.Model(&Work{})
	if name := strings.TrimSpace(q.Name); name != "" {
		scope = scope.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	switch q.Status {
	case StatusCompleted:
		scope = scope.Where("stock_entry = ?", true)
	case StatusPrinting:
		scope = scope.Where("stock_entry = ? AND printing_confirm = ?", false, true)
	case StatusWaiting:
		scope = scope.Where("stock_entry = ? AND printing_confirm = ?", false, false)
	}
	if q.CategoryID != 0 {
		scope = scope.Where("category_id = ?", q.CategoryID)
	}

	result := WorkPage{Items: []map[string]interface{}{}}
	if err := scope.Count(&result.Total).Error; err != nil {
		return nil, err
	}
	var works []Work
	if err := scope.Order("priority ASC, create_time DESC").Offset((page - 1) * size).Limit(size).Find(&works).Error; err != nil {
		return nil, err
	}
	items, err := Represent(works, db)
	if err != nil {
		return nil, err
	}
	result.Items = g.FilterReadableList(items)
	return &result, nil
}

// Represent renders unfiltered client views of works in their given order.
func Represent(works []Work, db *gorm.DB) ([]map[string]interface{}, error) {
	rel, err := loadRelations(db, works...)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]interface{}, 0, len(works))
	for i := range works {
		items = append(items, rel.represent(&works[i]))
	}
	return items, nil
}

// FindWorks loads works by id. Unknown ids are absent from the result.
func FindWorks(ids []types.ID, db *gorm.DB) ([]Work, error) {
	works := []Work{}
	if len(ids) == 0 {
		return works, nil
	}
	if err := db.Where("id IN (?)", ids).Find(&works).Error; err != nil {
		return nil, err
	}
	return works, nil
}

// LoadWorks pages through all works in id order.
func LoadWorks(page, size int, db *gorm.DB) ([]Work, error) {
	works := []Work{}
	offset := (page - 1) * size
	if offset < 0 {
		offset = 0
	}
	if err := db.Order("id ASC").Offset(offset).Limit(size).Find(&works).Error; err != nil {
		return nil, err
	}
	return works, nil
}

// AddSubListItem appends an item to one of the JSON lists of a work and returns the updated list.
func AddSubListItem(workID types.ID, listName string, item []byte, s *session.Session) (interface{}, error) {
	return changeSubList(workID, listName, s, func(l subList, w *Work) error {
		return l.add(w, item, newStamp(s.Identity))
	})
}

// RemoveSubListItem removes the items matching key. An absent key leaves the work untouched.
func RemoveSubListItem(workID types.ID, listName string, key string, s *session.Session) (interface{}, error) {
	return changeSubList(workID, listName, s, func(l subList, w *Work) error {
		if key == "" {
			return &bizerror.ErrBadParam{Cause: errors.New(l.key + " is required")}
		}
		if !l.remove(w, key) {
			return &bizerror.ErrItemNotFound{List: listName, Key: key}
		}
		return nil
	})
}

func changeSubList(workID types.ID, listName string, s *session.Session, change func(l subList, w *Work) error) (interface{}, error) {
	l, err := lookupSubList(listName)
	if err != nil {
		return nil, err
	}
	ok, err := permission.CheckColumnPermission(s, l.column, permission.ModeWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &bizerror.ErrFieldsNotWritable{Fields: []string{l.column}}
	}

	var items interface{}
	var record *movement.Movement
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		now := stampTime()
		// the update takes the row lock before the read
		res := tx.Model(&Work{}).Where("id = ?", workID).UpdateColumn("update_time", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		w, err := findWork(tx, workID)
		if err != nil {
			return err
		}
		before := l.count(w)
		if err := change(l, w); err != nil {
			return err
		}
		if err := tx.Model(&Work{}).Where("id = ?", workID).UpdateColumn(l.column, l.items(w)).Error; err != nil {
			return err
		}
		countField := l.column + "_count"
		record, err = movement.LogWorkAction(&s.Identity, w.ID, w.Name, movement.ActionUpdate,
			movement.Snapshot{countField: before}, movement.Snapshot{countField: l.count(w)}, tx)
		items = l.items(w)
		return err
	})
	if err != nil {
		return nil, err
	}
	movement.Publish(record)
	return items, nil
}

// DetachUser clears the user references of works when the user is deleted.
func DetachUser(userID types.ID, tx *gorm.DB) error {
	if err := tx.Model(&Work{}).Where("designer_id = ?", userID).UpdateColumn("designer_id", gorm.Expr("NULL")).Error; err != nil {
		return err
	}
	return tx.Model(&Work{}).Where("printing_controller_id = ?", userID).
		UpdateColumn("printing_controller_id", gorm.Expr("NULL")).Error
}

// DetachOption clears the references to a deleted dropdown option.
func DetachOption(kind option.Kind, id types.ID, tx *gorm.DB) error {
	res := tx.Model(&Work{}).Where(kind.WorkColumn+" = ?", id).UpdateColumn(kind.WorkColumn, gorm.Expr("NULL"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		logrus.Infof("detached %d works from %s %s", res.RowsAffected, kind.Name, id)
	}
	return nil
}

func findWork(db *gorm.DB, id types.ID) (*Work, error) {
	w := Work{}
	if err := db.Where("id = ?", id).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func checkPrintingController(w *Work, p Payload) error {
	if !w.PrintingControl && w.PrintingControllerID != nil && p.Has("printing_controller") {
		return controllerWithoutControlError()
	}
	return nil
}

func controllerWithoutControlError() error {
	return &bizerror.ErrBadParam{Cause: errors.New("printing_controller: cannot be assigned while printing_control is off")}
}
