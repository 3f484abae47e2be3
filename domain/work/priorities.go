package work

import (
	"errors"
	"fmt"
	"printflow/bizerror"
	"printflow/domain/permission"
	"printflow/infra/metrics"
	"printflow/movement"
	"printflow/persistence"
	"printflow/session"
	"sort"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

// PriorityShiftHandlers receive the ids of works whose priority a committed transaction rewrote.
var PriorityShiftHandlers []func(ids []types.ID)

func publishShifted(ids []types.ID) {
	if len(ids) == 0 {
		return
	}
	for _, handle := range PriorityShiftHandlers {
		handle(ids)
	}
}

type orderedWork struct {
	ID         types.ID
	Name       string
	Priority   int
	CreateTime time.Time
}

// lockOrdering must be the first statement of every transaction that changes priorities.
// The row lock serialises them on MySQL; SQLite connections begin immediate transactions.
func lockOrdering(tx *gorm.DB) error {
	res := tx.Exec("UPDATE work_order_locks SET version = version + 1 WHERE id = 1")
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errors.New("work order lock row is missing")
	}
	return nil
}

func maxPriority(tx *gorm.DB) (int, error) {
	var last *int
	if err := tx.Model(&Work{}).Select("MAX(priority)").Row().Scan(&last); err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return *last, nil
}

// loadOrdering reads every work in priority order, newest first among equal priorities.
func loadOrdering(tx *gorm.DB) ([]orderedWork, error) {
	var works []orderedWork
	err := tx.Model(&Work{}).Select("id, name, priority, create_time").
		Order("priority ASC, create_time DESC, id ASC").Scan(&works).Error
	return works, err
}

// renumber writes positions 1..N in the given order, touching only rows whose priority differs.
// It returns the ids of the rewritten rows.
func renumber(tx *gorm.DB, works []orderedWork) ([]types.ID, error) {
	changed := []types.ID{}
	for i := range works {
		want := i + 1
		if works[i].Priority == want {
			continue
		}
		if err := tx.Model(&Work{}).Where("id = ?", works[i].ID).UpdateColumn("priority", want).Error; err != nil {
			return changed, err
		}
		works[i].Priority = want
		changed = append(changed, works[i].ID)
	}
	return changed, nil
}

type moveResult struct {
	oldPriority int
	newPriority int
	changed     []types.ID
	ordering    []orderedWork
}

// moveTo places a work at the position and renumbers the sequence. The caller holds the ordering lock.
func moveTo(tx *gorm.DB, id types.ID, position int) (*moveResult, error) {
	works, err := loadOrdering(tx)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, w := range works {
		if w.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, gorm.ErrRecordNotFound
	}

	target := works[index]
	rest := append(works[:index:index], works[index+1:]...)
	at := position - 1
	if at > len(rest) {
		at = len(rest)
	}
	reordered := make([]orderedWork, 0, len(works))
	reordered = append(reordered, rest[:at]...)
	reordered = append(reordered, target)
	reordered = append(reordered, rest[at:]...)

	changed, err := renumber(tx, reordered)
	if err != nil {
		return nil, err
	}
	return &moveResult{oldPriority: target.Priority, newPriority: at + 1, changed: changed, ordering: reordered}, nil
}

// SetPriority moves one work to a 1-based position in the global order.
func SetPriority(id types.ID, position int, s *session.Session) (*ReorderResult, error) {
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	if !g.CanReorderWork() {
		return nil, bizerror.ErrForbidden
	}
	if position < 1 {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("position must not be less than 1")}
	}

	var moved *moveResult
	var record *movement.Movement
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := lockOrdering(tx); err != nil {
			return err
		}
		current, err := findWork(tx, id)
		if err != nil {
			return err
		}
		if current.Priority == position {
			return nil
		}
		if moved, err = moveTo(tx, id, position); err != nil {
			return err
		}
		if moved.oldPriority == moved.newPriority {
			return nil
		}
		record, err = movement.LogWorkAction(&s.Identity, id, current.Name, movement.ActionUpdate,
			movement.Snapshot{"priority": moved.oldPriority}, movement.Snapshot{"priority": moved.newPriority}, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if moved == nil {
		return &ReorderResult{Changed: false, Skipped: []types.ID{}, Ordering: []PriorityEntry{}}, nil
	}
	movement.Publish(record)
	publishShifted(withoutID(moved.changed, id))
	metrics.Default.ObserveReorder("set_priority", len(moved.changed))

	return &ReorderResult{Changed: len(moved.changed) > 0, Updated: len(moved.changed), Skipped: []types.ID{},
		Ordering: entries(moved.ordering)}, nil
}

// ReorderBulk applies caller-assigned priorities in one transaction. Unknown ids are skipped and
// reported; the sequence is made dense again before commit, assigned works winning ties.
func ReorderBulk(items []ReorderItem, s *session.Session) (*ReorderResult, error) {
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	if !g.CanReorderWork() {
		return nil, bizerror.ErrForbidden
	}
	if len(items) == 0 {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("items must not be empty")}
	}
	assigned := map[types.ID]int{}
	for _, item := range items {
		if item.Priority < 1 {
			return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("priority of work %s must not be less than 1", item.ID)}
		}
		if _, dup := assigned[item.ID]; dup {
			return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("work %s is listed more than once", item.ID)}
		}
		assigned[item.ID] = item.Priority
	}

	result := ReorderResult{Skipped: []types.ID{}}
	var records []*movement.Movement
	var shifted []types.ID
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := lockOrdering(tx); err != nil {
			return err
		}
		works, err := loadOrdering(tx)
		if err != nil {
			return err
		}

		before := map[types.ID]int{}
		known := map[types.ID]bool{}
		for _, w := range works {
			before[w.ID] = w.Priority
			known[w.ID] = true
		}
		for _, item := range items {
			if !known[item.ID] {
				result.Skipped = append(result.Skipped, item.ID)
			}
		}

		sort.SliceStable(works, func(i, j int) bool {
			pi, ai := sortKey(works[i], assigned)
			pj, aj := sortKey(works[j], assigned)
			if pi != pj {
				return pi < pj
			}
			return ai && !aj
		})
		changed, err := renumber(tx, works)
		if err != nil {
			return err
		}
		result.Updated = len(changed)

		for _, w := range works {
			if before[w.ID] == w.Priority {
				continue
			}
			if _, ok := assigned[w.ID]; !ok {
				shifted = append(shifted, w.ID)
				continue
			}
			record, err := movement.LogWorkAction(&s.Identity, w.ID, w.Name, movement.ActionUpdate,
				movement.Snapshot{"priority": before[w.ID]}, movement.Snapshot{"priority": w.Priority}, tx)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		result.Ordering = entries(works)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Skipped) > 0 {
		logrus.Warnf("bulk reorder skipped unknown works %v", result.Skipped)
	}
	movement.Publish(records...)
	publishShifted(shifted)
	metrics.Default.ObserveReorder("reorder_bulk", result.Updated)

	result.Changed = result.Updated > 0
	return &result, nil
}

func sortKey(w orderedWork, assigned map[types.ID]int) (int, bool) {
	if p, ok := assigned[w.ID]; ok {
		return p, true
	}
	return w.Priority, false
}

// NormalizePriorities repairs gaps and duplicates left by earlier failures.
func NormalizePriorities(s *session.Session) (*ReorderResult, error) {
	if !s.IsSuperuser {
		return nil, bizerror.ErrForbidden
	}

	result := ReorderResult{Skipped: []types.ID{}}
	var changed []types.ID
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockOrdering(tx); err != nil {
			return err
		}
		works, err := loadOrdering(tx)
		if err != nil {
			return err
		}
		if changed, err = renumber(tx, works); err != nil {
			return err
		}
		result.Updated = len(changed)
		result.Ordering = entries(works)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.Infof("normalized work priorities, %d rows updated", result.Updated)
	publishShifted(changed)
	metrics.Default.ObserveReorder("normalize", result.Updated)

	result.Changed = result.Updated > 0
	return &result, nil
}

func entries(works []orderedWork) []PriorityEntry {
	result := make([]PriorityEntry, 0, len(works))
	for _, w := range works {
		result = append(result, PriorityEntry{ID: w.ID, Name: w.Name, Priority: w.Priority})
	}
	return result
}

// withoutID drops the work that already carries a movement of its own.
func withoutID(ids []types.ID, id types.ID) []types.ID {
	result := make([]types.ID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			result = append(result, v)
		}
	}
	return result
}
