package permission

import (
	"printflow/bizerror"
	"printflow/persistence"
	"printflow/session"
	"sort"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

var (
	LoadGrantsFunc = LoadGrants
)

// Grants is the effective permission set of one user, merged across all of the user's roles.
type Grants struct {
	Superuser bool
	Columns   map[string]Level
	System    map[string]bool
}

func SuperuserGrants() *Grants {
	return &Grants{Superuser: true, Columns: map[string]Level{}, System: map[string]bool{}}
}

// MergeColumnPermissions folds rows of any number of roles with the precedence write > read > none.
func MergeColumnPermissions(rows []ColumnPermission) map[string]Level {
	merged := map[string]Level{}
	for _, r := range rows {
		if cur, ok := merged[r.ColumnName]; !ok || r.Permission.rank() > cur.rank() {
			merged[r.ColumnName] = r.Permission
		}
	}
	return merged
}

func MergeSystemPermissions(rows []SystemPermission) map[string]bool {
	merged := map[string]bool{WorkCreate: false, WorkDelete: false, WorkReorder: false}
	for _, r := range rows {
		if r.Granted && IsKnownSystemPermission(r.PermissionType) {
			merged[r.PermissionType] = true
		}
	}
	return merged
}

// LoadGrants computes the grants of the session user. It is evaluated on every call.
func LoadGrants(s *session.Session) (*Grants, error) {
	if s.IsSuperuser {
		return SuperuserGrants(), nil
	}
	if !s.IsAuthenticated() {
		return nil, bizerror.ErrUnauthenticated
	}
	return LoadUserGrants(s.Identity.ID, persistence.ActiveDataSourceManager.GormDB(s.Ctx()))
}

func LoadUserGrants(userID types.ID, db *gorm.DB) (*Grants, error) {
	roleIDs, err := LoadUserRoleIDs(userID, db)
	if err != nil {
		return nil, err
	}
	g := &Grants{Columns: map[string]Level{}, System: MergeSystemPermissions(nil)}
	if len(roleIDs) == 0 {
		return g, nil
	}

	var columns []ColumnPermission
	if err := db.Where("role_id IN (?)", roleIDs).Find(&columns).Error; err != nil {
		return nil, err
	}
	var system []SystemPermission
	if err := db.Where("role_id IN (?)", roleIDs).Find(&system).Error; err != nil {
		return nil, err
	}
	g.Columns = MergeColumnPermissions(columns)
	g.System = MergeSystemPermissions(system)
	return g, nil
}

func (g *Grants) Level(column string) Level {
	if g.Superuser {
		return LevelWrite
	}
	if l, ok := g.Columns[column]; ok {
		return l
	}
	return LevelNone
}

// EffectiveColumns reports the level of every catalog column.
func (g *Grants) EffectiveColumns() map[string]Level {
	result := make(map[string]Level, len(Columns))
	for _, c := range Columns {
		result[c.Name] = g.Level(c.Name)
	}
	return result
}

func (g *Grants) EffectiveSystem() map[string]bool {
	result := map[string]bool{}
	for _, t := range SystemPermissionTypes {
		result[t.Name] = g.Superuser || g.System[t.Name]
	}
	return result
}

func (g *Grants) CanReadColumn(column string) bool {
	l := g.Level(column)
	return l == LevelRead || l == LevelWrite
}

func (g *Grants) CanWriteColumn(column string) bool {
	return g.Level(column) == LevelWrite
}

func (g *Grants) CanCreateWork() bool {
	return g.Superuser || g.System[WorkCreate]
}

func (g *Grants) CanDeleteWork() bool {
	return g.Superuser || g.System[WorkDelete]
}

func (g *Grants) CanReorderWork() bool {
	return g.Superuser || g.System[WorkReorder]
}

// FilterReadable drops every field that is neither always visible nor readable.
// Superusers get the record back unchanged.
func (g *Grants) FilterReadable(record map[string]interface{}) map[string]interface{} {
	if g.Superuser || record == nil {
		return record
	}
	filtered := make(map[string]interface{}, len(record))
	for k, v := range record {
		if IsAlwaysVisible(k) || g.CanReadColumn(k) {
			filtered[k] = v
		}
	}
	return filtered
}

func (g *Grants) FilterReadableList(records []map[string]interface{}) []map[string]interface{} {
	if g.Superuser {
		return records
	}
	result := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		result = append(result, g.FilterReadable(r))
	}
	return result
}

// ValidateWritable checks every given payload field outside the read-only list and reports all
// fields lacking write access in one error.
func (g *Grants) ValidateWritable(fields ...string) error {
	if g.Superuser {
		return nil
	}
	denied := map[string]struct{}{}
	for _, f := range fields {
		if IsReadOnly(f) {
			continue
		}
		if !g.CanWriteColumn(f) {
			denied[f] = struct{}{}
		}
	}
	if len(denied) == 0 {
		return nil
	}
	names := make([]string, 0, len(denied))
	for f := range denied {
		names = append(names, f)
	}
	sort.Strings(names)
	return &bizerror.ErrFieldsNotWritable{Fields: names}
}

func CheckColumnPermission(s *session.Session, column string, mode Mode) (bool, error) {
	g, err := LoadGrantsFunc(s)
	if err != nil {
		return false, err
	}
	if mode == ModeWrite {
		return g.CanWriteColumn(column), nil
	}
	return g.CanReadColumn(column), nil
}

func GetEffectivePermissions(s *session.Session) (*EffectivePermissions, error) {
	g, err := LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	return &EffectivePermissions{Columns: g.EffectiveColumns(), System: g.EffectiveSystem()}, nil
}
