package permission

import (
	"errors"
	"fmt"
	"printflow/bizerror"
	"printflow/idgen"
	"printflow/persistence"
	"printflow/session"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	permissionIdWorker = idgen.NewWorker()

	CreateRoleFunc              = CreateRole
	UpdateRoleFunc              = UpdateRole
	UpdateColumnPermissionsFunc = UpdateColumnPermissions
	DeleteRoleFunc              = DeleteRole
	QueryRolesFunc              = QueryRoles
	DetailRoleFunc              = DetailRole
)

// CreateRole inserts the role, seeds read access on every column and then applies the levels
// and system flags of the request on top of the seeded rows.
func CreateRole(c *RoleCreation, s *session.Session) (*RoleDetail, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	if err := validateLevels(c.Permissions); err != nil {
		return nil, err
	}
	if err := validateSystemTypes(c.SystemPermissions); err != nil {
		return nil, err
	}

	now := time.Now()
	role := Role{ID: idgen.NextID(permissionIdWorker), Name: strings.TrimSpace(c.Name), Description: c.Description,
		CreateTime: now, UpdateTime: now}
	var detail *RoleDetail
	err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := checkRoleName(tx, 0, role.Name); err != nil {
			return err
		}
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		if err := seedDefaultColumnPermissions(tx, role.ID); err != nil {
			return err
		}
		if err := upsertColumnPermissions(tx, role.ID, c.Permissions); err != nil {
			return err
		}
		if err := upsertSystemPermissions(tx, role.ID, c.SystemPermissions); err != nil {
			return err
		}
		d, err := loadRoleDetail(tx, role.ID)
		detail = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// seedDefaultColumnPermissions grants read on every catalog column to a new role.
func seedDefaultColumnPermissions(tx *gorm.DB, roleID types.ID) error {
	for _, c := range Columns {
		row := ColumnPermission{ID: idgen.NextID(permissionIdWorker), RoleID: roleID, ColumnName: c.Name, Permission: LevelRead}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func UpdateRole(id types.ID, u *RoleUpdating, s *session.Session) (*RoleDetail, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	if err := validateLevels(u.Permissions); err != nil {
		return nil, err
	}
	if err := validateSystemTypes(u.SystemPermissions); err != nil {
		return nil, err
	}

	var detail *RoleDetail
	err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		role := Role{}
		if err := tx.Where("id = ?", id).First(&role).Error; err != nil {
			return err
		}
		changes := map[string]interface{}{"update_time": time.Now()}
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if err := checkRoleName(tx, id, name); err != nil {
				return err
			}
			changes["name"] = name
		}
		if u.Description != nil {
			changes["description"] = *u.Description
		}
		if err := tx.Model(&Role{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return err
		}

		// an empty map leaves the column rows untouched
		if len(u.Permissions) > 0 {
			if err := replaceColumnPermissions(tx, id, u.Permissions); err != nil {
				return err
			}
		}
		if err := upsertSystemPermissions(tx, id, u.SystemPermissions); err != nil {
			return err
		}
		d, err := loadRoleDetail(tx, id)
		detail = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// UpdateColumnPermissions replaces all column rows of the role with the given levels.
func UpdateColumnPermissions(roleID types.ID, levels map[string]Level, s *session.Session) (*RoleDetail, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	if err := validateLevels(levels); err != nil {
		return nil, err
	}
	var detail *RoleDetail
	err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", roleID).First(&Role{}).Error; err != nil {
			return err
		}
		if err := replaceColumnPermissions(tx, roleID, levels); err != nil {
			return err
		}
		if err := tx.Model(&Role{}).Where("id = ?", roleID).Update("update_time", time.Now()).Error; err != nil {
			return err
		}
		d, err := loadRoleDetail(tx, roleID)
		detail = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func DeleteRole(id types.ID, s *session.Session) error {
	if !s.IsAdmin() {
		return bizerror.ErrForbidden
	}
	return persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&Role{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ColumnPermission{}, "role_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&SystemPermission{}, "role_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&UserRole{}, "role_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Role{}, "id = ?", id).Error
	})
}

func QueryRoles(s *session.Session) ([]RoleDetail, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	var roles []Role
	if err := db.Order("name ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return []RoleDetail{}, nil
	}

	ids := make([]types.ID, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	var columns []ColumnPermission
	if err := db.Where("role_id IN (?)", ids).Find(&columns).Error; err != nil {
		return nil, err
	}
	var system []SystemPermission
	if err := db.Where("role_id IN (?)", ids).Find(&system).Error; err != nil {
		return nil, err
	}

	details := make([]RoleDetail, 0, len(roles))
	index := map[types.ID]int{}
	for i, r := range roles {
		details = append(details, newRoleDetail(r))
		index[r.ID] = i
	}
	for _, c := range columns {
		details[index[c.RoleID]].Permissions[c.ColumnName] = c.Permission
	}
	for _, sp := range system {
		details[index[sp.RoleID]].SystemPermissions[sp.PermissionType] = sp.Granted
	}
	return details, nil
}

func DetailRole(id types.ID, s *session.Session) (*RoleDetail, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	return loadRoleDetail(persistence.ActiveDataSourceManager.GormDB(s.Ctx()), id)
}

func AvailableColumnsInfo() *AvailableColumns {
	return &AvailableColumns{Columns: Columns, PermissionTypes: Levels, SystemPermissions: SystemPermissionTypes}
}

func newRoleDetail(r Role) RoleDetail {
	return RoleDetail{Role: r, Permissions: map[string]Level{}, SystemPermissions: MergeSystemPermissions(nil)}
}

func loadRoleDetail(db *gorm.DB, id types.ID) (*RoleDetail, error) {
	role := Role{}
	if err := db.Where("id = ?", id).First(&role).Error; err != nil {
		return nil, err
	}
	detail := newRoleDetail(role)

	var columns []ColumnPermission
	if err := db.Where("role_id = ?", id).Find(&columns).Error; err != nil {
		return nil, err
	}
	for _, c := range columns {
		detail.Permissions[c.ColumnName] = c.Permission
	}
	var system []SystemPermission
	if err := db.Where("role_id = ?", id).Find(&system).Error; err != nil {
		return nil, err
	}
	for _, sp := range system {
		detail.SystemPermissions[sp.PermissionType] = sp.Granted
	}
	return &detail, nil
}

func checkRoleName(tx *gorm.DB, exclude types.ID, name string) error {
	if name == "" {
		return &bizerror.ErrBadParam{Cause: errors.New("role name must not be blank")}
	}
	var count int
	if err := tx.Model(&Role{}).Where("name = ? AND id <> ?", name, exclude).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &bizerror.ErrConflict{Message: "role '" + name + "' already exists"}
	}
	return nil
}

func validateLevels(levels map[string]Level) error {
	for column, level := range levels {
		if !IsKnownColumn(column) {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("unknown column '%s'", column)}
		}
		if !level.Valid() {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid permission '%s' for column '%s'", level, column)}
		}
	}
	return nil
}

func validateSystemTypes(flags map[string]bool) error {
	for t := range flags {
		if !IsKnownSystemPermission(t) {
			return &bizerror.ErrBadParam{Cause: fmt.Errorf("unknown system permission '%s'", t)}
		}
	}
	return nil
}

func upsertColumnPermissions(tx *gorm.DB, roleID types.ID, levels map[string]Level) error {
	for column, level := range levels {
		existing := ColumnPermission{}
		err := tx.Where("role_id = ? AND column_name = ?", roleID, column).First(&existing).Error
		if err == nil {
			if err := tx.Model(&ColumnPermission{}).Where("id = ?", existing.ID).Update("permission", level).Error; err != nil {
				return err
			}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row := ColumnPermission{ID: idgen.NextID(permissionIdWorker), RoleID: roleID, ColumnName: column, Permission: level}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func replaceColumnPermissions(tx *gorm.DB, roleID types.ID, levels map[string]Level) error {
	if err := tx.Delete(&ColumnPermission{}, "role_id = ?", roleID).Error; err != nil {
		return err
	}
	return upsertColumnPermissions(tx, roleID, levels)
}

func upsertSystemPermissions(tx *gorm.DB, roleID types.ID, flags map[string]bool) error {
	for t, granted := range flags {
		existing := SystemPermission{}
		err := tx.Where("role_id = ? AND permission_type = ?", roleID, t).First(&existing).Error
		if err == nil {
			if err := tx.Model(&SystemPermission{}).Where("id = ?", existing.ID).Update("granted", granted).Error; err != nil {
				return err
			}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row := SystemPermission{ID: idgen.NextID(permissionIdWorker), RoleID: roleID, PermissionType: t, Granted: granted}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
