package permission

import (
	"errors"
	"printflow/account"
	"printflow/bizerror"
	"printflow/idgen"
	"printflow/persistence"
	"printflow/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	AssignRoleFunc          = AssignRole
	UnassignRoleFunc        = UnassignRole
	QueryUserRolesFunc      = QueryUserRoles
	MyPermissionsFunc       = MyPermissions
	UserPermissionsFunc     = UserPermissions
	MyWorkPermissionsFunc   = MyWorkPermissions
	MySystemPermissionsFunc = MySystemPermissions
)

func AssignRole(c *UserRoleCreation, s *session.Session) (*UserRoleInfo, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	assigner := s.Identity.ID
	ur := UserRole{ID: idgen.NextID(permissionIdWorker), UserID: c.UserID, RoleID: c.RoleID,
		AssignedBy: &assigner, AssignedAt: time.Now()}

	var info *UserRoleInfo
	err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		users, err := account.QueryUserInfos([]types.ID{c.UserID}, tx)
		if err != nil {
			return err
		}
		user, found := users[c.UserID]
		if !found {
			return &bizerror.ErrBadParam{Cause: errors.New("user " + c.UserID.String() + " does not exist")}
		}
		role := Role{}
		if err := tx.Where("id = ?", c.RoleID).First(&role).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &bizerror.ErrBadParam{Cause: errors.New("role " + c.RoleID.String() + " does not exist")}
			}
			return err
		}

		var count int
		if err := tx.Model(&UserRole{}).Where("user_id = ? AND role_id = ?", c.UserID, c.RoleID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &bizerror.ErrConflict{Message: "role '" + role.Name + "' is already assigned to user '" + user.Name + "'"}
		}
		if err := tx.Create(&ur).Error; err != nil {
			return err
		}
		info = &UserRoleInfo{UserRole: ur, UserDisplay: user.Name, RoleDisplay: role.Name}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func UnassignRole(id types.ID, s *session.Session) error {
	if !s.IsAdmin() {
		return bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	res := db.Delete(&UserRole{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return bizerror.ErrNotFound
	}
	return nil
}

func QueryUserRoles(q *UserRoleQuery, s *session.Session) ([]UserRoleInfo, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	query := db.Model(&UserRole{})
	if q.UserID != 0 {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.RoleID != 0 {
		query = query.Where("role_id = ?", q.RoleID)
	}
	var rows []UserRole
	if err := query.Order("assigned_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return describeUserRoles(db, rows)
}

func describeUserRoles(db *gorm.DB, rows []UserRole) ([]UserRoleInfo, error) {
	result := make([]UserRoleInfo, 0, len(rows))
	if len(rows) == 0 {
		return result, nil
	}
	userIDs := make([]types.ID, 0, len(rows))
	roleIDs := make([]types.ID, 0, len(rows))
	for _, r := range rows {
		userIDs = append(userIDs, r.UserID)
		roleIDs = append(roleIDs, r.RoleID)
	}
	users, err := account.QueryUserInfos(userIDs, db)
	if err != nil {
		return nil, err
	}
	var roles []Role
	if err := db.Where("id IN (?)", roleIDs).Find(&roles).Error; err != nil {
		return nil, err
	}
	roleNames := map[types.ID]string{}
	for _, r := range roles {
		roleNames[r.ID] = r.Name
	}
	for _, r := range rows {
		result = append(result, UserRoleInfo{UserRole: r, UserDisplay: users[r.UserID].Name, RoleDisplay: roleNames[r.RoleID]})
	}
	return result, nil
}

// LoadUserRoleIDs returns the ids of every role assigned to the user.
func LoadUserRoleIDs(userID types.ID, db *gorm.DB) ([]types.ID, error) {
	var rows []UserRole
	if err := db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.RoleID)
	}
	return ids, nil
}

// DetachUser removes the assignments of a deleted user and forgets it as assigner of others.
func DetachUser(userID types.ID, tx *gorm.DB) error {
	if err := tx.Delete(&UserRole{}, "user_id = ?", userID).Error; err != nil {
		return err
	}
	return tx.Model(&UserRole{}).Where("assigned_by = ?", userID).Update("assigned_by", gorm.Expr("NULL")).Error
}

func MyPermissions(s *session.Session) (*PermissionsReport, error) {
	if !s.IsAuthenticated() {
		return nil, bizerror.ErrUnauthenticated
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	g, err := LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	users, err := account.QueryUserInfos([]types.ID{s.Identity.ID}, db)
	if err != nil {
		return nil, err
	}
	user, found := users[s.Identity.ID]
	if !found {
		return nil, bizerror.ErrUnauthenticated
	}
	return buildReport(db, user, g)
}

func UserPermissions(userID types.ID, s *session.Session) (*PermissionsReport, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	users, err := account.QueryUserInfos([]types.ID{userID}, db)
	if err != nil {
		return nil, err
	}
	user, found := users[userID]
	if !found {
		return nil, bizerror.ErrNotFound
	}
	g := SuperuserGrants()
	if !user.IsSuperuser {
		if g, err = LoadUserGrants(userID, db); err != nil {
			return nil, err
		}
	}
	return buildReport(db, user, g)
}

func buildReport(db *gorm.DB, user account.UserInfo, g *Grants) (*PermissionsReport, error) {
	roleIDs, err := LoadUserRoleIDs(user.ID, db)
	if err != nil {
		return nil, err
	}
	roles := []RoleRef{}
	if len(roleIDs) > 0 {
		var rows []Role
		if err := db.Where("id IN (?)", roleIDs).Order("name ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			roles = append(roles, RoleRef{ID: r.ID, Name: r.Name})
		}
	}

	details := make([]ColumnPermissionDetail, 0, len(Columns))
	for _, c := range Columns {
		details = append(details, ColumnPermissionDetail{ColumnName: c.Name, DisplayName: c.DisplayName,
			Permission: g.Level(c.Name), CanRead: g.CanReadColumn(c.Name), CanWrite: g.CanWriteColumn(c.Name)})
	}
	fullName := user.FullName()
	if fullName == "" {
		fullName = user.Name
	}
	return &PermissionsReport{
		User:        PermissionsUser{ID: user.ID, Name: user.Name, FullName: fullName, IsSuperuser: user.IsSuperuser},
		Roles:       roles,
		Permissions: details,
		System:      g.EffectiveSystem(),
	}, nil
}

// MyWorkPermissions is the compact column map used by clients: "rw" for write, "r" for read,
// columns without access are left out.
func MyWorkPermissions(s *session.Session) (map[string]string, error) {
	g, err := LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	result := map[string]string{}
	for column, level := range g.EffectiveColumns() {
		switch level {
		case LevelWrite:
			result[column] = "rw"
		case LevelRead:
			result[column] = "r"
		}
	}
	return result, nil
}

func MySystemPermissions(s *session.Session) (map[string]bool, error) {
	g, err := LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	return g.EffectiveSystem(), nil
}
