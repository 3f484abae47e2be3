package permission_test

import (
	"context"
	"errors"
	"printflow/account"
	"printflow/bizerror"
	"printflow/domain/permission"
	"printflow/persistence"
	"printflow/testinfra"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartTestDatabase("permission")
	*testDatabase = db
	Expect(db.DS.GormDB(context.Background()).AutoMigrate(&account.User{}, &permission.Role{}, &permission.ColumnPermission{},
		&permission.SystemPermission{}, &permission.UserRole{}).Error).To(BeNil())

	persistence.ActiveDataSourceManager = db.DS
}

func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func createUser(id types.ID, name string, superuser bool) {
	Expect(persistence.ActiveDataSourceManager.GormDB(context.Background()).Create(&account.User{ID: id, Name: name,
		Secret: "x", FirstName: name, IsActive: true, IsSuperuser: superuser, JoinTime: time.Now()}).Error).To(BeNil())
}

func TestCreateRole(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	admin := testinfra.BuildStaffSession(1, "admin")

	t.Run("should require staff", func(t *testing.T) {
		_, err := permission.CreateRole(&permission.RoleCreation{Name: "Designer"}, testinfra.BuildSession(2, "plain"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should reject unknown columns and levels", func(t *testing.T) {
		_, err := permission.CreateRole(&permission.RoleCreation{Name: "Designer",
			Permissions: map[string]permission.Level{"secret": permission.LevelRead}}, admin)
		Expect(err).To(MatchError("unknown column 'secret'"))

		_, err = permission.CreateRole(&permission.RoleCreation{Name: "Designer",
			Permissions: map[string]permission.Level{"name": "admin"}}, admin)
		Expect(err).To(MatchError("invalid permission 'admin' for column 'name'"))

		_, err = permission.CreateRole(&permission.RoleCreation{Name: "Designer",
			SystemPermissions: map[string]bool{"work_archive": true}}, admin)
		Expect(err).To(MatchError("unknown system permission 'work_archive'"))
	})

	t.Run("should seed read on every column then apply requested levels", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		role, err := permission.CreateRole(&permission.RoleCreation{Name: " Designer ", Description: "design team",
			Permissions:       map[string]permission.Level{"name": permission.LevelWrite, "price": permission.LevelNone},
			SystemPermissions: map[string]bool{permission.WorkCreate: true}}, admin)
		Expect(err).To(BeNil())
		Expect(role.Name).To(Equal("Designer"))
		Expect(len(role.Permissions)).To(Equal(len(permission.Columns)))
		Expect(role.Permissions["name"]).To(Equal(permission.LevelWrite))
		Expect(role.Permissions["price"]).To(Equal(permission.LevelNone))
		Expect(role.Permissions["note"]).To(Equal(permission.LevelRead))
		Expect(role.SystemPermissions).To(Equal(map[string]bool{
			permission.WorkCreate: true, permission.WorkDelete: false, permission.WorkReorder: false}))

		var count int
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&permission.ColumnPermission{}).
			Where("role_id = ?", role.ID).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(len(permission.Columns)))

		_, err = permission.CreateRole(&permission.RoleCreation{Name: "Designer"}, admin)
		var conflict *bizerror.ErrConflict
		Expect(errors.As(err, &conflict)).To(BeTrue())
	})
}

func TestUpdateRole(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	admin := testinfra.BuildStaffSession(1, "admin")

	t.Run("should replace column rows and upsert system flags", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		role, err := permission.CreateRole(&permission.RoleCreation{Name: "Printer",
			SystemPermissions: map[string]bool{permission.WorkCreate: true}}, admin)
		Expect(err).To(BeNil())

		name := "Print Team"
		updated, err := permission.UpdateRole(role.ID, &permission.RoleUpdating{Name: &name,
			Permissions:       map[string]permission.Level{"printing_confirm": permission.LevelWrite},
			SystemPermissions: map[string]bool{permission.WorkReorder: true}}, admin)
		Expect(err).To(BeNil())
		Expect(updated.Name).To(Equal("Print Team"))
		Expect(updated.Permissions).To(Equal(map[string]permission.Level{"printing_confirm": permission.LevelWrite}))
		Expect(updated.SystemPermissions).To(Equal(map[string]bool{
			permission.WorkCreate: true, permission.WorkDelete: false, permission.WorkReorder: true}))

		description := "only description"
		updated, err = permission.UpdateRole(role.ID, &permission.RoleUpdating{Description: &description,
			Permissions: map[string]permission.Level{}}, admin)
		Expect(err).To(BeNil())
		Expect(updated.Description).To(Equal("only description"))
		Expect(updated.Permissions).To(Equal(map[string]permission.Level{"printing_confirm": permission.LevelWrite}))
	})

	t.Run("should bulk replace column permissions", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		role, err := permission.CreateRole(&permission.RoleCreation{Name: "Viewer"}, admin)
		Expect(err).To(BeNil())
		updated, err := permission.UpdateColumnPermissions(role.ID, map[string]permission.Level{
			"name": permission.LevelRead, "note": permission.LevelWrite}, admin)
		Expect(err).To(BeNil())
		Expect(updated.Permissions).To(Equal(map[string]permission.Level{"name": permission.LevelRead, "note": permission.LevelWrite}))

		_, err = permission.UpdateColumnPermissions(12345, map[string]permission.Level{}, admin)
		Expect(err).ToNot(BeNil())
	})
}

func TestDeleteAndQueryRoles(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	admin := testinfra.BuildStaffSession(1, "admin")

	t.Run("should cascade to permissions and assignments", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		createUser(20, "ann", false)

		r1, err := permission.CreateRole(&permission.RoleCreation{Name: "B role",
			SystemPermissions: map[string]bool{permission.WorkDelete: true}}, admin)
		Expect(err).To(BeNil())
		r2, err := permission.CreateRole(&permission.RoleCreation{Name: "A role"}, admin)
		Expect(err).To(BeNil())
		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: r1.ID}, admin)
		Expect(err).To(BeNil())

		roles, err := permission.QueryRoles(admin)
		Expect(err).To(BeNil())
		Expect(len(roles)).To(Equal(2))
		Expect(roles[0].ID).To(Equal(r2.ID))
		Expect(roles[1].SystemPermissions[permission.WorkDelete]).To(BeTrue())
		Expect(len(roles[1].Permissions)).To(Equal(len(permission.Columns)))

		Expect(permission.DeleteRole(r1.ID, admin)).To(BeNil())
		db := testDatabase.DS.GormDB(context.Background())
		var count int
		Expect(db.Model(&permission.ColumnPermission{}).Where("role_id = ?", r1.ID).Count(&count).Error).To(BeNil())
		Expect(count).To(BeZero())
		Expect(db.Model(&permission.SystemPermission{}).Where("role_id = ?", r1.ID).Count(&count).Error).To(BeNil())
		Expect(count).To(BeZero())
		Expect(db.Model(&permission.UserRole{}).Where("role_id = ?", r1.ID).Count(&count).Error).To(BeNil())
		Expect(count).To(BeZero())

		_, err = permission.DetailRole(r1.ID, admin)
		Expect(err).ToNot(BeNil())
	})
}
