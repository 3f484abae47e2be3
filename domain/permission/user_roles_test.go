package permission_test

import (
	"context"
	"errors"
	"printflow/bizerror"
	"printflow/domain/permission"
	"printflow/testinfra"
	"testing"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func TestAssignRole(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	admin := testinfra.BuildStaffSession(1, "admin")

	t.Run("should stamp the assigner and reject duplicates", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		createUser(20, "ann", false)
		role, err := permission.CreateRole(&permission.RoleCreation{Name: "Designer"}, admin)
		Expect(err).To(BeNil())

		ur, err := permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: role.ID}, admin)
		Expect(err).To(BeNil())
		Expect(*ur.AssignedBy).To(Equal(types.ID(1)))
		Expect(ur.UserDisplay).To(Equal("ann"))
		Expect(ur.RoleDisplay).To(Equal("Designer"))

		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: role.ID}, admin)
		var conflict *bizerror.ErrConflict
		Expect(errors.As(err, &conflict)).To(BeTrue())
		Expect(conflict.Message).To(Equal("role 'Designer' is already assigned to user 'ann'"))

		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 99, RoleID: role.ID}, admin)
		Expect(err).To(MatchError("user 99 does not exist"))
		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: 99}, admin)
		Expect(err).To(MatchError("role 99 does not exist"))

		rows, err := permission.QueryUserRoles(&permission.UserRoleQuery{UserID: 20}, admin)
		Expect(err).To(BeNil())
		Expect(len(rows)).To(Equal(1))

		Expect(permission.UnassignRole(ur.ID, admin)).To(BeNil())
		Expect(permission.UnassignRole(ur.ID, admin)).To(Equal(bizerror.ErrNotFound))
	})
}

func TestLoadUserGrants(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	admin := testinfra.BuildStaffSession(1, "admin")

	t.Run("should merge levels and flags across assigned roles", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		createUser(20, "ann", false)

		designer, err := permission.CreateRole(&permission.RoleCreation{Name: "Designer",
			Permissions: map[string]permission.Level{"name": permission.LevelWrite, "price": permission.LevelNone}}, admin)
		Expect(err).To(BeNil())
		accounting, err := permission.CreateRole(&permission.RoleCreation{Name: "Accounting",
			Permissions:       map[string]permission.Level{"name": permission.LevelRead, "price": permission.LevelWrite},
			SystemPermissions: map[string]bool{permission.WorkReorder: true}}, admin)
		Expect(err).To(BeNil())

		s := testinfra.BuildSession(20, "ann")
		g, err := permission.LoadGrants(s)
		Expect(err).To(BeNil())
		Expect(g.CanReadColumn("name")).To(BeFalse())
		Expect(g.EffectiveSystem()[permission.WorkReorder]).To(BeFalse())

		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: designer.ID}, admin)
		Expect(err).To(BeNil())
		g, err = permission.LoadGrants(s)
		Expect(err).To(BeNil())
		Expect(g.ValidateWritable("price")).To(MatchError("no write permission on fields: price"))

		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: accounting.ID}, admin)
		Expect(err).To(BeNil())
		g, err = permission.LoadGrants(s)
		Expect(err).To(BeNil())
		Expect(g.CanWriteColumn("name")).To(BeTrue())
		Expect(g.CanWriteColumn("price")).To(BeTrue())
		Expect(g.CanWriteColumn("note")).To(BeFalse())
		Expect(g.CanReorderWork()).To(BeTrue())
		Expect(g.CanCreateWork()).To(BeFalse())

		ids, err := permission.LoadUserRoleIDs(20, testDatabase.DS.GormDB(context.Background()))
		Expect(err).To(BeNil())
		Expect(ids).To(ConsistOf(designer.ID, accounting.ID))
	})

	t.Run("should bypass storage for superusers", func(t *testing.T) {
		g, err := permission.LoadGrants(testinfra.BuildSuperuserSession(1, "root"))
		Expect(err).To(BeNil())
		Expect(g.Superuser).To(BeTrue())
	})
}

func TestPermissionReports(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	admin := testinfra.BuildStaffSession(1, "admin")

	t.Run("should describe every column for a user", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		createUser(20, "ann", false)
		createUser(21, "root", true)

		role, err := permission.CreateRole(&permission.RoleCreation{Name: "Designer",
			Permissions: map[string]permission.Level{"name": permission.LevelWrite, "price": permission.LevelNone}}, admin)
		Expect(err).To(BeNil())
		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: role.ID}, admin)
		Expect(err).To(BeNil())

		report, err := permission.MyPermissions(testinfra.BuildSession(20, "ann"))
		Expect(err).To(BeNil())
		Expect(report.User.FullName).To(Equal("ann"))
		Expect(report.Roles).To(Equal([]permission.RoleRef{{ID: role.ID, Name: "Designer"}}))
		Expect(len(report.Permissions)).To(Equal(len(permission.Columns)))
		Expect(report.Permissions[0]).To(Equal(permission.ColumnPermissionDetail{ColumnName: "name", DisplayName: "Name",
			Permission: permission.LevelWrite, CanRead: true, CanWrite: true}))
		Expect(report.Permissions[2]).To(Equal(permission.ColumnPermissionDetail{ColumnName: "price", DisplayName: "Price",
			Permission: permission.LevelNone, CanRead: false, CanWrite: false}))

		_, err = permission.UserPermissions(20, testinfra.BuildSession(20, "ann"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
		report, err = permission.UserPermissions(21, admin)
		Expect(err).To(BeNil())
		Expect(report.User.IsSuperuser).To(BeTrue())
		Expect(report.Permissions[2].CanWrite).To(BeTrue())
		_, err = permission.UserPermissions(99, admin)
		Expect(err).To(Equal(bizerror.ErrNotFound))

		compact, err := permission.MyWorkPermissions(testinfra.BuildSession(20, "ann"))
		Expect(err).To(BeNil())
		Expect(compact["name"]).To(Equal("rw"))
		Expect(compact["note"]).To(Equal("r"))
		Expect(compact).ToNot(HaveKey("price"))
	})

	t.Run("should detach a deleted user", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		createUser(20, "ann", false)
		createUser(21, "bob", false)
		role, err := permission.CreateRole(&permission.RoleCreation{Name: "Designer"}, admin)
		Expect(err).To(BeNil())
		_, err = permission.AssignRole(&permission.UserRoleCreation{UserID: 20, RoleID: role.ID}, admin)
		Expect(err).To(BeNil())
		ur, err := permission.AssignRole(&permission.UserRoleCreation{UserID: 21, RoleID: role.ID},
			testinfra.BuildStaffSession(20, "ann"))
		Expect(err).To(BeNil())

		db := testDatabase.DS.GormDB(context.Background())
		Expect(permission.DetachUser(20, db)).To(BeNil())
		rows, err := permission.QueryUserRoles(&permission.UserRoleQuery{RoleID: role.ID}, admin)
		Expect(err).To(BeNil())
		Expect(len(rows)).To(Equal(1))
		Expect(rows[0].ID).To(Equal(ur.ID))
		Expect(rows[0].AssignedBy).To(BeNil())
	})
}
