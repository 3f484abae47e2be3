package account_test

import (
	"context"
	"errors"
	"printflow/account"
	"printflow/bizerror"
	"printflow/persistence"
	"printflow/session"
	"printflow/testinfra"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("accounts", func() {
	var (
		testDatabase *testinfra.TestDatabase
		admin        *session.Session
	)
	BeforeEach(func() {
		testDatabase = testinfra.StartTestDatabase("account")
		persistence.ActiveDataSourceManager = testDatabase.DS
		Expect(testDatabase.DS.GormDB(context.Background()).AutoMigrate(&account.User{}).Error).To(BeNil())
		session.ConfigureTokens("test-secret", "printflow-test", time.Hour)
		admin = testinfra.BuildSuperuserSession(1, "admin")
	})
	AfterEach(func() {
		account.UserDeletionCleaners = nil
		account.LoadUserRoleIDsFunc = func(userID types.ID, db *gorm.DB) ([]types.ID, error) { return []types.ID{}, nil }
		testinfra.StopTestDatabase(testDatabase)
	})

	createUser := func(name, first, last string) *account.UserInfo {
		u, err := account.CreateUser(&account.UserCreation{Name: name, Password: "password1", RePassword: "password1",
			FirstName: first, LastName: last}, admin)
		Expect(err).To(BeNil())
		return u
	}

	Describe("EnsureAdminAccount", func() {
		It("should create the admin once and keep the existing password", func() {
			Expect(account.EnsureAdminAccount("first-pass")).To(BeNil())
			Expect(account.EnsureAdminAccount("second-pass")).To(BeNil())

			var users []account.User
			Expect(testDatabase.DS.GormDB(context.Background()).Find(&users).Error).To(BeNil())
			Expect(len(users)).To(Equal(1))
			Expect(users[0].IsSuperuser).To(BeTrue())
			Expect(account.CheckPassword(users[0].Secret, "first-pass")).To(BeTrue())
		})

		It("should restore superuser flags of an existing admin", func() {
			Expect(testDatabase.DS.GormDB(context.Background()).Create(&account.User{ID: 7, Name: account.DefaultAdminName,
				Secret: "x", IsActive: false, JoinTime: time.Now()}).Error).To(BeNil())
			Expect(account.EnsureAdminAccount("")).To(BeNil())

			user := account.User{}
			Expect(testDatabase.DS.GormDB(context.Background()).First(&user, "id = ?", 7).Error).To(BeNil())
			Expect(user.IsSuperuser && user.IsStaff && user.IsActive).To(BeTrue())
		})
	})

	Describe("Login", func() {
		It("should issue a token for valid credentials", func() {
			u := createUser("jdoe", "John", "Doe")
			result, err := account.Login(&account.LoginRequest{Name: "jdoe", Password: "password1"}, &session.Session{})
			Expect(err).To(BeNil())
			Expect(result.TokenType).To(Equal("Bearer"))
			Expect(result.User.ID).To(Equal(u.ID))
			Expect(result.User.LastLoginTime).ToNot(BeNil())

			parsed, err := session.ParseToken(result.Token)
			Expect(err).To(BeNil())
			Expect(parsed.Identity).To(Equal(session.Identity{ID: u.ID, Name: "jdoe", Nickname: "John Doe"}))
		})

		It("should reject unknown users, wrong passwords and inactive accounts", func() {
			u := createUser("jdoe", "John", "Doe")
			_, err := account.Login(&account.LoginRequest{Name: "nobody", Password: "password1"}, &session.Session{})
			Expect(err).To(Equal(bizerror.ErrInvalidPassword))
			_, err = account.Login(&account.LoginRequest{Name: "jdoe", Password: "wrong-pass"}, &session.Session{})
			Expect(err).To(Equal(bizerror.ErrInvalidPassword))

			inactive := false
			_, err = account.UpdateUser(u.ID, &account.UserUpdating{IsActive: &inactive}, admin)
			Expect(err).To(BeNil())
			_, err = account.Login(&account.LoginRequest{Name: "jdoe", Password: "password1"}, &session.Session{})
			Expect(err).To(Equal(bizerror.ErrInvalidPassword))
		})
	})

	Describe("CreateUser", func() {
		It("should require superuser", func() {
			_, err := account.CreateUser(&account.UserCreation{Name: "x", Password: "password1", RePassword: "password1"},
				testinfra.BuildStaffSession(2, "staff"))
			Expect(err).To(Equal(bizerror.ErrForbidden))
		})

		It("should reject duplicated names and emails", func() {
			email := "a@example.com"
			_, err := account.CreateUser(&account.UserCreation{Name: "a", Email: email, Password: "password1", RePassword: "password1",
				FirstName: "A", LastName: "A"}, admin)
			Expect(err).To(BeNil())

			_, err = account.CreateUser(&account.UserCreation{Name: "a", Password: "password1", RePassword: "password1",
				FirstName: "B", LastName: "B"}, admin)
			var conflict *bizerror.ErrConflict
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.Message).To(Equal("username 'a' is already taken"))

			_, err = account.CreateUser(&account.UserCreation{Name: "b", Email: email, Password: "password1", RePassword: "password1",
				FirstName: "B", LastName: "B"}, admin)
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.Message).To(Equal("email 'a@example.com' is already in use"))
		})

		It("should make superusers staff", func() {
			u, err := account.CreateUser(&account.UserCreation{Name: "root2", Password: "password1", RePassword: "password1",
				FirstName: "R", LastName: "T", IsSuperuser: true}, admin)
			Expect(err).To(BeNil())
			Expect(u.IsStaff).To(BeTrue())
		})
	})

	Describe("SearchUsers", func() {
		It("should match active users by name parts case insensitively", func() {
			createUser("jdoe", "John", "Doe")
			createUser("asmith", "Alice", "Smith")
			bob := createUser("bjohnson", "Bob", "Johnson")
			inactive := false
			_, err := account.UpdateUser(bob.ID, &account.UserUpdating{IsActive: &inactive}, admin)
			Expect(err).To(BeNil())

			found, err := account.SearchUsers(&account.UserSearch{Q: "JOHN"}, testinfra.BuildSession(9, "someone"))
			Expect(err).To(BeNil())
			Expect(len(found)).To(Equal(1))
			Expect(found[0].DisplayName).To(Equal("John Doe (jdoe)"))

			all, err := account.SearchUsers(&account.UserSearch{}, testinfra.BuildSession(9, "someone"))
			Expect(err).To(BeNil())
			Expect(len(all)).To(Equal(2))
			Expect(all[0].Name).To(Equal("asmith"))

			_, err = account.SearchUsers(&account.UserSearch{}, &session.Session{})
			Expect(err).To(Equal(bizerror.ErrUnauthenticated))
		})
	})

	Describe("QueryUsers and DetailUser", func() {
		It("should restrict listing to staff and detail to superusers", func() {
			u := createUser("jdoe", "John", "Doe")
			_, err := account.QueryUsers(testinfra.BuildSession(9, "plain"))
			Expect(err).To(Equal(bizerror.ErrForbidden))

			users, err := account.QueryUsers(testinfra.BuildStaffSession(9, "staff"))
			Expect(err).To(BeNil())
			Expect(len(users)).To(Equal(1))

			_, err = account.DetailUser(u.ID, testinfra.BuildStaffSession(9, "staff"))
			Expect(err).To(Equal(bizerror.ErrForbidden))

			account.LoadUserRoleIDsFunc = func(userID types.ID, db *gorm.DB) ([]types.ID, error) {
				return []types.ID{100, 200}, nil
			}
			detail, err := account.DetailUser(u.ID, admin)
			Expect(err).To(BeNil())
			Expect(detail.Roles).To(Equal([]types.ID{100, 200}))
		})
	})

	Describe("UpdateUser", func() {
		It("should update fields and rehash the password", func() {
			u := createUser("jdoe", "John", "Doe")
			first, email, password := "Johnny", "j@example.com", "new-password"
			updated, err := account.UpdateUser(u.ID, &account.UserUpdating{FirstName: &first, Email: &email, Password: &password}, admin)
			Expect(err).To(BeNil())
			Expect(updated.FirstName).To(Equal("Johnny"))
			Expect(*updated.Email).To(Equal("j@example.com"))

			_, err = account.Login(&account.LoginRequest{Name: "jdoe", Password: "new-password"}, &session.Session{})
			Expect(err).To(BeNil())
		})

		It("should refuse to drop own superuser status", func() {
			self := false
			_, err := account.UpdateUser(admin.Identity.ID, &account.UserUpdating{IsSuperuser: &self}, admin)
			Expect(err).To(MatchError("you cannot remove your own superuser status"))
		})
	})

	Describe("LoadUserState", func() {
		It("should report current flags and forget deleted users", func() {
			u := createUser("jdoe", "John", "Doe")
			state, err := account.LoadUserState(context.Background(), u.ID)
			Expect(err).To(BeNil())
			Expect(*state).To(Equal(session.UserState{IsActive: true}))

			yes, no := true, false
			_, err = account.UpdateUser(u.ID, &account.UserUpdating{IsActive: &no, IsStaff: &yes}, admin)
			Expect(err).To(BeNil())
			state, err = account.LoadUserState(context.Background(), u.ID)
			Expect(err).To(BeNil())
			Expect(*state).To(Equal(session.UserState{IsActive: false, IsStaff: true}))

			Expect(account.DeleteUser(u.ID, admin)).To(BeNil())
			state, err = account.LoadUserState(context.Background(), u.ID)
			Expect(err).To(BeNil())
			Expect(state).To(BeNil())
		})
	})

	Describe("DeleteUser", func() {
		It("should run cleaners and refuse self deletion", func() {
			u := createUser("jdoe", "John", "Doe")
			var cleaned []types.ID
			account.UserDeletionCleaners = append(account.UserDeletionCleaners, func(userID types.ID, tx *gorm.DB) error {
				cleaned = append(cleaned, userID)
				return nil
			})

			Expect(account.DeleteUser(admin.Identity.ID, admin)).To(MatchError("you cannot delete yourself"))
			Expect(account.DeleteUser(u.ID, admin)).To(BeNil())
			Expect(cleaned).To(Equal([]types.ID{u.ID}))

			_, err := account.FindActiveUser(u.ID, testDatabase.DS.GormDB(context.Background()))
			Expect(err).To(MatchError("user " + u.ID.String() + " does not exist or is inactive"))
		})

		It("should roll back when a cleaner fails", func() {
			u := createUser("jdoe", "John", "Doe")
			account.UserDeletionCleaners = append(account.UserDeletionCleaners, func(userID types.ID, tx *gorm.DB) error {
				return errors.New("cleaner failed")
			})
			Expect(account.DeleteUser(u.ID, admin)).To(MatchError("cleaner failed"))

			infos, err := account.QueryUserInfos([]types.ID{u.ID, 12345}, testDatabase.DS.GormDB(context.Background()))
			Expect(err).To(BeNil())
			Expect(len(infos)).To(Equal(1))
		})
	})
})
