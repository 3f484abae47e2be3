package account

import (
	"context"
	"errors"
	"printflow/bizerror"
	"printflow/idgen"
	"printflow/persistence"
	"printflow/session"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"golang.org/x/crypto/bcrypt"
)

const DefaultSearchLimit = 20

var (
	userIdWorker = idgen.NewWorker()

	LoginFunc       = Login
	CreateUserFunc  = CreateUser
	QueryUsersFunc  = QueryUsers
	SearchUsersFunc = SearchUsers
	DetailUserFunc  = DetailUser
	UpdateUserFunc  = UpdateUser
	DeleteUserFunc  = DeleteUser

	// UserDeletionCleaners detach rows of other modules from a user inside the deleting transaction.
	UserDeletionCleaners []func(userID types.ID, tx *gorm.DB) error
	// LoadUserRoleIDsFunc is provided by the permission module.
	LoadUserRoleIDsFunc = func(userID types.ID, db *gorm.DB) ([]types.ID, error) { return []types.ID{}, nil }
)

func HashPassword(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hashed, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(raw)) == nil
}

func Login(req *LoginRequest, s *session.Session) (*LoginResult, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	user := User{}
	if err := db.Where("name = ?", req.Name).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrInvalidPassword
		}
		return nil, err
	}
	if !user.IsActive || !CheckPassword(user.Secret, req.Password) {
		return nil, bizerror.ErrInvalidPassword
	}

	identity := session.Identity{ID: user.ID, Name: user.Name, Nickname: user.FullName()}
	issued, err := session.IssueTokenFunc(identity, user.IsSuperuser, user.IsStaff)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := db.Model(&User{}).Where("id = ?", user.ID).Update("last_login_time", now).Error; err != nil {
		return nil, err
	}
	user.LastLoginTime = &now

	return &LoginResult{Token: issued.Token, TokenType: "Bearer", ExpiresAt: issued.ExpiresAt, User: user.Info(),
		IsSuperuser: user.IsSuperuser, IsStaff: user.IsStaff}, nil
}

func CreateUser(c *UserCreation, s *session.Session) (*UserInfo, error) {
	if !s.IsSuperuser {
		return nil, bizerror.ErrForbidden
	}
	if c.Password != c.RePassword {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("passwords do not match")}
	}
	hashed, err := HashPassword(c.Password)
	if err != nil {
		return nil, err
	}

	user := User{ID: idgen.NextID(userIdWorker), Name: strings.TrimSpace(c.Name), Secret: hashed,
		FirstName: c.FirstName, LastName: c.LastName, IsActive: true,
		IsStaff: c.IsStaff || c.IsSuperuser, IsSuperuser: c.IsSuperuser, JoinTime: time.Now()}
	if email := strings.TrimSpace(c.Email); email != "" {
		user.Email = &email
	}

	err = persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, 0, user.Name, user.Email); err != nil {
			return err
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}
	info := user.Info()
	return &info, nil
}

func checkUnique(tx *gorm.DB, exclude types.ID, name string, email *string) error {
	var count int
	if name != "" {
		if err := tx.Model(&User{}).Where("name = ? AND id <> ?", name, exclude).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &bizerror.ErrConflict{Message: "username '" + name + "' is already taken"}
		}
	}
	if email != nil {
		if err := tx.Model(&User{}).Where("email = ? AND id <> ?", *email, exclude).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &bizerror.ErrConflict{Message: "email '" + *email + "' is already in use"}
		}
	}
	return nil
}

func QueryUsers(s *session.Session) ([]UserInfo, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	var users []User
	if err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Order("join_time DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	result := make([]UserInfo, 0, len(users))
	for _, u := range users {
		result = append(result, u.Info())
	}
	return result, nil
}

// SearchUsers matches active users by first, last or user name.
func SearchUsers(q *UserSearch, s *session.Session) ([]UserBrief, error) {
	if !s.IsAuthenticated() {
		return nil, bizerror.ErrUnauthenticated
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Where("is_active = ?", true)
	if term := strings.TrimSpace(q.Q); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		db = db.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(name) LIKE ?", like, like, like)
	}
	var users []User
	if err := db.Order("first_name ASC, last_name ASC").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	result := make([]UserBrief, 0, len(users))
	for _, u := range users {
		result = append(result, u.Info().Brief())
	}
	return result, nil
}

func DetailUser(id types.ID, s *session.Session) (*UserDetail, error) {
	if !s.IsSuperuser {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	user := User{}
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	roles, err := LoadUserRoleIDsFunc(id, db)
	if err != nil {
		return nil, err
	}
	return &UserDetail{UserInfo: user.Info(), Roles: roles}, nil
}

// DetailSessionUser describes the authenticated user, including role ids.
func DetailSessionUser(s *session.Session) (*UserDetail, error) {
	if !s.IsAuthenticated() {
		return nil, bizerror.ErrUnauthenticated
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	user := User{}
	if err := db.Where("id = ?", s.Identity.ID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, bizerror.ErrUnauthenticated
	}
	roles, err := LoadUserRoleIDsFunc(user.ID, db)
	if err != nil {
		return nil, err
	}
	return &UserDetail{UserInfo: user.Info(), Roles: roles}, nil
}

func UpdateUser(id types.ID, u *UserUpdating, s *session.Session) (*UserInfo, error) {
	if !s.IsSuperuser {
		return nil, bizerror.ErrForbidden
	}
	if id == s.Identity.ID && u.IsSuperuser != nil && !*u.IsSuperuser {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("you cannot remove your own superuser status")}
	}

	var user User
	err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return err
		}

		changes := map[string]interface{}{}
		if u.Email != nil {
			email := strings.TrimSpace(*u.Email)
			if email == "" {
				changes["email"] = nil
			} else {
				if err := checkUnique(tx, id, "", &email); err != nil {
					return err
				}
				changes["email"] = email
			}
		}
		if u.FirstName != nil {
			changes["first_name"] = *u.FirstName
		}
		if u.LastName != nil {
			changes["last_name"] = *u.LastName
		}
		if u.IsActive != nil {
			changes["is_active"] = *u.IsActive
		}
		if u.IsStaff != nil {
			changes["is_staff"] = *u.IsStaff
		}
		if u.IsSuperuser != nil {
			changes["is_superuser"] = *u.IsSuperuser
		}
		if u.Password != nil {
			hashed, err := HashPassword(*u.Password)
			if err != nil {
				return err
			}
			changes["secret"] = hashed
		}
		if len(changes) > 0 {
			if err := tx.Model(&User{}).Where("id = ?", id).Updates(changes).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	info := user.Info()
	return &info, nil
}

// DeleteUser removes the account; references held by other modules are detached, never deleted.
func DeleteUser(id types.ID, s *session.Session) error {
	if !s.IsSuperuser {
		return bizerror.ErrForbidden
	}
	if id == s.Identity.ID {
		return &bizerror.ErrBadParam{Cause: errors.New("you cannot delete yourself")}
	}
	return persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		user := User{}
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return err
		}
		for _, clean := range UserDeletionCleaners {
			if err := clean(id, tx); err != nil {
				return err
			}
		}
		return tx.Delete(&User{}, "id = ?", id).Error
	})
}

// QueryUserInfos loads users by id; unknown ids are absent from the result.
func QueryUserInfos(ids []types.ID, db *gorm.DB) (map[types.ID]UserInfo, error) {
	result := map[types.ID]UserInfo{}
	if len(ids) == 0 {
		return result, nil
	}
	var users []User
	if err := db.Where("id IN (?)", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u.Info()
	}
	return result, nil
}

// FindActiveUser reports a bad parameter when the id does not name an active user.
func FindActiveUser(id types.ID, db *gorm.DB) (*UserInfo, error) {
	user := User{}
	if err := db.Where("id = ? AND is_active = ?", id, true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bizerror.ErrBadParam{Cause: errors.New("user " + id.String() + " does not exist or is inactive")}
		}
		return nil, err
	}
	info := user.Info()
	return &info, nil
}

// LoadUserState reads the flags the auth filter applies to a token subject.
func LoadUserState(ctx context.Context, id types.ID) (*session.UserState, error) {
	user := User{}
	if err := persistence.ActiveDataSourceManager.GormDB(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session.UserState{IsActive: user.IsActive, IsSuperuser: user.IsSuperuser, IsStaff: user.IsStaff}, nil
}
