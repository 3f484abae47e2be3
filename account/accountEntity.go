package account

import (
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
)

type User struct {
	ID     types.ID `json:"id" gorm:"primary_key"`
	Name   string   `json:"name" gorm:"size:150;unique_index;not null"`
	Secret string   `json:"-" gorm:"size:100;not null"`

	Email     *string `json:"email" gorm:"size:254;unique_index"`
	FirstName string  `json:"firstName" gorm:"size:150"`
	LastName  string  `json:"lastName" gorm:"size:150"`

	IsActive    bool `json:"isActive"`
	IsStaff     bool `json:"isStaff"`
	IsSuperuser bool `json:"isSuperuser"`

	JoinTime      time.Time  `json:"joinTime"`
	LastLoginTime *time.Time `json:"lastLoginTime"`
}

type UserInfo struct {
	ID        types.ID `json:"id"`
	Name      string   `json:"name"`
	Email     *string  `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`

	IsActive    bool `json:"isActive"`
	IsStaff     bool `json:"isStaff"`
	IsSuperuser bool `json:"isSuperuser"`

	JoinTime      time.Time  `json:"joinTime"`
	LastLoginTime *time.Time `json:"lastLoginTime"`
}

type UserDetail struct {
	UserInfo
	Roles []types.ID `json:"roles"`
}

// UserBrief is the shape returned by user searches and embedded in work details.
type UserBrief struct {
	ID          types.ID `json:"id"`
	Name        string   `json:"name"`
	FullName    string   `json:"fullName"`
	Email       *string  `json:"email,omitempty"`
	DisplayName string   `json:"displayName"`
	IsStaff     bool     `json:"isStaff"`
}

type UserCreation struct {
	Name        string `json:"name" binding:"required,lte=150"`
	Email       string `json:"email" binding:"omitempty,email,lte=254"`
	Password    string `json:"password" binding:"required,gte=8,lte=128"`
	RePassword  string `json:"rePassword" binding:"required,eqfield=Password"`
	FirstName   string `json:"firstName" binding:"required,lte=150"`
	LastName    string `json:"lastName" binding:"required,lte=150"`
	IsStaff     bool   `json:"isStaff"`
	IsSuperuser bool   `json:"isSuperuser"`
}

type UserUpdating struct {
	Email       *string `json:"email" binding:"omitempty,email,lte=254"`
	FirstName   *string `json:"firstName" binding:"omitempty,lte=150"`
	LastName    *string `json:"lastName" binding:"omitempty,lte=150"`
	IsActive    *bool   `json:"isActive"`
	IsStaff     *bool   `json:"isStaff"`
	IsSuperuser *bool   `json:"isSuperuser"`
	Password    *string `json:"password" binding:"omitempty,gte=8,lte=128"`
}

type UserSearch struct {
	Q     string `form:"q"`
	Limit int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
}

type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token       string    `json:"token"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        UserInfo  `json:"user"`
	IsSuperuser bool      `json:"isSuperuser"`
	IsStaff     bool      `json:"isStaff"`
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func (u User) FullName() string {
	return fullName(u.FirstName, u.LastName)
}

func (u User) DisplayName() string {
	if n := u.FullName(); n != "" {
		return n
	}
	return u.Name
}

func (u UserInfo) FullName() string {
	return fullName(u.FirstName, u.LastName)
}

func (u UserInfo) DisplayName() string {
	if n := u.FullName(); n != "" {
		return n
	}
	return u.Name
}

func (u User) Info() UserInfo {
	return UserInfo{ID: u.ID, Name: u.Name, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		IsActive: u.IsActive, IsStaff: u.IsStaff, IsSuperuser: u.IsSuperuser,
		JoinTime: u.JoinTime, LastLoginTime: u.LastLoginTime}
}

func (u UserInfo) Brief() UserBrief {
	return UserBrief{ID: u.ID, Name: u.Name, FullName: u.FullName(), Email: u.Email,
		DisplayName: u.DisplayName() + " (" + u.Name + ")", IsStaff: u.IsStaff}
}
