package permission

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

type Role struct {
	ID          types.ID  `json:"id" gorm:"primary_key"`
	Name        string    `json:"name" gorm:"size:100;unique_index;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

type ColumnPermission struct {
	ID         types.ID `json:"id" gorm:"primary_key"`
	RoleID     types.ID `json:"roleId" gorm:"unique_index:uni_role_column;not null"`
	ColumnName string   `json:"columnName" gorm:"size:50;unique_index:uni_role_column;not null"`
	Permission Level    `json:"permission" gorm:"size:10;not null"`
}

type SystemPermission struct {
	ID             types.ID `json:"id" gorm:"primary_key"`
	RoleID         types.ID `json:"roleId" gorm:"unique_index:uni_role_type;not null"`
	PermissionType string   `json:"permissionType" gorm:"size:50;unique_index:uni_role_type;not null"`
	Granted        bool     `json:"granted"`
}

type UserRole struct {
	ID         types.ID  `json:"id" gorm:"primary_key"`
	UserID     types.ID  `json:"userId" gorm:"unique_index:uni_user_role;not null"`
	RoleID     types.ID  `json:"roleId" gorm:"unique_index:uni_user_role;not null"`
	AssignedBy *types.ID `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
}

type RoleCreation struct {
	Name              string           `json:"name" binding:"required,lte=100"`
	Description       string           `json:"description"`
	Permissions       map[string]Level `json:"permissions"`
	SystemPermissions map[string]bool  `json:"systemPermissions"`
}

type RoleUpdating struct {
	Name              *string          `json:"name" binding:"omitempty,gte=1,lte=100"`
	Description       *string          `json:"description"`
	Permissions       map[string]Level `json:"permissions"`
	SystemPermissions map[string]bool  `json:"systemPermissions"`
}

type ColumnPermissionsUpdating struct {
	Permissions map[string]Level `json:"permissions" binding:"required"`
}

// RoleDetail is a role with its column levels and all system permission flags.
type RoleDetail struct {
	Role
	Permissions       map[string]Level `json:"permissions"`
	SystemPermissions map[string]bool  `json:"systemPermissions"`
}

type UserRoleCreation struct {
	UserID types.ID `json:"userId" binding:"required"`
	RoleID types.ID `json:"roleId" binding:"required"`
}

type UserRoleQuery struct {
	UserID types.ID `form:"userId"`
	RoleID types.ID `form:"roleId"`
}

type UserRoleInfo struct {
	UserRole
	UserDisplay string `json:"userDisplay"`
	RoleDisplay string `json:"roleDisplay"`
}

type AvailableColumns struct {
	Columns           []Column      `json:"columns"`
	PermissionTypes   []LevelOption `json:"permissionTypes"`
	SystemPermissions []Column      `json:"systemPermissions"`
}

type RoleRef struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
}

type ColumnPermissionDetail struct {
	ColumnName  string `json:"columnName"`
	DisplayName string `json:"displayName"`
	Permission  Level  `json:"permission"`
	CanRead     bool   `json:"canRead"`
	CanWrite    bool   `json:"canWrite"`
}

type PermissionsUser struct {
	ID          types.ID `json:"id"`
	Name        string   `json:"name"`
	FullName    string   `json:"fullName"`
	IsSuperuser bool     `json:"isSuperuser"`
}

// PermissionsReport lists every catalog column with the effective level of one user.
type PermissionsReport struct {
	User        PermissionsUser          `json:"user"`
	Roles       []RoleRef                `json:"roles"`
	Permissions []ColumnPermissionDetail `json:"permissions"`
	System      map[string]bool          `json:"systemPermissions"`
}

type EffectivePermissions struct {
	Columns map[string]Level `json:"columns"`
	System  map[string]bool  `json:"system"`
}
