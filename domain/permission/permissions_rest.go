package permission

import (
	"net/http"
	"printflow/bizerror"
	"printflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathRoles               = "/v1/roles"
	PathUserRoles           = "/v1/user-roles"
	PathMyWorkPermissions   = "/v1/my-work-permissions"
	PathMySystemPermissions = "/v1/my-system-permissions"
)

func RegisterPermissionsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	roles := r.Group(PathRoles, middleWares...)
	roles.GET("", handleQueryRoles)
	roles.POST("", handleCreateRole)
	roles.GET("available-columns", handleAvailableColumns)
	roles.GET(":id", handleDetailRole)
	roles.PUT(":id", handleUpdateRole)
	roles.DELETE(":id", handleDeleteRole)
	roles.PUT(":id/permissions", handleUpdateColumnPermissions)

	userRoles := r.Group(PathUserRoles, middleWares...)
	userRoles.GET("", handleQueryUserRoles)
	userRoles.POST("", handleAssignRole)
	userRoles.DELETE(":id", handleUnassignRole)
	userRoles.GET("my-permissions", handleMyPermissions)
	userRoles.GET("user-permissions", handleUserPermissions)

	r.GET(PathMyWorkPermissions, append(middleWares, handleMyWorkPermissions)...)
	r.GET(PathMySystemPermissions, append(middleWares, handleMySystemPermissions)...)
}

func handleQueryRoles(c *gin.Context) {
	roles, err := QueryRolesFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, roles)
}

func handleCreateRole(c *gin.Context) {
	creation := RoleCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	role, err := CreateRoleFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, role)
}

func handleAvailableColumns(c *gin.Context) {
	if !session.ExtractSessionFromGinContext(c).IsAdmin() {
		panic(bizerror.ErrForbidden)
	}
	c.JSON(http.StatusOK, AvailableColumnsInfo())
}

func handleDetailRole(c *gin.Context) {
	role, err := DetailRoleFunc(bindID(c), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, role)
}

func handleUpdateRole(c *gin.Context) {
	id := bindID(c)
	updating := RoleUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	role, err := UpdateRoleFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, role)
}

func handleDeleteRole(c *gin.Context) {
	if err := DeleteRoleFunc(bindID(c), session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleUpdateColumnPermissions(c *gin.Context) {
	id := bindID(c)
	updating := ColumnPermissionsUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	role, err := UpdateColumnPermissionsFunc(id, updating.Permissions, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, role)
}

func handleQueryUserRoles(c *gin.Context) {
	q := UserRoleQuery{}
	if err := c.ShouldBindQuery(&q); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	rows, err := QueryUserRolesFunc(&q, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, rows)
}

func handleAssignRole(c *gin.Context) {
	creation := UserRoleCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	ur, err := AssignRoleFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, ur)
}

func handleUnassignRole(c *gin.Context) {
	if err := UnassignRoleFunc(bindID(c), session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleMyPermissions(c *gin.Context) {
	report, err := MyPermissionsFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, report)
}

func handleUserPermissions(c *gin.Context) {
	q := struct {
		UserID types.ID `form:"userId" binding:"required"`
	}{}
	if err := c.ShouldBindQuery(&q); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	report, err := UserPermissionsFunc(q.UserID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, report)
}

func handleMyWorkPermissions(c *gin.Context) {
	perms, err := MyWorkPermissionsFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, perms)
}

func handleMySystemPermissions(c *gin.Context) {
	perms, err := MySystemPermissionsFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, perms)
}

func bindID(c *gin.Context) types.ID {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return id
}
